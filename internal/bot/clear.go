package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/keshon/modbot/internal/i18n"
	"github.com/keshon/modbot/internal/metrics"
)

// clearAllAmount is the default amount of the clear command; it asks for
// confirmation before wiping the channel.
const clearAllAmount = 10000

const (
	pageSize = 100
	// Discord refuses bulk deletes of messages older than two weeks. One minute
	// of margin covers clock skew.
	bulkDeleteMaxAge = 14*24*time.Hour - time.Minute
)

const (
	confirmPrefix = "clear:confirm:"
	cancelPrefix  = "clear:cancel:"
	// cmdClearConfirm labels button presses on the clear prompt in metrics.
	cmdClearConfirm = "clear_confirm"
)

// confirmation is a pending "clear all" prompt waiting for a button press.
type confirmation struct {
	requesterID string
	channelID   string
	guildID     string
	amount      int
	prompt      *discordgo.Interaction
	decided     chan struct{}
}

func (b *Bot) handleClear(ctx context.Context, i *discordgo.Interaction) (string, error) {
	p := printer(i)
	amount := int64(clearAllAmount)
	if v, ok := optionsOf(i).intOpt(optAmount); ok {
		amount = v
	}
	if amount <= 0 {
		b.respond(i, p.Sprintf(i18n.AmountPositive))
		return metrics.OutcomeInvalid, nil
	}

	requester := userID(i)
	allowed, err := b.isOwner(i, requester)
	if err != nil {
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	if !allowed {
		if allowed, err = b.allowList.Contains(requester); err != nil {
			b.respond(i, p.Sprintf(i18n.GenericError))
			return "", err
		}
	}
	if !allowed {
		b.respond(i, p.Sprintf(i18n.NoPermission))
		return metrics.OutcomeDenied, nil
	}

	if err := b.deferReply(i); err != nil {
		return "", fmt.Errorf("defer clear response: %w", err)
	}

	if amount == clearAllAmount {
		return b.askClearAll(i, int(amount))
	}

	deleted, err := b.purge(ctx, i.ChannelID, i.GuildID, int(amount))
	b.metrics.MessagesDeleted(deleted)
	b.logInfo("channel cleared", "channel_id", i.ChannelID, "user_id", requester, "requested", amount, "deleted", deleted)
	if err != nil {
		b.editReply(i, p.Sprintf(i18n.ClearFailed, deleted))
		return "", err
	}
	if deleted == 0 {
		b.editReply(i, p.Sprintf(i18n.NoMessages))
	} else {
		b.editReply(i, p.Sprintf(i18n.ClearedLast, deleted))
	}
	return metrics.OutcomeOK, nil
}

// askClearAll turns the deferred response into a Yes/No prompt and arms its timeout.
func (b *Bot) askClearAll(i *discordgo.Interaction, amount int) (string, error) {
	p := printer(i)
	id := uuid.NewString()
	c := &confirmation{
		requesterID: userID(i),
		channelID:   i.ChannelID,
		guildID:     i.GuildID,
		amount:      amount,
		prompt:      i,
		decided:     make(chan struct{}),
	}

	b.confirmMu.Lock()
	b.confirmations[id] = c
	b.confirmMu.Unlock()

	content := p.Sprintf(i18n.ConfirmClearAll, channelMention(i.ChannelID))
	_, err := b.session.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content: &content,
		Components: &[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						CustomID: confirmPrefix + id,
						Label:    p.Sprintf(i18n.ButtonYes),
						Style:    discordgo.DangerButton,
					},
					discordgo.Button{
						CustomID: cancelPrefix + id,
						Label:    p.Sprintf(i18n.ButtonNo),
						Style:    discordgo.SecondaryButton,
					},
				},
			},
		},
		AllowedMentions: noMentions(),
	})
	if err != nil {
		b.takeConfirmation(id)
		return "", fmt.Errorf("ask for clear confirmation: %w", err)
	}

	armed := b.goTracked(func() {
		select {
		case <-c.decided:
			return
		case <-b.ctx.Done():
			b.takeConfirmation(id)
			return
		case <-time.After(b.confirmTimeout):
		}
		if b.takeConfirmation(id) == nil {
			return
		}
		b.logDebug("clear confirmation timed out", "channel_id", c.channelID, "user_id", c.requesterID)
		b.editReply(c.prompt, p.Sprintf(i18n.ClearTimedOut))
	})
	if !armed {
		// Stopping: the prompt is dead before anyone can press it.
		b.takeConfirmation(id)
		b.editReply(i, p.Sprintf(i18n.InteractionExpired))
		return metrics.OutcomeInvalid, nil
	}
	return metrics.OutcomeOK, nil
}

// takeConfirmation removes and returns the pending confirmation id, or nil if
// it was already used or expired.
func (b *Bot) takeConfirmation(id string) *confirmation {
	b.confirmMu.Lock()
	defer b.confirmMu.Unlock()
	c, ok := b.confirmations[id]
	if !ok {
		return nil
	}
	delete(b.confirmations, id)
	return c
}

func (b *Bot) peekConfirmation(id string) *confirmation {
	b.confirmMu.Lock()
	defer b.confirmMu.Unlock()
	return b.confirmations[id]
}

// handleComponent processes a Yes/No press on a clear prompt.
func (b *Bot) handleComponent(i *discordgo.Interaction) {
	p := printer(i)
	customID := i.MessageComponentData().CustomID

	var id string
	var confirmed bool
	switch {
	case strings.HasPrefix(customID, confirmPrefix):
		id, confirmed = strings.TrimPrefix(customID, confirmPrefix), true
	case strings.HasPrefix(customID, cancelPrefix):
		id = strings.TrimPrefix(customID, cancelPrefix)
	default:
		b.logDebug("someone used an unknown component", "custom_id", customID, "user_id", userID(i))
		b.respond(i, p.Sprintf(i18n.InteractionExpired))
		return
	}

	c := b.peekConfirmation(id)
	if c == nil {
		b.logDebug("someone used an expired interaction", "custom_id", customID, "user_id", userID(i))
		b.respond(i, p.Sprintf(i18n.InteractionExpired))
		return
	}
	if userID(i) != c.requesterID {
		b.respond(i, p.Sprintf(i18n.NotInitiator))
		return
	}
	if c = b.takeConfirmation(id); c == nil {
		b.respond(i, p.Sprintf(i18n.InteractionExpired))
		return
	}
	close(c.decided)

	if !confirmed {
		b.logInfo("clear cancelled", "channel_id", c.channelID, "user_id", c.requesterID)
		content := p.Sprintf(i18n.ClearCancelled)
		err := b.session.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:         content,
				Components:      []discordgo.MessageComponent{},
				AllowedMentions: noMentions(),
			},
		})
		if err != nil {
			b.logWarn("failed to update clear prompt", "channel_id", c.channelID, "error", err)
		}
		b.metrics.Command(cmdClearConfirm, metrics.OutcomeDenied)
		return
	}

	if err := b.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		b.logWarn("failed to acknowledge clear confirmation", "channel_id", c.channelID, "error", err)
	}

	deleted, err := b.purge(b.ctx, c.channelID, c.guildID, c.amount)
	b.metrics.MessagesDeleted(deleted)
	b.logInfo("channel cleared", "channel_id", c.channelID, "user_id", c.requesterID, "requested", c.amount, "deleted", deleted)
	switch {
	case err != nil:
		b.logError("clearing channel failed", "channel_id", c.channelID, "error", err)
		b.editReply(i, p.Sprintf(i18n.ClearFailed, deleted))
		b.metrics.Command(cmdClearConfirm, metrics.OutcomeError)
		return
	case deleted == 0:
		b.editReply(i, p.Sprintf(i18n.NoMessages))
	default:
		b.editReply(i, p.Sprintf(i18n.ClearedAll, deleted))
	}
	b.metrics.Command(cmdClearConfirm, metrics.OutcomeOK)
}

// purge deletes up to limit of the newest messages in channelID and returns how
// many were deleted. Messages younger than two weeks go through bulk delete;
// older ones are deleted one by one. Per-message failures are logged and
// skipped; a failure to fetch history stops the purge.
func (b *Bot) purge(ctx context.Context, channelID, guildID string, limit int) (int, error) {
	var (
		before  string
		seen    int
		deleted int
	)
	cutoff := b.now().Add(-bulkDeleteMaxAge)

	for seen < limit {
		select {
		case <-ctx.Done():
			return deleted, ctx.Err()
		default:
		}

		n := min(pageSize, limit-seen)
		messages, err := b.session.ChannelMessages(channelID, n, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return deleted, fmt.Errorf("fetch messages of channel %s: %w", channelID, err)
		}
		if len(messages) == 0 {
			break
		}
		seen += len(messages)
		before = messages[len(messages)-1].ID

		var recent, old []string
		for _, msg := range messages {
			if msg.Timestamp.After(cutoff) {
				recent = append(recent, msg.ID)
			} else {
				old = append(old, msg.ID)
			}
		}
		deleted += b.deleteRecent(ctx, channelID, guildID, recent)
		for _, id := range old {
			if b.deleteOne(ctx, channelID, guildID, id) {
				deleted++
			}
		}

		if len(messages) < n {
			break
		}
	}
	return deleted, nil
}

// deleteRecent removes up to a page of messages younger than two weeks. If the
// bulk call fails the messages are retried one by one.
func (b *Bot) deleteRecent(ctx context.Context, channelID, guildID string, ids []string) int {
	switch len(ids) {
	case 0:
		return 0
	case 1:
		if b.deleteOne(ctx, channelID, guildID, ids[0]) {
			return 1
		}
		return 0
	}
	err := b.session.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx))
	if err == nil {
		b.logDebug("bulk deleted messages", "channel_id", channelID, "count", len(ids))
		return len(ids)
	}
	if isForbidden(err) {
		b.logPermissionErrorOnce(channelID, guildID, err)
		return 0
	}
	b.logWarn("bulk delete failed, deleting one by one", "channel_id", channelID, "count", len(ids), "error", err)
	deleted := 0
	for _, id := range ids {
		if b.deleteOne(ctx, channelID, guildID, id) {
			deleted++
		}
	}
	return deleted
}

func (b *Bot) deleteOne(ctx context.Context, channelID, guildID, messageID string) bool {
	err := b.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	switch {
	case err == nil:
		b.logDebug("deleted message", "channel_id", channelID, "message_id", messageID)
		return true
	case isForbidden(err):
		b.logPermissionErrorOnce(channelID, guildID, err)
	default:
		b.logError("deleting message failed", "channel_id", channelID, "message_id", messageID, "error", err)
	}
	return false
}
