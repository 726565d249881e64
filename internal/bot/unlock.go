package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modbot/internal/i18n"
	"github.com/keshon/modbot/internal/metrics"
	"github.com/keshon/modbot/internal/modlog"
)

func (b *Bot) handleUnlock(ctx context.Context, i *discordgo.Interaction) (string, error) {
	p := printer(i)
	if !isAdministrator(i) {
		b.respond(i, p.Sprintf(i18n.AdminRequired))
		return metrics.OutcomeDenied, nil
	}
	if err := b.deferReply(i); err != nil {
		return "", fmt.Errorf("defer unlock response: %w", err)
	}

	opts := optionsOf(i)
	scopeValue, _ := opts.stringOpt(optScope)
	scope, err := modlog.ParseScope(scopeValue)
	if err != nil {
		b.editReply(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	reason, _ := opts.stringOpt(optReason)

	t, err := b.loadTarget(i, opts)
	if err != nil {
		b.editReply(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	target := mention(t.user.ID)

	switch {
	case t.guild.isOwner(t.member), t.guild.isAdmin(t.member):
		b.editReply(i, p.Sprintf(i18n.AdminUnrestricted))
		return metrics.OutcomeInvalid, nil
	case t.outranksBot:
		b.editReply(i, p.Sprintf(i18n.UnlockHierarchy))
		return metrics.OutcomeDenied, nil
	}

	active, err := b.modLog.HasActiveLock(ctx, t.user.ID, scope, b.now())
	if err != nil {
		b.editReply(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	if !active {
		b.editReply(i, p.Sprintf(i18n.NoActiveLock, target, string(scope)))
		return metrics.OutcomeInvalid, nil
	}

	entry := &modlog.Entry{
		Action:        modlog.ActionUnlock,
		GuildID:       i.GuildID,
		ModeratorID:   userID(i),
		ModeratorName: displayName(invoker(i)),
		UserID:        t.user.ID,
		UserName:      displayName(t.user),
		Scope:         scope,
		Reason:        reason,
	}

	if scope == modlog.ScopeChannel {
		if !t.guild.hasRole(b.chatBannedRoleID) {
			b.editReply(i, p.Sprintf(i18n.RoleNotFound))
			return "", fmt.Errorf("chat banned role %q not found in guild %s", b.chatBannedRoleID, i.GuildID)
		}
		if !memberHasRole(t.member, b.chatBannedRoleID) {
			// The role was taken away by hand; the log rows are stale.
			b.editReply(i, p.Sprintf(i18n.NotChannelLocked, target))
			if _, err := b.modLog.ResolveActive(ctx, t.user.ID, scope); err != nil {
				return "", err
			}
			return metrics.OutcomeInvalid, nil
		}
		err := b.session.GuildMemberRoleRemove(i.GuildID, t.user.ID, b.chatBannedRoleID, auditOptions(ctx, reason)...)
		if err != nil {
			if isForbidden(err) {
				b.editReply(i, p.Sprintf(i18n.UnlockForbidden))
				return metrics.OutcomeDenied, nil
			}
			b.editReply(i, p.Sprintf(i18n.GenericError))
			return "", fmt.Errorf("remove chat banned role from %s: %w", t.user.ID, err)
		}
		b.editReply(i, p.Sprintf(i18n.ChannelUnlocked, target, reason))
	} else {
		err := b.session.GuildMemberTimeout(i.GuildID, t.user.ID, nil, auditOptions(ctx, reason)...)
		if err != nil {
			if isForbidden(err) {
				b.editReply(i, p.Sprintf(i18n.UnlockForbidden))
				return metrics.OutcomeDenied, nil
			}
			b.editReply(i, p.Sprintf(i18n.GenericError))
			return "", fmt.Errorf("clear timeout of %s: %w", t.user.ID, err)
		}
		b.editReply(i, p.Sprintf(i18n.ServerUnlocked, target, reason))
	}

	b.metrics.Unlock(string(scope), metrics.SourceManual)
	b.logInfo("user unlocked", "scope", scope, "guild_id", i.GuildID, "user_id", t.user.ID,
		"moderator_id", entry.ModeratorID, "reason", reason)
	if err := b.modLog.Record(ctx, entry); err != nil {
		return "", err
	}
	if _, err := b.modLog.ResolveActive(ctx, t.user.ID, scope); err != nil {
		return "", err
	}
	return metrics.OutcomeOK, nil
}
