package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modbot/internal/allowlist"
	"github.com/keshon/modbot/internal/i18n"
	"github.com/keshon/modbot/internal/metrics"
)

func (b *Bot) handleClearAdd(_ context.Context, i *discordgo.Interaction) (string, error) {
	p := printer(i)
	owner, err := b.isOwner(i, userID(i))
	if err != nil {
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	if !owner {
		b.respond(i, p.Sprintf(i18n.OwnerOnlyAdd))
		return metrics.OutcomeDenied, nil
	}
	target, err := optionsOf(i).userOpt(i, optUser)
	if err != nil {
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	}

	switch err := b.allowList.Add(target.ID); {
	case errors.Is(err, allowlist.ErrAlreadyAllowed):
		b.respond(i, p.Sprintf(i18n.AlreadyAllowed, mention(target.ID)))
		return metrics.OutcomeInvalid, nil
	case err != nil:
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	b.logInfo("user added to clear allow-list", "guild_id", i.GuildID, "user_id", target.ID, "by", userID(i))
	b.respond(i, p.Sprintf(i18n.Allowed, mention(target.ID)))
	return metrics.OutcomeOK, nil
}

func (b *Bot) handleClearRemove(_ context.Context, i *discordgo.Interaction) (string, error) {
	p := printer(i)
	owner, err := b.isOwner(i, userID(i))
	if err != nil {
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	if !owner {
		b.respond(i, p.Sprintf(i18n.OwnerOnlyRemove))
		return metrics.OutcomeDenied, nil
	}
	target, err := optionsOf(i).userOpt(i, optUser)
	if err != nil {
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	}

	switch err := b.allowList.Remove(target.ID); {
	case errors.Is(err, allowlist.ErrNoFile):
		b.respond(i, p.Sprintf(i18n.AllowListNoFile))
		return metrics.OutcomeInvalid, nil
	case errors.Is(err, allowlist.ErrNotFound):
		b.respond(i, p.Sprintf(i18n.NotAllowed, mention(target.ID)))
		return metrics.OutcomeInvalid, nil
	case err != nil:
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	b.logInfo("user removed from clear allow-list", "guild_id", i.GuildID, "user_id", target.ID, "by", userID(i))
	b.respond(i, p.Sprintf(i18n.Disallowed, mention(target.ID)))
	return metrics.OutcomeOK, nil
}

func (b *Bot) handleClearShow(_ context.Context, i *discordgo.Interaction) (string, error) {
	p := printer(i)
	ids, err := b.allowList.List()
	switch {
	case errors.Is(err, allowlist.ErrNoFile):
		b.respond(i, p.Sprintf(i18n.AllowListNoFile))
		return metrics.OutcomeOK, nil
	case err != nil:
		b.respond(i, p.Sprintf(i18n.GenericError))
		return "", err
	case len(ids) == 0:
		b.respond(i, p.Sprintf(i18n.AllowListEmpty))
		return metrics.OutcomeOK, nil
	}

	mentions := make([]string, len(ids))
	for n, id := range ids {
		mentions[n] = mention(id)
	}
	b.respond(i, p.Sprintf(i18n.AllowListHeader, strings.Join(mentions, "\n")))
	return metrics.OutcomeOK, nil
}
