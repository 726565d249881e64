package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/message"

	"github.com/keshon/modbot/internal/i18n"
	"github.com/keshon/modbot/internal/metrics"
	"github.com/keshon/modbot/internal/modlog"
)

const (
	cmdClear       = "clear"
	cmdClearAdd    = "clear_add"
	cmdClearRemove = "clear_remove"
	cmdClearShow   = "clear_show"
	cmdLock        = "lock"
	cmdUnlock      = "unlock"
)

const (
	optAmount = "amount"
	optUser   = "user"
	optScope  = "scope"
	optReason = "reason"
	optUnit   = "unit"
)

// commandHandler runs one slash command and returns the outcome label for metrics.
type commandHandler func(ctx context.Context, i *discordgo.Interaction) (string, error)

func localized(key string) *map[discordgo.Locale]string {
	return &map[discordgo.Locale]string{discordgo.Russian: i18n.Translate(key)}
}

func choice(nameKey, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:              nameKey,
		NameLocalizations: *localized(nameKey),
		Value:             value,
	}
}

func option(t discordgo.ApplicationCommandOptionType, name, descKey string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:                     t,
		Name:                     name,
		Description:              descKey,
		DescriptionLocalizations: *localized(descKey),
		Required:                 required,
	}
}

// Commands returns the slash commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	adminPerm := int64(discordgo.PermissionAdministrator)
	noDM := false

	amount := option(discordgo.ApplicationCommandOptionInteger, optAmount, i18n.CmdClearAmountDesc, false)

	scope := func() *discordgo.ApplicationCommandOption {
		o := option(discordgo.ApplicationCommandOptionString, optScope, i18n.OptScopeDesc, true)
		o.Choices = []*discordgo.ApplicationCommandOptionChoice{
			choice(i18n.ChoiceScopeServer, string(modlog.ScopeServer)),
			choice(i18n.ChoiceScopeChannel, string(modlog.ScopeChannel)),
		}
		return o
	}

	lockAmount := option(discordgo.ApplicationCommandOptionInteger, optAmount, i18n.OptAmountDesc, false)
	lockAmount.MaxValue = maxLockAmount
	unit := option(discordgo.ApplicationCommandOptionString, optUnit, i18n.OptUnitDesc, false)
	unit.Choices = []*discordgo.ApplicationCommandOptionChoice{
		choice(i18n.ChoiceUnitSeconds, unitSeconds),
		choice(i18n.ChoiceUnitMinutes, unitMinutes),
		choice(i18n.ChoiceUnitHours, unitHours),
		choice(i18n.ChoiceUnitDays, unitDays),
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     cmdClear,
			Description:              i18n.CmdClearDesc,
			DescriptionLocalizations: localized(i18n.CmdClearDesc),
			DMPermission:             &noDM,
			Options:                  []*discordgo.ApplicationCommandOption{amount},
		},
		{
			Name:                     cmdClearAdd,
			Description:              i18n.CmdClearAddDesc,
			DescriptionLocalizations: localized(i18n.CmdClearAddDesc),
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				option(discordgo.ApplicationCommandOptionUser, optUser, i18n.OptUserDesc, true),
			},
		},
		{
			Name:                     cmdClearRemove,
			Description:              i18n.CmdClearRemoveDesc,
			DescriptionLocalizations: localized(i18n.CmdClearRemoveDesc),
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				option(discordgo.ApplicationCommandOptionUser, optUser, i18n.OptUserDesc, true),
			},
		},
		{
			Name:                     cmdClearShow,
			Description:              i18n.CmdClearShowDesc,
			DescriptionLocalizations: localized(i18n.CmdClearShowDesc),
			DMPermission:             &noDM,
		},
		{
			Name:                     cmdLock,
			Description:              i18n.CmdLockDesc,
			DescriptionLocalizations: localized(i18n.CmdLockDesc),
			DefaultMemberPermissions: &adminPerm,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				option(discordgo.ApplicationCommandOptionUser, optUser, i18n.OptUserDesc, true),
				scope(),
				option(discordgo.ApplicationCommandOptionString, optReason, i18n.OptReasonDesc, true),
				lockAmount,
				unit,
			},
		},
		{
			Name:                     cmdUnlock,
			Description:              i18n.CmdUnlockDesc,
			DescriptionLocalizations: localized(i18n.CmdUnlockDesc),
			DefaultMemberPermissions: &adminPerm,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				option(discordgo.ApplicationCommandOptionUser, optUser, i18n.OptUserDesc, true),
				scope(),
				option(discordgo.ApplicationCommandOptionString, optReason, i18n.OptReasonDesc, true),
			},
		},
	}
}

// InteractionCreate routes slash commands by name and button presses by custom ID.
func (b *Bot) InteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	i := ic.Interaction
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		handler, ok := b.handlers[name]
		if !ok {
			b.logDebug("unknown command", "command", name, "user_id", userID(i))
			b.respond(i, printer(i).Sprintf(i18n.InteractionExpired))
			return
		}
		b.logDebug("command received", "command", name, "guild_id", i.GuildID, "channel_id", i.ChannelID, "user_id", userID(i))
		outcome, err := handler(b.ctx, i)
		if err != nil {
			outcome = metrics.OutcomeError
			b.logError("command failed", "command", name, "guild_id", i.GuildID, "user_id", userID(i), "error", err)
		}
		b.metrics.Command(name, outcome)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(i)
	default:
		b.logDebug("ignoring interaction", "type", i.Type.String())
	}
}

// printer picks the reply language from the user's client locale.
func printer(i *discordgo.Interaction) *message.Printer {
	return i18n.Printer(string(i.Locale))
}

// invoker returns the user who triggered i.
func invoker(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func userID(i *discordgo.Interaction) string {
	if u := invoker(i); u != nil {
		return u.ID
	}
	return ""
}

func displayName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	return u.String()
}

func mention(id string) string {
	return "<@" + id + ">"
}

func channelMention(id string) string {
	return "<#" + id + ">"
}

// commandOptions indexes the options of a slash command by name.
type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(i *discordgo.Interaction) commandOptions {
	opts := make(commandOptions)
	for _, o := range i.ApplicationCommandData().Options {
		opts[o.Name] = o
	}
	return opts
}

func (o commandOptions) intOpt(name string) (int64, bool) {
	opt, ok := o[name]
	if !ok {
		return 0, false
	}
	return opt.IntValue(), true
}

func (o commandOptions) stringOpt(name string) (string, bool) {
	opt, ok := o[name]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(opt.StringValue()), true
}

// userOpt returns the user behind a user option, resolved when Discord sent the full user.
func (o commandOptions) userOpt(i *discordgo.Interaction, name string) (*discordgo.User, error) {
	opt, ok := o[name]
	if !ok {
		return nil, fmt.Errorf("missing %q option", name)
	}
	u := opt.UserValue(nil)
	if data := i.ApplicationCommandData(); data.Resolved != nil {
		if full, ok := data.Resolved.Users[u.ID]; ok && full != nil {
			return full, nil
		}
	}
	return u, nil
}

// isOwner reports whether userID owns the interaction's guild.
func (b *Bot) isOwner(i *discordgo.Interaction, userID string) (bool, error) {
	if i.GuildID == "" {
		return false, nil
	}
	guild, err := b.session.Guild(i.GuildID)
	if err != nil {
		return false, fmt.Errorf("fetch guild %s: %w", i.GuildID, err)
	}
	return guild.OwnerID == userID, nil
}
