package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/message"

	"github.com/keshon/modbot/internal/i18n"
	"github.com/keshon/modbot/internal/metrics"
	"github.com/keshon/modbot/internal/modlog"
)

// Time units accepted by the lock command.
const (
	unitSeconds = "seconds"
	unitMinutes = "minutes"
	unitHours   = "hours"
	unitDays    = "days"
)

var units = map[string]time.Duration{
	unitSeconds: time.Second,
	unitMinutes: time.Minute,
	unitHours:   time.Hour,
	unitDays:    24 * time.Hour,
}

// maxTimeout is the longest member timeout Discord accepts.
const maxTimeout = 28 * 24 * time.Hour

// maxLockAmount bounds the amount option so amount*unit fits a time.Duration.
const maxLockAmount = 100000

var (
	errBadDuration = errors.New("invalid lock duration")
	errUnknownUnit = errors.New("unknown time unit")
)

// lockDuration converts an amount of unit into a duration.
func lockDuration(amount int64, unit string) (time.Duration, error) {
	d, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("%w: %w %q", errBadDuration, errUnknownUnit, unit)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount %d", errBadDuration, amount)
	}
	if amount > int64(math.MaxInt64/d) {
		return 0, fmt.Errorf("%w: %d %s overflows", errBadDuration, amount, unit)
	}
	return time.Duration(amount) * d, nil
}

// durationText renders amount and unit in the reader's language with the right plural form.
func durationText(p *message.Printer, amount int64, unit string) string {
	switch unit {
	case unitSeconds:
		return p.Sprintf(i18n.DurationSeconds, amount)
	case unitMinutes:
		return p.Sprintf(i18n.DurationMinutes, amount)
	case unitHours:
		return p.Sprintf(i18n.DurationHours, amount)
	default:
		return p.Sprintf(i18n.DurationDays, amount)
	}
}

// guildView holds what the permission checks need to know about a guild.
type guildView struct {
	id      string
	ownerID string
	roles   map[string]*discordgo.Role
}

func (b *Bot) loadGuild(guildID string) (*guildView, error) {
	guild, err := b.session.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	roles := guild.Roles
	if len(roles) == 0 {
		if roles, err = b.session.GuildRoles(guildID); err != nil {
			return nil, fmt.Errorf("fetch roles of guild %s: %w", guildID, err)
		}
	}
	g := &guildView{id: guildID, ownerID: guild.OwnerID, roles: make(map[string]*discordgo.Role, len(roles))}
	for _, r := range roles {
		g.roles[r.ID] = r
	}
	return g, nil
}

func (g *guildView) hasRole(roleID string) bool {
	_, ok := g.roles[roleID]
	return roleID != "" && ok
}

// isAdmin reports whether the member's roles or the @everyone role grant
// Administrator. @everyone shares the guild's ID and is never listed in m.Roles.
func (g *guildView) isAdmin(m *discordgo.Member) bool {
	if everyone := g.roles[g.id]; everyone != nil && everyone.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, roleID := range m.Roles {
		if role := g.roles[roleID]; role != nil && role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}

func (g *guildView) isOwner(m *discordgo.Member) bool {
	return m.User != nil && m.User.ID == g.ownerID
}

// topPosition returns the highest role position of m; 0 is @everyone.
func (g *guildView) topPosition(m *discordgo.Member) int {
	top := 0
	for _, roleID := range m.Roles {
		if role := g.roles[roleID]; role != nil && role.Position > top {
			top = role.Position
		}
	}
	return top
}

func memberHasRole(m *discordgo.Member, roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// isAdministrator reports whether the invoker holds Administrator in the interaction's channel.
func isAdministrator(i *discordgo.Interaction) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// moderationTarget is the member a lock or unlock acts on.
type moderationTarget struct {
	guild  *guildView
	user   *discordgo.User
	member *discordgo.Member
	// outranksBot is true when the member's top role is not below the bot's.
	outranksBot bool
}

func (b *Bot) loadTarget(i *discordgo.Interaction, opts commandOptions) (*moderationTarget, error) {
	user, err := opts.userOpt(i, optUser)
	if err != nil {
		return nil, err
	}
	guild, err := b.loadGuild(i.GuildID)
	if err != nil {
		return nil, err
	}
	member, err := b.session.GuildMember(i.GuildID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch member %s: %w", user.ID, err)
	}
	if member.User != nil {
		user = member.User
	}
	self, err := b.session.GuildMember(i.GuildID, b.selfID())
	if err != nil {
		return nil, fmt.Errorf("fetch bot member: %w", err)
	}
	return &moderationTarget{
		guild:       guild,
		user:        user,
		member:      member,
		outranksBot: guild.topPosition(member) >= guild.topPosition(self),
	}, nil
}

func auditOptions(ctx context.Context, reason string) []discordgo.RequestOption {
	return []discordgo.RequestOption{discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)}
}

func (b *Bot) handleLock(ctx context.Context, i *discordgo.Interaction) (string, error) {
	p := printer(i)
	if !isAdministrator(i) {
		b.respond(i, p.Sprintf(i18n.AdminRequired))
		return metrics.OutcomeDenied, nil
	}
	if err := b.deferReply(i); err != nil {
		return "", fmt.Errorf("defer lock response: %w", err)
	}

	opts := optionsOf(i)
	scopeValue, _ := opts.stringOpt(optScope)
	scope, err := modlog.ParseScope(scopeValue)
	if err != nil {
		b.editReply(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	reason, _ := opts.stringOpt(optReason)
	amount, hasAmount := opts.intOpt(optAmount)
	unit, hasUnit := opts.stringOpt(optUnit)

	t, err := b.loadTarget(i, opts)
	if err != nil {
		b.editReply(i, p.Sprintf(i18n.GenericError))
		return "", err
	}
	target := mention(t.user.ID)

	switch {
	case t.guild.isOwner(t.member):
		b.editReply(i, p.Sprintf(i18n.CannotLockOwner))
		return metrics.OutcomeDenied, nil
	case t.guild.isAdmin(t.member):
		b.editReply(i, p.Sprintf(i18n.CannotLockAdmin))
		return metrics.OutcomeDenied, nil
	case t.outranksBot:
		b.editReply(i, p.Sprintf(i18n.LockHierarchy))
		return metrics.OutcomeDenied, nil
	case hasAmount != hasUnit:
		b.editReply(i, p.Sprintf(i18n.AmountUnitTogether))
		return metrics.OutcomeInvalid, nil
	}

	now := b.now()
	// A server lock covers the channels too, so it blocks both scopes.
	checks := []modlog.Scope{modlog.ScopeServer}
	if scope == modlog.ScopeChannel {
		checks = append(checks, modlog.ScopeChannel)
	}
	for _, s := range checks {
		active, err := b.modLog.HasActiveLock(ctx, t.user.ID, s, now)
		if err != nil {
			b.editReply(i, p.Sprintf(i18n.GenericError))
			return "", err
		}
		if active {
			b.editReply(i, p.Sprintf(i18n.AlreadyLocked, target, string(s)))
			return metrics.OutcomeInvalid, nil
		}
	}

	if hasAmount && amount <= 0 {
		b.editReply(i, p.Sprintf(i18n.DurationPositive))
		return metrics.OutcomeInvalid, nil
	}
	var duration time.Duration
	if hasAmount {
		if duration, err = lockDuration(amount, unit); err != nil {
			if errors.Is(err, errUnknownUnit) {
				b.editReply(i, p.Sprintf(i18n.GenericError))
				return metrics.OutcomeInvalid, nil
			}
			if scope == modlog.ScopeServer {
				b.editReply(i, p.Sprintf(i18n.TimeoutTooLong))
			} else {
				b.editReply(i, p.Sprintf(i18n.DurationTooLong))
			}
			return metrics.OutcomeInvalid, nil
		}
	}

	entry := &modlog.Entry{
		Action:        modlog.ActionLock,
		GuildID:       i.GuildID,
		ModeratorID:   userID(i),
		ModeratorName: displayName(invoker(i)),
		UserID:        t.user.ID,
		UserName:      displayName(t.user),
		Scope:         scope,
		Reason:        reason,
	}
	if hasAmount {
		n := int(amount)
		entry.Amount = &n
		entry.Unit = &unit
	}

	if scope == modlog.ScopeChannel {
		return b.lockChannel(ctx, i, t, entry, duration, now)
	}
	return b.lockServer(ctx, i, t, entry, duration, now)
}

func (b *Bot) lockChannel(ctx context.Context, i *discordgo.Interaction, t *moderationTarget, entry *modlog.Entry, duration time.Duration, now time.Time) (string, error) {
	p := printer(i)
	if !t.guild.hasRole(b.chatBannedRoleID) {
		b.editReply(i, p.Sprintf(i18n.RoleNotFound))
		return "", fmt.Errorf("chat banned role %q not found in guild %s", b.chatBannedRoleID, i.GuildID)
	}
	err := b.session.GuildMemberRoleAdd(i.GuildID, t.user.ID, b.chatBannedRoleID, auditOptions(ctx, entry.Reason)...)
	if err != nil {
		if isForbidden(err) {
			b.editReply(i, p.Sprintf(i18n.LockForbidden))
			return metrics.OutcomeDenied, nil
		}
		b.editReply(i, p.Sprintf(i18n.GenericError))
		return "", fmt.Errorf("add chat banned role to %s: %w", t.user.ID, err)
	}
	b.editReply(i, p.Sprintf(i18n.ChannelLocked, mention(t.user.ID), entry.Reason))

	if duration > 0 {
		expires := now.Add(duration)
		entry.ExpiresAt = &expires
	}
	b.metrics.Lock(string(modlog.ScopeChannel))
	b.logInfo("user locked", "scope", modlog.ScopeChannel, "guild_id", i.GuildID, "user_id", t.user.ID,
		"moderator_id", entry.ModeratorID, "duration", formatOptional(duration), "reason", entry.Reason)
	if err := b.modLog.Record(ctx, entry); err != nil {
		return "", err
	}
	return metrics.OutcomeOK, nil
}

func (b *Bot) lockServer(ctx context.Context, i *discordgo.Interaction, t *moderationTarget, entry *modlog.Entry, duration time.Duration, now time.Time) (string, error) {
	p := printer(i)
	text := p.Sprintf(i18n.MaxDuration)
	if duration > 0 {
		if duration > maxTimeout {
			b.editReply(i, p.Sprintf(i18n.TimeoutTooLong))
			return metrics.OutcomeInvalid, nil
		}
		text = durationText(p, int64(*entry.Amount), *entry.Unit)
	} else {
		duration = maxTimeout
	}

	until := now.Add(duration)
	err := b.session.GuildMemberTimeout(i.GuildID, t.user.ID, &until, auditOptions(ctx, entry.Reason)...)
	if err != nil {
		if isForbidden(err) {
			b.editReply(i, p.Sprintf(i18n.LockForbidden))
			return metrics.OutcomeDenied, nil
		}
		b.editReply(i, p.Sprintf(i18n.GenericError))
		return "", fmt.Errorf("time out %s: %w", t.user.ID, err)
	}
	b.editReply(i, p.Sprintf(i18n.ServerLocked, mention(t.user.ID), text, entry.Reason))

	entry.ExpiresAt = &until
	b.metrics.Lock(string(modlog.ScopeServer))
	b.logInfo("user locked", "scope", modlog.ScopeServer, "guild_id", i.GuildID, "user_id", t.user.ID,
		"moderator_id", entry.ModeratorID, "duration", FormatDuration(duration), "reason", entry.Reason)
	if err := b.modLog.Record(ctx, entry); err != nil {
		return "", err
	}
	return metrics.OutcomeOK, nil
}
