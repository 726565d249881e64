package bot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modbot/internal/i18n"
	"github.com/keshon/modbot/internal/metrics"
	"github.com/keshon/modbot/internal/modlog"
)

// sweepLoop lifts expired channel locks every sweepInterval until ctx is done.
func (b *Bot) sweepLoop(ctx context.Context) {
	b.logInfo("expiry sweep started", "interval", FormatDuration(b.sweepInterval))
	b.sweep(ctx)

	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logInfo("expiry sweep stopped")
			return
		case <-ticker.C:
			b.sweep(ctx)
		}
	}
}

// sweep runs one pass over the expired channel locks. Server locks are left
// alone since Discord ends timeouts by itself.
func (b *Bot) sweep(ctx context.Context) {
	b.metrics.SweepRun()
	expired, err := b.modLog.ExpiredChannelLocks(ctx, b.now())
	if err != nil {
		b.metrics.SweepError()
		b.logError("querying expired locks failed", "error", err)
		return
	}
	for _, entry := range expired {
		if ctx.Err() != nil {
			return
		}
		b.expire(ctx, entry)
	}
}

func (b *Bot) expire(ctx context.Context, entry modlog.Entry) {
	guildID := entry.GuildID
	if guildID == "" {
		guildID = b.guildID
	}
	if guildID == "" {
		b.metrics.SweepError()
		b.logWarn("expired lock has no guild, skipping", "lock_id", entry.ID, "user_id", entry.UserID)
		return
	}

	member, err := b.session.GuildMember(guildID, entry.UserID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			b.logDebug("member of expired lock not in guild, keeping lock", "lock_id", entry.ID, "guild_id", guildID, "user_id", entry.UserID)
			return
		}
		b.metrics.SweepError()
		b.logError("fetching member failed", "lock_id", entry.ID, "guild_id", guildID, "user_id", entry.UserID, "error", err)
		return
	}

	if b.chatBannedRoleID != "" && memberHasRole(member, b.chatBannedRoleID) {
		err := b.session.GuildMemberRoleRemove(guildID, entry.UserID, b.chatBannedRoleID, auditOptions(ctx, i18n.AutoUnlockReason)...)
		if err != nil {
			b.metrics.SweepError()
			b.logWarn("removing chat banned role failed", "lock_id", entry.ID, "guild_id", guildID, "user_id", entry.UserID, "error", err)
		}
	}

	if err := b.modLog.Resolve(ctx, entry.ID); err != nil {
		b.metrics.SweepError()
		b.logError("resolving expired lock failed", "lock_id", entry.ID, "error", err)
		return
	}
	b.metrics.Unlock(string(modlog.ScopeChannel), metrics.SourceSweep)
	b.logInfo("lock expired, user unlocked", "lock_id", entry.ID, "guild_id", guildID, "user_id", entry.UserID, "scope", entry.Scope)
}
