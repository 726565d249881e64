package bot

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modbot/internal/allowlist"
	"github.com/keshon/modbot/internal/metrics"
	"github.com/keshon/modbot/internal/modlog"
)

// Logger provides leveled logging. If nil, log calls are no-ops.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Session abstracts the Discord REST calls the bot makes, for testing.
// *discordgo.Session satisfies it.
type Session interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)

	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error

	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
}

var _ Session = (*discordgo.Session)(nil)

// Options configures a Bot.
type Options struct {
	AllowList *allowlist.Store
	ModLog    *modlog.Store
	Metrics   *metrics.Metrics

	// ApplicationID is used to register commands. Empty means the bot user ID from the ready event.
	ApplicationID string
	// GuildID scopes command registration and is the fallback guild for the expiry sweep.
	GuildID          string
	ChatBannedRoleID string

	SweepInterval  time.Duration
	ConfirmTimeout time.Duration
}

// Bot represents the moderation bot instance.
type Bot struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cancelOnce sync.Once

	session   Session
	allowList *allowlist.Store
	modLog    *modlog.Store
	metrics   *metrics.Metrics
	log       Logger

	applicationID    string
	guildID          string
	chatBannedRoleID string
	sweepInterval    time.Duration
	confirmTimeout   time.Duration

	handlers map[string]commandHandler

	confirmMu     sync.Mutex
	confirmations map[string]*confirmation

	readyMu   sync.Mutex
	botUserID string
	sweepOnce sync.Once

	// stopped is set by Stop before waiting on wg; no goroutine is added after it.
	stopMu  sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	permErrorLastLog map[string]time.Time // channelID -> last time we logged permission error
	permErrorMu      sync.Mutex

	now func() time.Time
}

// NewBot creates a new Bot that talks to Discord through session.
func NewBot(session Session, opts Options) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		ctx:              ctx,
		cancel:           cancel,
		session:          session,
		allowList:        opts.AllowList,
		modLog:           opts.ModLog,
		metrics:          opts.Metrics,
		applicationID:    opts.ApplicationID,
		guildID:          opts.GuildID,
		chatBannedRoleID: opts.ChatBannedRoleID,
		sweepInterval:    opts.SweepInterval,
		confirmTimeout:   opts.ConfirmTimeout,
		confirmations:    make(map[string]*confirmation),
		permErrorLastLog: make(map[string]time.Time),
		now:              time.Now,
	}
	if b.sweepInterval <= 0 {
		b.sweepInterval = time.Minute
	}
	if b.confirmTimeout <= 0 {
		b.confirmTimeout = 30 * time.Second
	}
	b.handlers = map[string]commandHandler{
		cmdClear:       b.handleClear,
		cmdClearAdd:    b.handleClearAdd,
		cmdClearRemove: b.handleClearRemove,
		cmdClearShow:   b.handleClearShow,
		cmdLock:        b.handleLock,
		cmdUnlock:      b.handleUnlock,
	}
	return b
}

// SetLogger sets the logger. If nil, logging is a no-op.
func (b *Bot) SetLogger(l Logger) {
	b.log = l
}

// Stop cancels the expiry sweep and pending clear confirmations and waits for
// them to return. It is safe to call multiple times. Use for graceful shutdown.
func (b *Bot) Stop() {
	b.stopMu.Lock()
	b.stopped = true
	b.stopMu.Unlock()
	b.cancelOnce.Do(b.cancel)
	b.wg.Wait()
}

// goTracked runs fn in a goroutine that Stop waits for. It reports false and
// runs nothing once Stop was called.
func (b *Bot) goTracked(fn func()) bool {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopped {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
	return true
}

// Ready handles the Discord ready event: it registers the slash commands and
// starts the expiry sweep on the first call.
func (b *Bot) Ready(_ *discordgo.Session, event *discordgo.Ready) {
	if event.User == nil {
		b.logError("ready event without user")
		return
	}
	b.readyMu.Lock()
	b.botUserID = event.User.ID
	b.readyMu.Unlock()
	b.logInfo("bot ready", "username", event.User.Username, "guilds", len(event.Guilds))

	appID := b.applicationID
	if appID == "" {
		appID = event.User.ID
	}
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, Commands())
	if err != nil {
		b.logError("registering commands failed", "application_id", appID, "guild_id", b.guildID, "error", err)
	} else {
		b.logInfo("commands registered", "count", len(registered), "guild_id", b.guildID)
	}

	if b.modLog == nil {
		return
	}
	b.sweepOnce.Do(func() {
		if !b.goTracked(func() { b.sweepLoop(b.ctx) }) {
			b.logDebug("bot stopped, expiry sweep not started")
		}
	})
}

func (b *Bot) selfID() string {
	b.readyMu.Lock()
	defer b.readyMu.Unlock()
	return b.botUserID
}

func (b *Bot) logDebug(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Debug(msg, keyvals...)
	}
}
func (b *Bot) logInfo(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Info(msg, keyvals...)
	}
}
func (b *Bot) logWarn(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Warn(msg, keyvals...)
	}
}
func (b *Bot) logError(msg string, keyvals ...interface{}) {
	if b.log != nil {
		b.log.Error(msg, keyvals...)
	}
}

const permErrorBackoff = 5 * time.Minute

// logPermissionErrorOnce logs a permission-denied error at most once per channel per permErrorBackoff.
func (b *Bot) logPermissionErrorOnce(channelID, guildID string, err error) {
	if b.log == nil {
		return
	}
	b.permErrorMu.Lock()
	last := b.permErrorLastLog[channelID]
	now := time.Now()
	if now.Sub(last) < permErrorBackoff {
		b.permErrorMu.Unlock()
		return
	}
	b.permErrorLastLog[channelID] = now
	b.permErrorMu.Unlock()
	b.log.Warn("permission denied", "channel_id", channelID, "guild_id", guildID, "error", err)
}

// noMentions keeps replies from pinging anyone; user mentions still render.
func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{},
	}
}

// respond sends an ephemeral reply as the initial interaction response.
func (b *Bot) respond(i *discordgo.Interaction, content string) {
	err := b.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: noMentions(),
		},
	})
	if err != nil {
		b.logWarn("failed to respond", "interaction_id", i.ID, "error", err)
	}
}

// deferReply acknowledges i with an ephemeral "thinking" state.
func (b *Bot) deferReply(i *discordgo.Interaction) error {
	return b.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

// editReply replaces the original response of i with content and removes any buttons.
func (b *Bot) editReply(i *discordgo.Interaction, content string) {
	_, err := b.session.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content:         &content,
		Components:      &[]discordgo.MessageComponent{},
		AllowedMentions: noMentions(),
	})
	if err != nil {
		b.logWarn("failed to edit response", "interaction_id", i.ID, "error", err)
	}
}

// isForbidden reports whether err is a Discord 403 response.
func isForbidden(err error) bool {
	return restStatus(err) == http.StatusForbidden
}

// isNotFound reports whether err is a Discord 404 response.
func isNotFound(err error) bool {
	return restStatus(err) == http.StatusNotFound
}

func restStatus(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}
