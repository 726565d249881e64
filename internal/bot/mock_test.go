package bot

import (
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/keshon/modbot/internal/allowlist"
	"github.com/keshon/modbot/internal/metrics"
	"github.com/keshon/modbot/internal/modlog"
)

const (
	testGuild   = "guild-1"
	testChannel = "channel-1"
	ownerID     = "owner"
	botID       = "bot"
	modID       = "mod"
	targetID    = "target"
	adminID     = "admin"
	highID      = "high"
	bannedRole  = "role-banned"
)

type timeoutCall struct {
	userID string
	until  *time.Time
	reason string
}

type roleCall struct {
	userID, roleID, reason string
}

// mockSession is an in-memory Session. Messages are kept newest first.
type mockSession struct {
	mu sync.Mutex

	messages    []*discordgo.Message
	fetchErr    error
	deleteErr   error
	bulkErr     error
	fetchLimits []int
	bulkCalls   [][]string
	singleCalls []string

	guild     *discordgo.Guild
	members   map[string]*discordgo.Member
	roleErr   error
	roleAdds  []roleCall
	roleRems  []roleCall
	timeouts  []timeoutCall
	timeoutEr error

	responses  []*discordgo.InteractionResponse
	edits      []*discordgo.WebhookEdit
	replies    []string
	registered []*discordgo.ApplicationCommand
	regAppID   string
	regGuildID string
}

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func newMockSession() *mockSession {
	roles := []*discordgo.Role{
		{ID: "role-admin", Position: 10, Permissions: discordgo.PermissionAdministrator},
		{ID: "role-high", Position: 7},
		{ID: "role-bot", Position: 5},
		{ID: "role-low", Position: 2},
		{ID: bannedRole, Position: 1},
	}
	member := func(id string, roles ...string) *discordgo.Member {
		return &discordgo.Member{GuildID: testGuild, User: &discordgo.User{ID: id, Username: "user-" + id, Discriminator: "0"}, Roles: roles}
	}
	return &mockSession{
		guild: &discordgo.Guild{ID: testGuild, OwnerID: ownerID, Roles: roles},
		members: map[string]*discordgo.Member{
			botID:    member(botID, "role-bot"),
			ownerID:  member(ownerID),
			modID:    member(modID, "role-admin"),
			targetID: member(targetID, "role-low"),
			adminID:  member(adminID, "role-admin"),
			highID:   member(highID, "role-high"),
		},
	}
}

func requestReason(options []discordgo.RequestOption) string {
	cfg := &discordgo.RequestConfig{Request: &http.Request{Header: http.Header{}}}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg.Request.Header.Get("X-Audit-Log-Reason")
}

func (m *mockSession) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	if resp.Data != nil && resp.Data.Content != "" {
		m.replies = append(m.replies, resp.Data.Content)
	}
	return nil
}

func (m *mockSession) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit)
	if edit.Content != nil {
		m.replies = append(m.replies, *edit.Content)
	}
	return &discordgo.Message{}, nil
}

func (m *mockSession) ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regAppID, m.regGuildID, m.registered = appID, guildID, cmds
	return cmds, nil
}

func (m *mockSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchLimits = append(m.fetchLimits, limit)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	start := 0
	if beforeID != "" {
		start = len(m.messages)
		for n, msg := range m.messages {
			if msg.ID == beforeID {
				start = n + 1
				break
			}
		}
	}
	end := min(start+limit, len(m.messages))
	return m.messages[start:end], nil
}

func (m *mockSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.singleCalls = append(m.singleCalls, messageID)
	return m.deleteErr
}

func (m *mockSession) ChannelMessagesBulkDelete(channelID string, messages []string, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls = append(m.bulkCalls, append([]string(nil), messages...))
	return m.bulkErr
}

func (m *mockSession) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if guildID != testGuild {
		return nil, restError(http.StatusNotFound)
	}
	return m.guild, nil
}

func (m *mockSession) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	if guildID != testGuild {
		return nil, restError(http.StatusNotFound)
	}
	return m.guild.Roles, nil
}

func (m *mockSession) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[userID]
	if guildID != testGuild || !ok {
		return nil, restError(http.StatusNotFound)
	}
	cp := *member
	cp.Roles = append([]string(nil), member.Roles...)
	return &cp, nil
}

func (m *mockSession) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleAdds = append(m.roleAdds, roleCall{userID, roleID, requestReason(options)})
	if m.roleErr != nil {
		return m.roleErr
	}
	if member, ok := m.members[userID]; ok {
		member.Roles = append(member.Roles, roleID)
	}
	return nil
}

func (m *mockSession) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleRems = append(m.roleRems, roleCall{userID, roleID, requestReason(options)})
	if m.roleErr != nil {
		return m.roleErr
	}
	if member, ok := m.members[userID]; ok {
		kept := member.Roles[:0]
		for _, id := range member.Roles {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		member.Roles = kept
	}
	return nil
}

func (m *mockSession) GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = append(m.timeouts, timeoutCall{userID, until, requestReason(options)})
	return m.timeoutEr
}

func (m *mockSession) lastReply() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return ""
	}
	return m.replies[len(m.replies)-1]
}

func (m *mockSession) replyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

// newTestBot wires a Bot to s with a temporary sqlite database and allow-list file.
func newTestBot(t *testing.T, s *mockSession) (*Bot, *prometheus.Registry) {
	t.Helper()
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping: database requires CGO/sqlite: %v", err)
	}
	if err := modlog.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	reg := prometheus.NewRegistry()
	b := NewBot(s, Options{
		AllowList:        allowlist.New(filepath.Join(dir, "clear_users.txt")),
		ModLog:           modlog.NewStore(db),
		Metrics:          metrics.New(reg),
		GuildID:          testGuild,
		ChatBannedRoleID: bannedRole,
		SweepInterval:    time.Hour,
		ConfirmTimeout:   time.Minute,
	})
	b.botUserID = botID
	t.Cleanup(b.Stop)
	return b, reg
}

func commandEvent(name, invokerID string, perms int64, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction-" + name,
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   testGuild,
		ChannelID: testChannel,
		Locale:    discordgo.EnglishUS,
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: invokerID, Username: "user-" + invokerID, Discriminator: "0"},
			Permissions: perms,
		},
		Data: discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func buttonEvent(customID, invokerID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "press-" + customID,
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   testGuild,
		ChannelID: testChannel,
		Locale:    discordgo.EnglishUS,
		Member:    &discordgo.Member{User: &discordgo.User{ID: invokerID}},
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: discordgo.ButtonComponent},
	}}
}

func userOption(id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: optUser, Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func intOption(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

func stringOption(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

// counterValue reads one sample from reg; labels must match exactly.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metricLoop:
		for _, m := range f.GetMetric() {
			if len(m.GetLabel()) != len(labels) {
				continue
			}
			for _, l := range m.GetLabel() {
				if labels[l.GetName()] != l.GetValue() {
					continue metricLoop
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
