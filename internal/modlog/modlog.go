// Package modlog persists lock/unlock actions in the moderation_logs table and
// answers the queries the lock commands and the expiry sweep need.
package modlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Actions recorded in the log.
const (
	ActionLock   = "lock"
	ActionUnlock = "unlock"
)

// Scope is where a restriction applies.
type Scope string

const (
	// ScopeChannel restricts chatting through the chat-banned role.
	ScopeChannel Scope = "channel"
	// ScopeServer restricts the member with a guild timeout.
	ScopeServer Scope = "server"
)

// ErrInvalidScope is returned for scopes other than channel and server.
var ErrInvalidScope = errors.New("invalid scope")

// ParseScope validates a scope option value.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeChannel, ScopeServer:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// Entry is one row of moderation_logs.
type Entry struct {
	ID            uint   `gorm:"primaryKey"`
	Action        string `gorm:"size:16;not null;index:idx_modlog_lookup,priority:3"`
	GuildID       string `gorm:"size:32"`
	ModeratorID   string `gorm:"size:32"`
	ModeratorName string `gorm:"size:255"`
	UserID        string `gorm:"size:32;not null;index:idx_modlog_lookup,priority:1"`
	UserName      string `gorm:"size:255"`
	Scope         Scope  `gorm:"size:16;not null;index:idx_modlog_lookup,priority:2"`
	Reason        string `gorm:"type:text"`
	Amount        *int
	Unit          *string `gorm:"size:16"`
	CreatedAt     time.Time
	ExpiresAt     *time.Time `gorm:"index"`
	Resolved      bool       `gorm:"not null;default:false"`
}

// TableName keeps the table name used by existing deployments.
func (Entry) TableName() string {
	return "moderation_logs"
}

// Migrate creates or updates the moderation_logs table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("migrate moderation_logs: %w", err)
	}
	return nil
}

// Store reads and writes moderation log entries.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore returns a Store on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record inserts e. CreatedAt is set to the current UTC time; ExpiresAt is stored in UTC.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if _, err := ParseScope(string(e.Scope)); err != nil {
		return err
	}
	e.ID = 0
	e.CreatedAt = s.now().UTC()
	if e.ExpiresAt != nil {
		t := e.ExpiresAt.UTC()
		e.ExpiresAt = &t
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("record %s %s for user %s: %w", e.Action, e.Scope, e.UserID, err)
	}
	return nil
}

// HasActiveLock reports whether userID has an unresolved lock in scope.
// Server locks additionally count only until they expire; channel locks stay
// active until the sweep or an unlock resolves them.
func (s *Store) HasActiveLock(ctx context.Context, userID string, scope Scope, now time.Time) (bool, error) {
	q := s.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND scope = ? AND action = ? AND resolved = ?", userID, scope, ActionLock, false)
	if scope == ScopeServer {
		q = q.Where("(expires_at IS NULL OR expires_at > ?)", now.UTC())
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check %s lock for user %s: %w", scope, userID, err)
	}
	return count > 0, nil
}

// ExpiredChannelLocks returns unresolved channel locks whose expiry is at or before now.
func (s *Store) ExpiredChannelLocks(ctx context.Context, now time.Time) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("action = ? AND scope = ? AND resolved = ?", ActionLock, ScopeChannel, false).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query expired channel locks: %w", err)
	}
	return entries, nil
}

// Resolve marks the entry with id as resolved.
func (s *Store) Resolve(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).Update("resolved", true).Error; err != nil {
		return fmt.Errorf("resolve entry %d: %w", id, err)
	}
	return nil
}

// ResolveActive marks every unresolved lock of userID in scope as resolved and
// returns how many rows changed.
func (s *Store) ResolveActive(ctx context.Context, userID string, scope Scope) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND scope = ? AND action = ? AND resolved = ?", userID, scope, ActionLock, false).
		Update("resolved", true)
	if res.Error != nil {
		return 0, fmt.Errorf("resolve %s locks for user %s: %w", scope, userID, res.Error)
	}
	return res.RowsAffected, nil
}
