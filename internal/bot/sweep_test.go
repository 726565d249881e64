package bot

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modbot/internal/i18n"
	"github.com/keshon/modbot/internal/modlog"
)

func lockFor(t *testing.T, bot *Bot, s *mockSession, scope string, minutes int) {
	t.Helper()
	bot.now = func() time.Time { return testNow }
	bot.InteractionCreate(nil, lockEvent(cmdLock, scope, targetID, intOption(optAmount, minutes), stringOption(optUnit, unitMinutes)))
	if s.replyCount() == 0 {
		t.Fatal("lock did not reply")
	}
}

func expiredCount(t *testing.T, bot *Bot, at time.Time) int {
	t.Helper()
	rows, err := bot.modLog.ExpiredChannelLocks(context.Background(), at)
	if err != nil {
		t.Fatal(err)
	}
	return len(rows)
}

func TestSweepLiftsExpiredLock(t *testing.T) {
	s := newMockSession()
	bot, reg := newTestBot(t, s)
	lockFor(t, bot, s, "channel", 10)

	later := testNow.Add(11 * time.Minute)
	bot.now = func() time.Time { return later }
	bot.sweep(context.Background())

	if len(s.roleRems) != 1 || s.roleRems[0] != (roleCall{targetID, bannedRole, i18n.AutoUnlockReason}) {
		t.Fatalf("role removals = %v", s.roleRems)
	}
	if n := expiredCount(t, bot, later); n != 0 {
		t.Errorf("%d expired locks left after sweep", n)
	}
	labels := map[string]string{"scope": "channel", "source": "sweep"}
	if got := counterValue(t, reg, "modbot_unlocks_total", labels); got != 1 {
		t.Errorf("unlocks_total%v = %v, want 1", labels, got)
	}
	if got := counterValue(t, reg, "modbot_sweep_runs_total", nil); got != 1 {
		t.Errorf("sweep_runs_total = %v, want 1", got)
	}

	// A second pass has nothing to do.
	bot.sweep(context.Background())
	if len(s.roleRems) != 1 {
		t.Errorf("role removed twice")
	}
}

func TestSweepSkipsUnexpiredAndServerLocks(t *testing.T) {
	s := newMockSession()
	bot, _ := newTestBot(t, s)
	lockFor(t, bot, s, "channel", 30)
	s.members[highID].Roles = []string{"role-low"}
	bot.now = func() time.Time { return testNow }
	bot.InteractionCreate(nil, lockEvent(cmdLock, "server", highID, intOption(optAmount, 5), stringOption(optUnit, unitMinutes)))
	if len(s.timeouts) != 1 {
		t.Fatalf("timeouts = %v", s.timeouts)
	}

	bot.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	bot.sweep(context.Background())

	if len(s.roleRems) != 0 || len(s.timeouts) != 1 {
		t.Errorf("sweep touched members: roles=%v timeouts=%v", s.roleRems, s.timeouts)
	}
	active, err := bot.modLog.HasActiveLock(context.Background(), targetID, modlog.ScopeChannel, testNow)
	if err != nil || !active {
		t.Errorf("unexpired lock resolved: %v, %v", active, err)
	}
}

func TestSweepKeepsLockOfMissingMember(t *testing.T) {
	s := newMockSession()
	bot, reg := newTestBot(t, s)
	lockFor(t, bot, s, "channel", 10)
	delete(s.members, targetID)

	later := testNow.Add(time.Hour)
	bot.now = func() time.Time { return later }
	bot.sweep(context.Background())

	if n := expiredCount(t, bot, later); n != 1 {
		t.Errorf("expired locks = %d, want the row kept", n)
	}
	if got := counterValue(t, reg, "modbot_sweep_errors_total", nil); got != 0 {
		t.Errorf("sweep_errors_total = %v, want 0", got)
	}
}

func TestSweepResolvesLockWithoutRole(t *testing.T) {
	s := newMockSession()
	bot, _ := newTestBot(t, s)
	lockFor(t, bot, s, "channel", 10)
	s.members[targetID].Roles = []string{"role-low"}

	later := testNow.Add(time.Hour)
	bot.now = func() time.Time { return later }
	bot.sweep(context.Background())

	if len(s.roleRems) != 0 {
		t.Errorf("role removals = %v, want none", s.roleRems)
	}
	if n := expiredCount(t, bot, later); n != 0 {
		t.Errorf("expired locks = %d, want 0", n)
	}
}

func TestSweepRoleRemovalFailure(t *testing.T) {
	s := newMockSession()
	bot, reg := newTestBot(t, s)
	lockFor(t, bot, s, "channel", 10)
	s.roleErr = restError(500)

	bot.now = func() time.Time { return testNow.Add(time.Hour) }
	bot.sweep(context.Background())

	if got := counterValue(t, reg, "modbot_sweep_errors_total", nil); got != 1 {
		t.Errorf("sweep_errors_total = %v, want 1", got)
	}
}

func TestSweepFallsBackToConfiguredGuild(t *testing.T) {
	s := newMockSession()
	bot, _ := newTestBot(t, s)
	s.members[targetID].Roles = append(s.members[targetID].Roles, bannedRole)

	expires := testNow.Add(-time.Minute)
	err := bot.modLog.Record(context.Background(), &modlog.Entry{
		Action:    modlog.ActionLock,
		UserID:    targetID,
		Scope:     modlog.ScopeChannel,
		ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatal(err)
	}

	bot.now = func() time.Time { return testNow }
	bot.sweep(context.Background())
	if len(s.roleRems) != 1 {
		t.Errorf("role removals = %v, want one", s.roleRems)
	}
}

func TestReadyStartsSweep(t *testing.T) {
	s := newMockSession()
	bot, _ := newTestBot(t, s)
	lockFor(t, bot, s, "channel", 1)
	bot.now = func() time.Time { return testNow.Add(time.Hour) }

	bot.Ready(nil, &discordgo.Ready{User: &discordgo.User{ID: botID}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		removed := len(s.roleRems)
		s.mu.Unlock()
		if removed == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweep did not run after ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bot.Stop()
}
