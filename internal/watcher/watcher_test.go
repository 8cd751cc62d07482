package watcher

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
	"github.com/hammamikhairi/storyplated/internal/storage"
)

// collectingNotifier captures messages for assertions.
type collectingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *collectingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *collectingNotifier) NotifyUrgent(_ context.Context, msg string) error {
	return n.Notify(context.Background(), msg)
}

func (n *collectingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func (n *collectingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func testSession(id string) domain.SessionState {
	return domain.SessionState{
		ID:          id,
		RecipeID:    "1",
		RecipeTitle: "Hobbit's Second Breakfast",
		Character:   domain.Character{Name: "Samwise Gamgee"},
		Steps: []domain.Step{
			{ID: "s1", Order: 1, Instruction: "Crack the eggs", Duration: 2 * time.Minute},
			{ID: "s2", Order: 2, Instruction: "Taste it"},
		},
		Phase:         domain.PhaseActive,
		Playing:       true,
		StartedAt:     epoch,
		StepStartedAt: epoch,
	}
}

func setupWatcher(t *testing.T, sessions ...domain.SessionState) (*Watcher, *collectingNotifier, *time.Time) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	for _, s := range sessions {
		if err := store.Save(context.Background(), s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	now := epoch
	n := &collectingNotifier{}
	w := New(store, n, log, WithClock(func() time.Time { return now }))
	return w, n, &now
}

func TestWatcherOverdueStep(t *testing.T) {
	w, n, now := setupWatcher(t, testSession("overdue"))
	ctx := context.Background()

	*now = epoch.Add(3 * time.Minute)
	w.check(ctx)
	if n.count() != 0 {
		t.Fatalf("nudged before twice the step duration: %q", n.last())
	}

	*now = epoch.Add(5 * time.Minute)
	w.check(ctx)
	if n.count() != 1 {
		t.Fatalf("expected 1 nudge, got %d", n.count())
	}
	msg := n.last()
	if !strings.HasPrefix(msg, "Samwise Gamgee: ") || !strings.Contains(msg, "step 1") {
		t.Fatalf("unexpected nudge %q", msg)
	}

	// Same condition on the next cycle stays quiet.
	*now = epoch.Add(6 * time.Minute)
	w.check(ctx)
	if n.count() != 1 {
		t.Fatalf("nudge repeated: %d messages", n.count())
	}
}

func TestWatcherManualStep(t *testing.T) {
	s := testSession("manual")
	s.Cursor = 1
	w, n, now := setupWatcher(t, s)

	*now = epoch.Add(DefaultManualStepNudge + time.Second)
	w.check(context.Background())
	if n.count() != 1 || !strings.Contains(n.last(), "Still on step 2") {
		t.Fatalf("unexpected messages %d %q", n.count(), n.last())
	}
}

func TestWatcherPausedSession(t *testing.T) {
	s := testSession("paused")
	s.Playing = false
	s.PausedAt = epoch.Add(time.Minute)
	w, n, now := setupWatcher(t, s)
	ctx := context.Background()

	*now = s.PausedAt.Add(DefaultPauseNudge - time.Second)
	w.check(ctx)
	if n.count() != 0 {
		t.Fatalf("nudged too early: %q", n.last())
	}

	*now = s.PausedAt.Add(DefaultPauseNudge + time.Minute)
	w.check(ctx)
	if n.count() != 1 || !strings.Contains(n.last(), "resume") {
		t.Fatalf("unexpected messages %d %q", n.count(), n.last())
	}
}

func TestWatcherIgnoresInactiveSessions(t *testing.T) {
	idle := testSession("idle")
	idle.Phase = domain.PhaseIdle
	stopped := testSession("stopped")
	stopped.Phase = domain.PhaseStopped
	w, n, now := setupWatcher(t, idle, stopped)

	*now = epoch.Add(time.Hour)
	w.check(context.Background())
	if n.count() != 0 {
		t.Fatalf("nudged inactive session: %q", n.last())
	}
}

func TestWatcherRun(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	s := testSession("run")
	s.StepStartedAt = time.Now().Add(-time.Hour)
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	n := &collectingNotifier{}
	w := New(store, n, log, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected exactly 1 nudge, got %d", n.count())
	}
}
