// Package watcher nudges the cook when a session looks forgotten: a step
// held far longer than it should take, or narration paused for a while.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Defaults for the nudge thresholds.
const (
	DefaultInterval   = time.Minute
	DefaultPauseNudge = 5 * time.Minute
	// DefaultManualStepNudge applies to steps without a duration.
	DefaultManualStepNudge = 3 * time.Minute
)

// Option configures the watcher.
type Option func(*Watcher)

// WithInterval sets how often the watcher checks session state.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithPauseNudge sets how long a session may stay paused before a nudge.
func WithPauseNudge(d time.Duration) Option {
	return func(w *Watcher) {
		w.pauseNudge = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		w.now = now
	}
}

type nudgeKind int

const (
	nudgePaused nudgeKind = iota + 1
	nudgeOverdue
	nudgeManual
)

// nudgeKey identifies one nudge so it is said once, not every cycle.
type nudgeKey struct {
	kind  nudgeKind
	since time.Time
}

// Watcher periodically inspects every active session in the store and
// speaks up, in the session character's name, when something looks off.
type Watcher struct {
	store      domain.SessionStore
	notifier   domain.Notifier
	log        *logger.Logger
	interval   time.Duration
	pauseNudge time.Duration
	now        func() time.Time

	nudged map[string]nudgeKey // session ID -> last nudge
}

// New creates a watcher with the given dependencies.
func New(store domain.SessionStore, notifier domain.Notifier, log *logger.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		store:      store,
		notifier:   notifier,
		log:        log,
		interval:   DefaultInterval,
		pauseNudge: DefaultPauseNudge,
		now:        time.Now,
		nudged:     make(map[string]nudgeKey),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the watcher loop. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("watcher started (interval=%s)", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return nil
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check runs one watcher cycle across all active sessions.
func (w *Watcher) check(ctx context.Context) {
	sessions, err := w.store.ListActive(ctx)
	if err != nil {
		w.log.Error("watcher: listing active sessions: %v", err)
		return
	}

	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		seen[s.ID] = true
		w.inspect(ctx, s)
	}
	for id := range w.nudged {
		if !seen[id] {
			delete(w.nudged, id)
		}
	}
}

// inspect examines a single session and decides what to say.
func (w *Watcher) inspect(ctx context.Context, s domain.SessionState) {
	if s.Phase != domain.PhaseActive || s.Total() == 0 {
		return
	}

	key, msg := w.buildMessage(s, w.now())
	if msg == "" {
		w.log.Debug("watcher: session %s step %d/%d, nothing to report", s.ID, s.Cursor+1, s.Total())
		return
	}
	if w.nudged[s.ID] == key {
		return
	}
	w.nudged[s.ID] = key

	if s.Character.Name != "" {
		msg = s.Character.Name + ": " + msg
	}
	if err := w.notifier.Notify(ctx, msg); err != nil {
		w.log.Error("watcher: notify: %v", err)
	}
}

// buildMessage decides what to tell the user based on current state.
func (w *Watcher) buildMessage(s domain.SessionState, now time.Time) (nudgeKey, string) {
	step := s.CurrentStep()

	if !s.Playing && !s.PausedAt.IsZero() {
		paused := now.Sub(s.PausedAt)
		if paused <= w.pauseNudge {
			return nudgeKey{}, ""
		}
		return nudgeKey{nudgePaused, s.PausedAt}, fmt.Sprintf(
			"We've been paused on step %d of %d for %s. Say resume when you're ready.",
			step.Order, s.Total(), paused.Round(time.Second))
	}

	if s.StepStartedAt.IsZero() {
		return nudgeKey{}, ""
	}
	onStepFor := now.Sub(s.StepStartedAt)

	// Step has an expected duration and the user is way over it.
	if step.Duration > 0 && onStepFor > step.Duration*2 {
		return nudgeKey{nudgeOverdue, s.StepStartedAt}, fmt.Sprintf(
			"You've been on step %d for %s (expected about %s). Everything okay?",
			step.Order, onStepFor.Round(time.Second), step.Duration.Round(time.Second))
	}

	if step.Duration == 0 && onStepFor > DefaultManualStepNudge {
		return nudgeKey{nudgeManual, s.StepStartedAt}, fmt.Sprintf(
			"Still on step %d (%s). Take your time, but don't forget about it.",
			step.Order, onStepFor.Round(time.Second))
	}

	return nudgeKey{}, ""
}
