package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
	"github.com/hammamikhairi/storyplated/internal/observe"
)

// FallbackAnswer is returned by AskQuestion when the answerer fails.
const FallbackAnswer = "Sorry, I couldn't process your question."

// Command sources, as reported to metrics.
const (
	sourceVoice  = "voice"
	sourceManual = "manual"
)

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithAnswerer sets the character Q&A provider.
func WithAnswerer(a domain.Answerer) ControllerOption {
	return func(c *Controller) { c.answerer = a }
}

// WithStore publishes every snapshot to the session registry.
func WithStore(s domain.SessionStore) ControllerOption {
	return func(c *Controller) { c.store = s }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithSessionID sets the session ID. A random one is generated otherwise.
func WithSessionID(id string) ControllerOption {
	return func(c *Controller) { c.state.ID = id }
}

// Controller drives one cooking session. It owns the session state and is
// its only writer: every mutation happens under mu, whether it comes from a
// typed command, a recognized voice command or a recognizer event. Events
// are consumed by a single goroutine in emission order.
type Controller struct {
	mu    sync.Mutex
	state domain.SessionState

	character domain.Character
	source    domain.RecognitionSource
	sink      domain.NarrationSink
	answerer  domain.Answerer
	store     domain.SessionStore
	metrics   *observe.Metrics
	log       *logger.Logger
	now       func() time.Time

	// listenMu serializes recognizer restarts, which run outside mu.
	listenMu sync.Mutex

	watchers  map[int]chan domain.SessionState
	nextWatch int

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewController creates an idle session over a validated recipe and starts
// consuming the source's events.
func NewController(recipe domain.Recipe, source domain.RecognitionSource, sink domain.NarrationSink, log *logger.Logger, opts ...ControllerOption) (*Controller, error) {
	if err := recipe.Validate(); err != nil {
		return nil, err
	}
	if source == nil || sink == nil {
		return nil, errors.New("controller needs a recognition source and a narration sink")
	}

	c := &Controller{
		character: recipe.Character,
		source:    source,
		sink:      sink,
		log:       log,
		now:       time.Now,
		watchers:  make(map[int]chan domain.SessionState),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.state.ID == "" {
		c.state.ID = generateID()
	}

	now := c.now()
	c.state.RecipeID = recipe.ID
	c.state.RecipeTitle = recipe.Title
	c.state.Character = recipe.Character
	c.state.Steps = append([]domain.Step(nil), recipe.Steps...)
	c.state.Phase = domain.PhaseIdle
	c.state.StartedAt = now
	c.state.StepStartedAt = now
	c.state.UpdatedAt = now

	c.mu.Lock()
	c.publishLocked()
	c.mu.Unlock()

	go c.consume()
	return c, nil
}

// ID returns the session ID.
func (c *Controller) ID() string {
	return c.state.ID
}

// Character returns the recipe's narrator.
func (c *Controller) Character() domain.Character {
	return c.character
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Watch returns a channel that receives the latest snapshot after every
// change. Slow readers only see the most recent one. The channel is closed
// when the session stops or cancel is called.
func (c *Controller) Watch() (<-chan domain.SessionState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan domain.SessionState, 1)
	ch <- c.state
	if c.state.Phase == domain.PhaseStopped {
		close(ch)
		return ch, func() {}
	}
	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
}

// ── Lifecycle ───────────────────────────────────────────────────

// StartSession narrates the current step and (re)starts listening. Calling
// it on an active session restarts both. A recognizer start failure is
// recorded as the session's last error and returned; narration still runs.
func (c *Controller) StartSession(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase == domain.PhaseStopped {
		c.mu.Unlock()
		return domain.ErrSessionStopped
	}
	c.state.LastError = nil
	c.state.Phase = domain.PhaseActive
	c.narrateLocked()
	c.publishLocked()
	c.mu.Unlock()

	c.log.Info("session %s started on step %d/%d", c.state.ID, c.Snapshot().Cursor+1, len(c.state.Steps))
	return c.restartListening(ctx)
}

// StartListening clears the last error and restarts the recognizer without
// narrating. Use it to re-arm after a command auto-stop or a silence
// timeout.
func (c *Controller) StartListening(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase == domain.PhaseStopped {
		c.mu.Unlock()
		return domain.ErrSessionStopped
	}
	c.state.LastError = nil
	c.publishLocked()
	c.mu.Unlock()

	return c.restartListening(ctx)
}

func (c *Controller) restartListening(ctx context.Context) error {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	c.source.Stop()
	err := c.source.Start(ctx)

	c.mu.Lock()
	if c.state.Phase == domain.PhaseStopped {
		c.mu.Unlock()
		// Stopped while starting; release the microphone again.
		c.source.Stop()
		return domain.ErrSessionStopped
	}
	if err != nil {
		err = classifyStartError(err)
		c.state.Listening = false
		c.state.LastError = err
		c.metrics.RecordRecognitionError(context.Background(), domain.ErrorKind(err))
		c.publishLocked()
		c.mu.Unlock()
		c.log.Warn("session %s: recognizer start failed: %v", c.state.ID, err)
		return err
	}
	c.state.Listening = true
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// classifyStartError keeps permission and engine errors as they are and
// files anything else under ErrEngineStart.
func classifyStartError(err error) error {
	if errors.Is(err, domain.ErrPermission) || errors.Is(err, domain.ErrRecognitionUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEngineStart, err)
}

// StopSession stops the recognizer, pauses narration and ends the session.
// It is safe to call before StartSession and more than once.
func (c *Controller) StopSession() {
	c.stopOnce.Do(func() {
		c.listenMu.Lock()
		c.source.Stop()
		c.listenMu.Unlock()

		close(c.quit)
		<-c.done

		c.mu.Lock()
		if err := c.sink.Pause(); err != nil {
			c.log.Warn("session %s: pausing narration on stop: %v", c.state.ID, err)
		}
		c.state.Listening = false
		c.state.Playing = false
		c.state.PausedAt = time.Time{}
		c.state.Phase = domain.PhaseStopped
		c.publishLocked()
		for id, w := range c.watchers {
			delete(c.watchers, id)
			close(w)
		}
		c.mu.Unlock()

		c.log.Info("session %s stopped", c.state.ID)
	})
}

// Done is closed once the session has stopped consuming events.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// ── Commands ────────────────────────────────────────────────────

// NextStep moves to the next step and narrates it. On the last step it does
// nothing.
func (c *Controller) NextStep() error {
	return c.apply(domain.CommandNext, sourceManual)
}

// PreviousStep moves to the previous step and narrates it. On the first
// step it does nothing.
func (c *Controller) PreviousStep() error {
	return c.apply(domain.CommandPrevious, sourceManual)
}

// RepeatCurrentStep narrates the current step again.
func (c *Controller) RepeatCurrentStep() error {
	return c.apply(domain.CommandRepeat, sourceManual)
}

// PausePlayback pauses narration.
func (c *Controller) PausePlayback() error {
	return c.apply(domain.CommandPause, sourceManual)
}

// ResumePlayback resumes narration.
func (c *Controller) ResumePlayback() error {
	return c.apply(domain.CommandResume, sourceManual)
}

// HandleVoiceCommand dispatches a recognized utterance. Only exact,
// case-insensitive vocabulary words are acted on; anything else is ignored
// and reported as false.
func (c *Controller) HandleVoiceCommand(utterance string) bool {
	cmd, ok := domain.ParseCommand(utterance)
	if !ok {
		c.log.Debug("session %s: ignoring utterance %q", c.state.ID, utterance)
		c.metrics.RecordIgnoredUtterance(context.Background())
		return false
	}
	if err := c.apply(cmd, sourceVoice); err != nil {
		c.log.Debug("session %s: voice command %s: %v", c.state.ID, cmd, err)
		return false
	}
	return true
}

// ClearError acknowledges the last error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.LastError == nil {
		return
	}
	c.state.LastError = nil
	c.publishLocked()
}

func (c *Controller) apply(cmd domain.Command, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == domain.PhaseStopped {
		return domain.ErrSessionStopped
	}
	c.metrics.RecordCommand(context.Background(), source, cmd.String())

	switch cmd {
	case domain.CommandNext:
		if c.state.Cursor >= len(c.state.Steps)-1 {
			c.log.Debug("session %s: already on the last step", c.state.ID)
			return nil
		}
		c.moveLocked(c.state.Cursor + 1)
	case domain.CommandPrevious:
		if c.state.Cursor == 0 {
			c.log.Debug("session %s: already on the first step", c.state.ID)
			return nil
		}
		c.moveLocked(c.state.Cursor - 1)
	case domain.CommandRepeat:
		c.narrateLocked()
	case domain.CommandPause:
		c.state.Playing = false
		if c.state.PausedAt.IsZero() {
			c.state.PausedAt = c.now()
		}
		if err := c.sink.Pause(); err != nil {
			c.narrationFailedLocked("pause", err)
		}
	case domain.CommandResume:
		c.state.Playing = true
		c.state.PausedAt = time.Time{}
		if err := c.sink.Resume(); err != nil {
			c.narrationFailedLocked("resume", err)
		}
	default:
		return fmt.Errorf("unknown command %v", cmd)
	}

	c.publishLocked()
	return nil
}

func (c *Controller) moveLocked(cursor int) {
	c.state.Cursor = cursor
	c.state.StepStartedAt = c.now()
	c.log.Debug("session %s moved to step %d/%d", c.state.ID, cursor+1, len(c.state.Steps))
	c.narrateLocked()
}

// narrateLocked hands the current step to the sink. The sink only queues.
func (c *Controller) narrateLocked() {
	step := c.state.Steps[c.state.Cursor]
	c.state.PausedAt = time.Time{}
	if err := c.sink.Play(step.Instruction); err != nil {
		c.state.Playing = false
		c.narrationFailedLocked("play", err)
		return
	}
	c.state.Playing = true
}

func (c *Controller) narrationFailedLocked(op string, err error) {
	c.state.LastError = fmt.Errorf("%w: %s: %w", domain.ErrNarration, op, err)
	c.metrics.RecordNarrationError(context.Background(), op)
	c.log.Warn("session %s: narration %s failed: %v", c.state.ID, op, err)
}

// ── Questions ───────────────────────────────────────────────────

// AskQuestion asks the recipe's character a question. It does not take the
// session lock and leaves navigation and playback untouched, so it can run
// concurrently with commands and outlive StopSession. On failure the
// fallback answer is returned together with an error wrapping
// ErrQuestionAnswering.
func (c *Controller) AskQuestion(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return FallbackAnswer, fmt.Errorf("%w: empty question", domain.ErrQuestionAnswering)
	}
	if c.answerer == nil {
		return FallbackAnswer, fmt.Errorf("%w: no answerer configured", domain.ErrQuestionAnswering)
	}

	start := time.Now()
	answer, err := c.answerer.Answer(ctx, c.character, question)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty answer")
	}
	if err != nil {
		c.metrics.RecordQuestion(ctx, c.character.Name, "error", time.Since(start))
		c.log.Warn("session %s: question for %s failed: %v", c.state.ID, c.character.Name, err)
		return FallbackAnswer, fmt.Errorf("%w: %w", domain.ErrQuestionAnswering, err)
	}
	c.metrics.RecordQuestion(ctx, c.character.Name, "ok", time.Since(start))
	return answer, nil
}

// ── Events ──────────────────────────────────────────────────────

func (c *Controller) consume() {
	defer close(c.done)
	events := c.source.Events()
	for {
		select {
		case <-c.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev domain.RecognitionEvent) {
	switch ev.Kind {
	case domain.EventRecognized:
		c.mu.Lock()
		if c.state.LastError != nil {
			c.state.LastError = nil
			c.publishLocked()
		}
		c.mu.Unlock()
		c.HandleVoiceCommand(ev.Text)

	case domain.EventListeningChanged:
		c.mu.Lock()
		if c.state.Phase != domain.PhaseStopped && c.state.Listening != ev.Listening {
			c.state.Listening = ev.Listening
			c.publishLocked()
		}
		c.mu.Unlock()

	case domain.EventError:
		if ev.Err == nil {
			return
		}
		c.metrics.RecordRecognitionError(context.Background(), domain.ErrorKind(ev.Err))
		// The source reports its own stop with a ListeningChanged(false)
		// right after the error.
		c.mu.Lock()
		if c.state.Phase != domain.PhaseStopped {
			c.state.LastError = ev.Err
			c.publishLocked()
		}
		c.mu.Unlock()
		c.log.Info("session %s: recognition error: %v", c.state.ID, ev.Err)
	}
}

// publishLocked stamps the state and fans the snapshot out to the registry
// and every watcher.
func (c *Controller) publishLocked() {
	c.state.UpdatedAt = c.now()
	snap := c.state

	if c.store != nil {
		if err := c.store.Save(context.Background(), snap); err != nil {
			c.log.Warn("session %s: saving snapshot: %v", snap.ID, err)
		}
	}
	for _, w := range c.watchers {
		select {
		case <-w:
		default:
		}
		w <- snap
	}
}
