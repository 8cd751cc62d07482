package speech

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

var _ domain.RecognitionSource = (*Ear)(nil)

// Recorder captures one chunk of audio and returns its transcription.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) (string, error)
}

// EchoGuard reports whether the speaker is playing narration, in which
// case the microphone is hearing ourselves.
type EchoGuard interface {
	IsSpeaking() bool
}

// Preflight is a check run by Start before the microphone is opened.
type Preflight func(ctx context.Context) error

// envAnnotation matches whisper environmental annotations like
// "(keyboard clicking)", "[laughter]", "(speaking French)", etc.
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z\s_]*[\)\]]`)

// EarOption configures the Ear.
type EarOption func(*Ear)

// WithChunkDuration sets how long each recorded chunk lasts.
func WithChunkDuration(d time.Duration) EarOption {
	return func(e *Ear) { e.chunk = d }
}

// WithSilenceWindow sets how long the ear waits for an utterance before
// giving up with ErrNoSpeechDetected.
func WithSilenceWindow(d time.Duration) EarOption {
	return func(e *Ear) { e.silence = d }
}

// WithPreflight replaces the checks run on Start.
func WithPreflight(checks ...Preflight) EarOption {
	return func(e *Ear) { e.preflight = checks }
}

// WithEchoGuard makes the ear ignore audio captured while g is speaking.
func WithEchoGuard(g EchoGuard) EarOption {
	return func(e *Ear) { e.guard = g }
}

// Ear is the recognition source: it records short chunks, transcribes
// them and emits one event per utterance.
//
// Listening is one-shot. A vocabulary word is emitted and the ear stops;
// other speech is emitted and listening continues. Nothing recognized
// within the silence window ends listening with ErrNoSpeechDetected.
//
// Every run of the loop is bracketed by ListeningChanged(true) and
// ListeningChanged(false), whatever ends it: a command, silence, a
// recorder failure or Stop. An error event always precedes the false.
type Ear struct {
	rec       Recorder
	log       *logger.Logger
	preflight []Preflight
	guard     EchoGuard
	chunk     time.Duration
	silence   time.Duration

	events chan domain.RecognitionEvent

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEar creates a recognition source that records through rec.
func NewEar(rec Recorder, log *logger.Logger, opts ...EarOption) *Ear {
	e := &Ear{
		rec:     rec,
		log:     log,
		chunk:   DefaultChunkDuration,
		silence: DefaultSilenceWindow,
		events:  make(chan domain.RecognitionEvent, 32),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the event stream. It is never closed.
func (e *Ear) Events() <-chan domain.RecognitionEvent {
	return e.events
}

// Start begins listening. It is a no-op while already listening.
func (e *Ear) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running() {
		return nil
	}
	if e.cancel != nil {
		e.cancel() // previous loop stopped itself
	}
	for _, check := range e.preflight {
		if err := check(ctx); err != nil {
			return err
		}
	}

	// The listening loop outlives the caller's context; Stop ends it.
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.listen(runCtx, e.done)

	e.log.Info("ear: listening (chunk=%s, silence=%s)", e.chunk, e.silence)
	return nil
}

// Stop ends listening and waits for the recorder to release the
// microphone. The ListeningChanged(false) of the run it ends is queued
// before Stop returns. Safe to call at any time.
func (e *Ear) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.log.Debug("ear: stopped")
}

// Listening reports whether the listening loop is active.
func (e *Ear) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running()
}

func (e *Ear) running() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Ear) speaking() bool {
	return e.guard != nil && e.guard.IsSpeaking()
}

func (e *Ear) listen(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.emitState(false)
	e.emitState(true)

	deadline := time.Now().Add(e.silence)
	for {
		if ctx.Err() != nil {
			return
		}

		// Echo prevention: don't record while narration is audible, and
		// don't count that time against the user.
		if e.speaking() {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			deadline = time.Now().Add(e.silence)
			continue
		}

		if !time.Now().Before(deadline) {
			e.log.Debug("ear: silence window expired")
			e.emit(ctx, domain.RecognitionError(domain.ErrNoSpeechDetected))
			return
		}

		text, err := e.rec.Record(ctx, e.chunk)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			e.log.Error("ear: recording failed: %v", err)
			e.emit(ctx, domain.RecognitionError(fmt.Errorf("%w: %w", domain.ErrRecognitionUnavailable, err)))
			return
		}

		// The narrator started during the recording; the chunk is
		// contaminated.
		if e.speaking() {
			e.log.Debug("ear: discarding chunk recorded over narration")
			deadline = time.Now().Add(e.silence)
			continue
		}

		text = normalizeUtterance(cleanTranscription(text))
		if text == "" {
			continue
		}

		e.log.Info("ear: heard %q", text)
		e.emit(ctx, domain.Recognized(text))

		if domain.IsVocabulary(text) {
			return
		}
		deadline = time.Now().Add(e.silence)
	}
}

// emit delivers ev in order. A consumer that stalls for more than two
// seconds loses the event.
func (e *Ear) emit(ctx context.Context, ev domain.RecognitionEvent) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		e.log.Warn("ear: dropped %v event, consumer not reading", ev.Kind)
	}
}

// emitState delivers a listening flip. Flips ignore the loop context so a
// run ended by Stop still reports both of them.
func (e *Ear) emitState(listening bool) {
	ev := domain.ListeningChanged(listening)
	select {
	case e.events <- ev:
	case <-time.After(2 * time.Second):
		e.log.Warn("ear: dropped %v event, consumer not reading", ev.Kind)
	}
}

// normalizeUtterance lowercases and trims surrounding punctuation so
// "Next." matches the vocabulary.
func normalizeUtterance(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// cleanTranscription strips whitespace, normalizes newlines, and
// removes whisper artifacts like "[BLANK_AUDIO]" or "(keyboard clicking)"
// from anywhere in the text.
func cleanTranscription(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)

	// Whisper timestamp prefixes like "[00:00:00.000 --> 00:00:05.000]".
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && idx < 40 && strings.Contains(s[:idx], "-->") {
			s = strings.TrimSpace(s[idx+1:])
		}
	}

	s = envAnnotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	// If what remains is just a known hallucination, discard entirely.
	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if h == lower {
			return ""
		}
	}
	return s
}

var hallucinations = []string{
	"...",
	"you",
	"thank you.",
	"thanks for watching!",
	"thank you for watching.",
	"bye.",
	"the end.",
}
