package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// scriptedRecorder returns one scripted transcription per Record call and
// silence once the script runs out.
type scriptedRecorder struct {
	mu     sync.Mutex
	script []string
	err    error
	block  bool
	calls  int
}

func (r *scriptedRecorder) Record(ctx context.Context, d time.Duration) (string, error) {
	r.mu.Lock()
	r.calls++
	var text string
	if len(r.script) > 0 {
		text, r.script = r.script[0], r.script[1:]
	}
	err, block := r.err, r.block
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", nil
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return "", nil
	}
	return text, err
}

func (r *scriptedRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeGuard struct{ speaking atomic.Bool }

func (g *fakeGuard) IsSpeaking() bool { return g.speaking.Load() }

func newTestEar(rec Recorder, opts ...EarOption) *Ear {
	opts = append([]EarOption{
		WithChunkDuration(5 * time.Millisecond),
		WithSilenceWindow(60 * time.Millisecond),
	}, opts...)
	return NewEar(rec, logger.New(logger.LevelOff, nil), opts...)
}

func nextEvent(t *testing.T, e *Ear) domain.RecognitionEvent {
	t.Helper()
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recognition event")
		return domain.RecognitionEvent{}
	}
}

func expectListening(t *testing.T, e *Ear, want bool) {
	t.Helper()
	ev := nextEvent(t, e)
	if ev.Kind != domain.EventListeningChanged || ev.Listening != want {
		t.Fatalf("expected listening=%v, got %+v", want, ev)
	}
}

func expectNoEvent(t *testing.T, e *Ear) {
	t.Helper()
	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func waitStopped(t *testing.T, e *Ear) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("ear still listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEarVocabularyWordStopsListening(t *testing.T) {
	e := newTestEar(&scriptedRecorder{script: []string{"", "Next."}})
	defer e.Stop()

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectListening(t, e, true)
	ev := nextEvent(t, e)
	if ev.Kind != domain.EventRecognized || ev.Text != "next" {
		t.Fatalf("expected recognized \"next\", got %+v", ev)
	}
	expectListening(t, e, false)
	waitStopped(t, e)
	expectNoEvent(t, e)
}

func TestEarFreeSpeechKeepsListening(t *testing.T) {
	rec := &scriptedRecorder{script: []string{"How long do I fry the bacon?"}}
	e := newTestEar(rec)
	defer e.Stop()

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectListening(t, e, true)
	ev := nextEvent(t, e)
	if ev.Kind != domain.EventRecognized || ev.Text != "how long do i fry the bacon" {
		t.Fatalf("unexpected event %+v", ev)
	}
	// Free speech resets the silence window; the next thing is the timeout.
	ev = nextEvent(t, e)
	if ev.Kind != domain.EventError || !errors.Is(ev.Err, domain.ErrNoSpeechDetected) {
		t.Fatalf("expected no-speech error, got %+v", ev)
	}
	expectListening(t, e, false)
	waitStopped(t, e)
	if rec.callCount() < 2 {
		t.Fatalf("expected recording to continue after free speech, got %d calls", rec.callCount())
	}
}

func TestEarSilenceWindow(t *testing.T) {
	e := newTestEar(&scriptedRecorder{})
	defer e.Stop()

	start := time.Now()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectListening(t, e, true)
	ev := nextEvent(t, e)
	if ev.Kind != domain.EventError || !errors.Is(ev.Err, domain.ErrNoSpeechDetected) {
		t.Fatalf("expected no-speech error, got %+v", ev)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("silence error after %s, before the window", elapsed)
	}
	expectListening(t, e, false)
	waitStopped(t, e)

	// A stopped ear can be started again.
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !e.Listening() {
		t.Fatal("expected listening after restart")
	}
	expectListening(t, e, true)
}

func TestEarRecorderFailure(t *testing.T) {
	e := newTestEar(&scriptedRecorder{err: errors.New("mic unplugged")})
	defer e.Stop()

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectListening(t, e, true)
	ev := nextEvent(t, e)
	if ev.Kind != domain.EventError || !errors.Is(ev.Err, domain.ErrRecognitionUnavailable) {
		t.Fatalf("expected engine error, got %+v", ev)
	}
	expectListening(t, e, false)
	waitStopped(t, e)
}

func TestEarPreflightFailure(t *testing.T) {
	rec := &scriptedRecorder{}
	e := newTestEar(rec, WithPreflight(func(context.Context) error {
		return domain.ErrPermissionDenied
	}))

	err := e.Start(context.Background())
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if e.Listening() {
		t.Fatal("ear listening after failed start")
	}
	if rec.callCount() != 0 {
		t.Fatal("recorded despite failed preflight")
	}
	expectNoEvent(t, e)
}

func TestEarStop(t *testing.T) {
	rec := &scriptedRecorder{block: true}
	e := newTestEar(rec, WithSilenceWindow(time.Hour))

	e.Stop() // before start

	expectNoEvent(t, e)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectListening(t, e, true)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	e.Stop()
	if e.Listening() {
		t.Fatal("still listening after Stop")
	}
	// Queued before Stop returned, so no waiting is needed.
	select {
	case ev := <-e.Events():
		if ev.Kind != domain.EventListeningChanged || ev.Listening {
			t.Fatalf("expected listening=false after Stop, got %+v", ev)
		}
	default:
		t.Fatal("Stop returned before reporting listening=false")
	}

	e.Stop()
	expectNoEvent(t, e)
}

func TestEarEchoGuard(t *testing.T) {
	guard := &fakeGuard{}
	guard.speaking.Store(true)
	rec := &scriptedRecorder{script: []string{"pause"}}
	e := newTestEar(rec, WithEchoGuard(guard))
	defer e.Stop()

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectListening(t, e, true)
	time.Sleep(150 * time.Millisecond) // well past the silence window
	if n := rec.callCount(); n != 0 {
		t.Fatalf("recorded %d chunks over narration", n)
	}
	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event while narrator speaking: %+v", ev)
	default:
	}

	guard.speaking.Store(false)
	ev := nextEvent(t, e)
	if ev.Kind != domain.EventRecognized || ev.Text != "pause" {
		t.Fatalf("expected recognized \"pause\", got %+v", ev)
	}
}

func TestCleanTranscription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[BLANK_AUDIO]", ""},
		{"  Next.\n", "Next."},
		{"(keyboard clicking) pause", "pause"},
		{"[00:00:00.000 --> 00:00:01.000]  Repeat.", "Repeat."},
		{"Thank you.", ""},
		{"resume [Music]", "resume"},
		{"what goes\nin the pan", "what goes in the pan"},
	}
	for _, tt := range tests {
		if got := cleanTranscription(tt.in); got != tt.want {
			t.Errorf("cleanTranscription(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeUtterance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Next.", "next"},
		{"  PAUSE!  ", "pause"},
		{"what's next?", "what's next"},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := normalizeUtterance(tt.in); got != tt.want {
			t.Errorf("normalizeUtterance(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifyCaptureError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"Access denied", domain.ErrPermissionDenied},
		{"operation not permitted", domain.ErrRestricted},
		{"missing permission for microphone", domain.ErrNotAuthorized},
		{"device busy", domain.ErrEngineStart},
	}
	for _, tt := range tests {
		if err := classifyCaptureError(errors.New(tt.msg)); !errors.Is(err, tt.want) {
			t.Errorf("classifyCaptureError(%q) = %v, want %v", tt.msg, err, tt.want)
		}
	}
}
