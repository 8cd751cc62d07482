package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// fakeSource is a scripted recognition source.
type fakeSource struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	running  bool
	closed   bool
	events   chan domain.RecognitionEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan domain.RecognitionEvent, 64)}
}

func (s *fakeSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.running = false
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) Events() <-chan domain.RecognitionEvent { return s.events }

func (s *fakeSource) emit(ev domain.RecognitionEvent) { s.events <- ev }

// fail reports err and the stop that follows it, as a real source does.
func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.emit(domain.RecognitionError(err))
	s.emit(domain.ListeningChanged(false))
}

func (s *fakeSource) counts() (starts, stops int, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.running
}

func (s *fakeSource) setStartErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

// fakeSink records narration calls.
type fakeSink struct {
	mu      sync.Mutex
	played  []string
	pauses  int
	resumes int
	playErr error
}

func (s *fakeSink) Play(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.played = append(s.played, text)
	return nil
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	return nil
}

func (s *fakeSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	return nil
}

func (s *fakeSink) plays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

func (s *fakeSink) pauseResume() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses, s.resumes
}

// fakeAnswerer answers with a fixed reply or error.
type fakeAnswerer struct {
	reply string
	err   error
	delay time.Duration
}

func (a fakeAnswerer) Answer(ctx context.Context, c domain.Character, q string) (string, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if a.err != nil {
		return "", a.err
	}
	return c.Name + ": " + a.reply, nil
}

var errBoom = errors.New("boom")

func testRecipe(n int) domain.Recipe {
	r := domain.Recipe{
		ID:       "r1",
		Title:    "Test Stew",
		Unlocked: true,
		Character: domain.Character{
			Name:    "Sam",
			VoiceID: "sam_voice",
		},
	}
	for i := 1; i <= n; i++ {
		r.Steps = append(r.Steps, domain.Step{
			ID:          fmt.Sprintf("s%d", i),
			Order:       i,
			Instruction: fmt.Sprintf("step %d", i),
		})
	}
	return r
}

func setupController(t *testing.T, steps int, opts ...ControllerOption) (*Controller, *fakeSource, *fakeSink) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	src := newFakeSource()
	sink := &fakeSink{}
	ctrl, err := NewController(testRecipe(steps), src, sink, log, opts...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(ctrl.StopSession)
	return ctrl, src, sink
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
