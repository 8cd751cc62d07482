package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
	"github.com/hammamikhairi/storyplated/internal/recipe"
	"github.com/hammamikhairi/storyplated/internal/storage"
)

type engineFixture struct {
	eng     *Engine
	store   *storage.MemoryStore
	sources []*fakeSource
	voices  []string
}

func setupEngine(t *testing.T) (*engineFixture, context.Context) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	recipes := recipe.NewMemorySource(log, recipe.WithLatency(0))
	f := &engineFixture{store: storage.NewMemoryStore(log)}
	f.eng = New(recipes, f.store, log,
		WithRecognizer(func(domain.NarrationSink) (domain.RecognitionSource, error) {
			src := newFakeSource()
			f.sources = append(f.sources, src)
			return src, nil
		}),
		WithNarrator(func(r domain.Recipe) (domain.NarrationSink, error) {
			f.voices = append(f.voices, r.Character.VoiceID)
			return &fakeSink{}, nil
		}),
		WithQuestionAnswerer(fakeAnswerer{reply: "hello"}),
	)
	t.Cleanup(func() { f.eng.StopAll(context.Background()) })
	return f, context.Background()
}

func TestEngineStartSession(t *testing.T) {
	f, ctx := setupEngine(t)

	tests := []struct {
		name     string
		recipeID string
		wantErr  error
	}{
		{"unlocked recipe", "1", nil},
		{"locked recipe", "2", domain.ErrRecipeLocked},
		{"unknown recipe", "nonexistent", domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, err := f.eng.StartSession(ctx, tt.recipeID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			st := ctrl.Snapshot()
			if st.Phase != domain.PhaseActive || !st.Playing || !st.Listening {
				t.Fatalf("unexpected state %+v", st)
			}
			if st.RecipeTitle != "Hobbit's Second Breakfast" {
				t.Fatalf("title = %q", st.RecipeTitle)
			}
		})
	}

	if len(f.voices) != 1 || f.voices[0] != "sam_voice" {
		t.Fatalf("narrator voices = %v", f.voices)
	}
}

func TestEngineRegistersAndEndsSessions(t *testing.T) {
	f, ctx := setupEngine(t)

	ctrl, err := f.eng.StartSession(ctx, "1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := f.eng.Session(ctrl.ID())
	if err != nil || got != ctrl {
		t.Fatalf("Session(%s) = %v, %v", ctrl.ID(), got, err)
	}

	active, _ := f.store.ListActive(ctx)
	if len(active) != 1 {
		t.Fatalf("expected 1 active session in store, got %d", len(active))
	}

	if err := f.eng.EndSession(ctx, ctrl.ID()); err != nil {
		t.Fatalf("end: %v", err)
	}
	if ctrl.Snapshot().Phase != domain.PhaseStopped {
		t.Fatal("session not stopped")
	}
	if _, _, running := f.sources[0].counts(); running {
		t.Fatal("recognizer still running")
	}
	if !f.sources[0].closed {
		t.Fatal("recognizer not closed")
	}
	if _, err := f.eng.Session(ctrl.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.store.Load(ctx, ctrl.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("store still holds session: %v", err)
	}
	if err := f.eng.EndSession(ctx, ctrl.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second end: expected ErrNotFound, got %v", err)
	}
}

func TestEngineStopAll(t *testing.T) {
	f, ctx := setupEngine(t)

	var ctrls []*Controller
	for i := 0; i < 3; i++ {
		c, err := f.eng.StartSession(ctx, "1")
		if err != nil {
			t.Fatal(err)
		}
		ctrls = append(ctrls, c)
	}
	f.eng.StopAll(ctx)

	for _, c := range ctrls {
		if c.Snapshot().Phase != domain.PhaseStopped {
			t.Fatalf("session %s not stopped", c.ID())
		}
	}
	if ids := f.eng.Sessions(); len(ids) != 0 {
		t.Fatalf("sessions left: %v", ids)
	}
}

func TestEngineSessionAnswersQuestions(t *testing.T) {
	f, ctx := setupEngine(t)
	ctrl, err := f.eng.StartSession(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	answer, err := ctrl.AskQuestion(ctx, "more bacon?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer != "Samwise Gamgee: hello" {
		t.Fatalf("answer = %q", answer)
	}
}

func TestEngineStartsWithoutVoiceOnRecognizerFailure(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	eng := New(recipe.NewMemorySource(log, recipe.WithLatency(0)), storage.NewMemoryStore(log), log,
		WithRecognizer(func(domain.NarrationSink) (domain.RecognitionSource, error) {
			src := newFakeSource()
			src.startErr = domain.ErrPermissionDenied
			return src, nil
		}),
		WithNarrator(func(domain.Recipe) (domain.NarrationSink, error) { return &fakeSink{}, nil }),
	)
	defer eng.StopAll(context.Background())

	ctrl, err := eng.StartSession(context.Background(), "1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st := ctrl.Snapshot()
	if !errors.Is(st.LastError, domain.ErrPermissionDenied) || st.Listening {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestEngineWithoutFactories(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	eng := New(recipe.NewMemorySource(log, recipe.WithLatency(0)), storage.NewMemoryStore(log), log)
	if _, err := eng.StartSession(context.Background(), "1"); err == nil {
		t.Fatal("expected error without recognizer and narrator")
	}
}
