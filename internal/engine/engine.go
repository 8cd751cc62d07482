// Package engine implements the cooking session controller and the manager
// that creates and tears down sessions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
	"github.com/hammamikhairi/storyplated/internal/observe"
)

// RecognizerFactory builds the recognition source for a new session. It
// receives the session's narration sink so the recognizer can ignore audio
// captured while the narrator is talking.
type RecognizerFactory func(sink domain.NarrationSink) (domain.RecognitionSource, error)

// NarratorFactory builds the narration sink for a new session, voiced as
// the recipe's character.
type NarratorFactory func(recipe domain.Recipe) (domain.NarrationSink, error)

// Option configures the engine.
type Option func(*Engine)

// WithRecognizer sets the recognition source factory.
func WithRecognizer(f RecognizerFactory) Option {
	return func(e *Engine) { e.newSource = f }
}

// WithNarrator sets the narration sink factory.
func WithNarrator(f NarratorFactory) Option {
	return func(e *Engine) { e.newSink = f }
}

// WithQuestionAnswerer sets the answerer handed to every session.
func WithQuestionAnswerer(a domain.Answerer) Option {
	return func(e *Engine) { e.answerer = a }
}

// WithEngineMetrics overrides the default metrics instance.
func WithEngineMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine manages cooking sessions. It depends only on interfaces and is
// fully testable with fakes.
type Engine struct {
	recipes  domain.RecipeSource
	store    domain.SessionStore
	log      *logger.Logger
	metrics  *observe.Metrics
	answerer domain.Answerer

	newSource RecognizerFactory
	newSink   NarratorFactory

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	ctrl   *Controller
	source domain.RecognitionSource
	sink   domain.NarrationSink
}

// New creates a cooking engine with the given dependencies and options.
func New(recipes domain.RecipeSource, store domain.SessionStore, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		recipes:  recipes,
		store:    store,
		log:      log,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Recipes returns the recipe catalog.
func (e *Engine) Recipes(ctx context.Context) ([]domain.Recipe, error) {
	return e.recipes.GetRecipes(ctx)
}

// GetRecipe returns a full recipe by ID.
func (e *Engine) GetRecipe(ctx context.Context, id string) (*domain.Recipe, error) {
	return e.recipes.Get(ctx, id)
}

// StartSession creates a session for an unlocked recipe and starts it. A
// recognizer that fails to start does not fail the session: the error is
// recorded on the session and typed commands keep working.
func (e *Engine) StartSession(ctx context.Context, recipeID string) (*Controller, error) {
	recipe, err := e.recipes.Get(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("getting recipe: %w", err)
	}
	if !recipe.Unlocked {
		return nil, fmt.Errorf("recipe %q: %w", recipe.Title, domain.ErrRecipeLocked)
	}
	if err := recipe.Validate(); err != nil {
		return nil, err
	}
	if e.newSource == nil || e.newSink == nil {
		return nil, errors.New("engine has no recognizer or narrator configured")
	}

	sink, err := e.newSink(*recipe)
	if err != nil {
		return nil, fmt.Errorf("creating narrator: %w", err)
	}
	source, err := e.newSource(sink)
	if err != nil {
		closeIfCloser(sink)
		return nil, fmt.Errorf("creating recognizer: %w", err)
	}

	ctrl, err := NewController(*recipe, source, sink, e.log,
		WithStore(e.store),
		WithAnswerer(e.answerer),
		WithMetrics(e.metrics),
	)
	if err != nil {
		closeIfCloser(source)
		closeIfCloser(sink)
		return nil, fmt.Errorf("creating session: %w", err)
	}

	e.mu.Lock()
	e.sessions[ctrl.ID()] = &session{ctrl: ctrl, source: source, sink: sink}
	e.mu.Unlock()
	e.metrics.SessionStarted(ctx)

	if err := ctrl.StartSession(ctx); err != nil {
		e.log.Warn("session %s started without voice control: %v", ctrl.ID(), err)
	}

	e.log.Info("started session %s for recipe %q narrated by %s", ctrl.ID(), recipe.Title, recipe.Character.Name)
	return ctrl, nil
}

// Session returns a live session by ID.
func (e *Engine) Session(id string) (*Controller, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	return s.ctrl, nil
}

// Sessions returns the IDs of all live sessions, sorted.
func (e *Engine) Sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EndSession stops a session, releases its audio resources and removes it
// from the registry.
func (e *Engine) EndSession(ctx context.Context, id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}

	s.ctrl.StopSession()
	closeIfCloser(s.source)
	closeIfCloser(s.sink)
	e.metrics.SessionStopped(ctx)

	if err := e.store.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	e.log.Info("ended session %s", id)
	return nil
}

// StopAll ends every live session. Called on every exit path.
func (e *Engine) StopAll(ctx context.Context) {
	for _, id := range e.Sessions() {
		if err := e.EndSession(ctx, id); err != nil {
			e.log.Warn("ending session %s: %v", id, err)
		}
	}
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
