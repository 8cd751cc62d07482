package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
	"github.com/hammamikhairi/storyplated/internal/observe"
)

// CatalogState is a snapshot of the recipe list.
type CatalogState struct {
	Loading bool
	Recipes []domain.Recipe
	Err     error
}

// Catalog loads and holds the recipe list shown to the user. A failed load
// keeps the previous recipes and records the error; there is no retry.
type Catalog struct {
	source  domain.RecipeSource
	log     *logger.Logger
	metrics *observe.Metrics

	mu    sync.Mutex
	state CatalogState
}

// NewCatalog creates an empty catalog over source.
func NewCatalog(source domain.RecipeSource, log *logger.Logger, m *observe.Metrics) *Catalog {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Catalog{source: source, log: log, metrics: m}
}

// Load fetches the recipe list. Loading is true for the duration of the call.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	c.state.Loading = true
	c.state.Err = nil
	c.mu.Unlock()

	recipes, err := c.source.GetRecipes(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loading = false
	if err != nil {
		c.state.Err = err
		c.metrics.RecordCatalogLoad(ctx, "error")
		c.log.Error("loading recipes: %v", err)
		return err
	}
	c.state.Recipes = recipes
	c.metrics.RecordCatalogLoad(ctx, "ok")
	c.log.Debug("catalog loaded, %d recipes", len(recipes))
	return nil
}

// State returns the current catalog snapshot.
func (c *Catalog) State() CatalogState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Recipes = append([]domain.Recipe(nil), c.state.Recipes...)
	return st
}

// Pick returns the n-th recipe (1-based) from the last successful load.
func (c *Catalog) Pick(n int) (domain.Recipe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.state.Recipes) {
		return domain.Recipe{}, fmt.Errorf("recipe #%d: %w", n, domain.ErrNotFound)
	}
	return c.state.Recipes[n-1], nil
}
