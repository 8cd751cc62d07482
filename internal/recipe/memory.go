// Package recipe provides recipe source implementations.
package recipe

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Compile-time interface check.
var _ domain.RecipeSource = (*MemorySource)(nil)

// DefaultLatency is the simulated fetch delay of the built-in catalog.
const DefaultLatency = time.Second

// MemorySource holds recipes in memory. Safe for concurrent reads.
type MemorySource struct {
	mu      sync.RWMutex
	recipes map[string]*domain.Recipe
	order   []string
	latency time.Duration
	fail    error
	log     *logger.Logger
}

// MemoryOption configures a MemorySource.
type MemoryOption func(*MemorySource)

// WithLatency sets the delay applied to every GetRecipes call.
func WithLatency(d time.Duration) MemoryOption {
	return func(s *MemorySource) { s.latency = d }
}

// WithFailure makes every GetRecipes call fail with err wrapped in
// ErrDataUnavailable.
func WithFailure(err error) MemoryOption {
	return func(s *MemorySource) { s.fail = err }
}

// WithRecipes replaces the built-in catalog.
func WithRecipes(recipes ...domain.Recipe) MemoryOption {
	return func(s *MemorySource) {
		s.recipes = make(map[string]*domain.Recipe, len(recipes))
		s.order = s.order[:0]
		for i := range recipes {
			r := recipes[i]
			s.recipes[r.ID] = &r
			s.order = append(s.order, r.ID)
		}
	}
}

// NewMemorySource creates a recipe source preloaded with the built-in
// recipes. Recipes that fail validation are dropped with a warning.
func NewMemorySource(log *logger.Logger, opts ...MemoryOption) *MemorySource {
	src := &MemorySource{
		recipes: make(map[string]*domain.Recipe),
		latency: DefaultLatency,
		log:     log,
	}
	src.seed()
	for _, opt := range opts {
		opt(src)
	}
	src.prune()
	return src
}

// GetRecipes returns every recipe in catalog order after the configured
// latency.
func (s *MemorySource) GetRecipes(ctx context.Context) ([]domain.Recipe, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, ctx.Err())
		}
	}
	if s.fail != nil {
		s.log.Warn("recipe fetch failed: %v", s.fail)
		return nil, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, s.fail)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	s.log.Debug("listing all recipes, count=%d", len(s.recipes))

	out := make([]domain.Recipe, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.recipes[id])
	}
	return out, nil
}

// Get returns a recipe by ID.
func (s *MemorySource) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		s.log.Debug("recipe not found: %s", id)
		return nil, fmt.Errorf("recipe %q: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemorySource) prune() {
	kept := s.order[:0]
	for _, id := range s.order {
		if err := s.recipes[id].Validate(); err != nil {
			s.log.Warn("dropping recipe: %v", err)
			delete(s.recipes, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// seed populates the source with built-in recipes.
func (s *MemorySource) seed() {
	recipes := []*domain.Recipe{
		hobbitsSecondBreakfast(),
		wizardsFireWhiskey(),
		elvenLembasBread(),
	}
	for _, r := range recipes {
		s.recipes[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	sort.SliceStable(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	s.log.Debug("seeded %d recipes", len(recipes))
}

func hobbitsSecondBreakfast() *domain.Recipe {
	return &domain.Recipe{
		ID:          "1",
		Title:       "Hobbit's Second Breakfast",
		Description: "A hearty breakfast fit for a hobbit, featuring mushrooms, bacon, and eggs.",
		Character: domain.Character{
			Name:        "Samwise Gamgee",
			Description: "A loyal hobbit with a passion for cooking",
			VoiceID:     "sam_voice",
			Personality: "Friendly and encouraging, with a love for good food and simple pleasures",
		},
		Difficulty: domain.DifficultyEasy,
		Ingredients: []domain.Ingredient{
			{Name: "Mushrooms", Amount: "200", Unit: "g"},
			{Name: "Bacon", Amount: "4", Unit: "slices"},
			{Name: "Eggs", Amount: "4"},
			{Name: "Butter", Amount: "2", Unit: "tbsp"},
		},
		Steps: []domain.Step{
			{ID: "1-1", Order: 1, Instruction: "Slice the mushrooms into thick pieces.", Duration: 5 * time.Minute},
			{ID: "1-2", Order: 2, Instruction: "Fry the bacon until crispy.", Duration: 10 * time.Minute},
			{ID: "1-3", Order: 3, Instruction: "Cook the mushrooms in the bacon fat.", Duration: 5 * time.Minute},
			{ID: "1-4", Order: 4, Instruction: "Fry the eggs to your liking.", Duration: 5 * time.Minute},
		},
		EstimatedTime: 30 * time.Minute,
		Unlocked:      true,
	}
}

func wizardsFireWhiskey() *domain.Recipe {
	return &domain.Recipe{
		ID:          "2",
		Title:       "Wizard's Fire Whiskey",
		Description: "A magical cocktail that sparkles and fizzes like magic.",
		Character: domain.Character{
			Name:        "Gandalf",
			Description: "A wise wizard with a taste for the finer things",
			VoiceID:     "gandalf_voice",
			Personality: "Mysterious and wise, with a hint of mischief",
		},
		Difficulty: domain.DifficultyMedium,
		Ingredients: []domain.Ingredient{
			{Name: "Whiskey", Amount: "60", Unit: "ml"},
			{Name: "Blue Curacao", Amount: "30", Unit: "ml"},
			{Name: "Lemon Juice", Amount: "15", Unit: "ml"},
			{Name: "Dry Ice", Amount: "1", Unit: "cube"},
		},
		Steps: []domain.Step{
			{ID: "2-1", Order: 1, Instruction: "Combine whiskey, blue curacao, and lemon juice in a shaker.", Duration: 2 * time.Minute},
			{ID: "2-2", Order: 2, Instruction: "Shake vigorously for 30 seconds.", Duration: 30 * time.Second},
			{ID: "2-3", Order: 3, Instruction: "Strain into a chilled glass.", Duration: time.Minute},
			{ID: "2-4", Order: 4, Instruction: "Add dry ice and watch the magic happen!", Duration: 30 * time.Second},
		},
		EstimatedTime: 5 * time.Minute,
		Unlocked:      false,
	}
}

func elvenLembasBread() *domain.Recipe {
	return &domain.Recipe{
		ID:          "3",
		Title:       "Elven Lembas Bread",
		Description: "The waybread of the elves, sustaining and delicious.",
		Character: domain.Character{
			Name:        "Galadriel",
			Description: "An elven queen with ancient wisdom",
			VoiceID:     "galadriel_voice",
			Personality: "Elegant and ethereal, with a deep connection to nature",
		},
		Difficulty: domain.DifficultyHard,
		Ingredients: []domain.Ingredient{
			{Name: "Flour", Amount: "500", Unit: "g"},
			{Name: "Honey", Amount: "200", Unit: "g"},
			{Name: "Butter", Amount: "100", Unit: "g"},
			{Name: "Milk", Amount: "250", Unit: "ml"},
		},
		Steps: []domain.Step{
			{ID: "3-1", Order: 1, Instruction: "Mix flour and butter until crumbly.", Duration: 10 * time.Minute},
			{ID: "3-2", Order: 2, Instruction: "Add honey and milk, knead until smooth.", Duration: 15 * time.Minute},
			{ID: "3-3", Order: 3, Instruction: "Shape into thin cakes.", Duration: 5 * time.Minute},
			{ID: "3-4", Order: 4, Instruction: "Bake until golden brown.", Duration: 30 * time.Minute},
		},
		EstimatedTime: time.Hour,
		Unlocked:      false,
	}
}
