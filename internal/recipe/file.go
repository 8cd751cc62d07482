package recipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

var _ domain.RecipeSource = (*FileSource)(nil)

// FileSource reads a YAML recipe catalog from disk. The file is re-read on
// every GetRecipes call so edits show up without a restart.
type FileSource struct {
	path string
	log  *logger.Logger
}

// NewFileSource creates a source backed by the catalog at path.
func NewFileSource(path string, log *logger.Logger) *FileSource {
	return &FileSource{path: path, log: log}
}

// GetRecipes loads and validates the catalog.
func (s *FileSource) GetRecipes(ctx context.Context) ([]domain.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", domain.ErrDataUnavailable, s.path, err)
	}
	defer f.Close()

	recipes, err := DecodeCatalog(f)
	if err != nil {
		s.log.Error("recipe catalog %s: %v", s.path, err)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, s.path, err)
	}
	s.log.Debug("loaded %d recipes from %s", len(recipes), s.path)
	return recipes, nil
}

// Get returns a recipe by ID.
func (s *FileSource) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	recipes, err := s.GetRecipes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range recipes {
		if recipes[i].ID == id {
			return &recipes[i], nil
		}
	}
	return nil, fmt.Errorf("recipe %q: %w", id, domain.ErrNotFound)
}

// ── YAML schema ─────────────────────────────────────────────────

type catalogFile struct {
	Recipes []recipeYAML `yaml:"recipes"`
}

type recipeYAML struct {
	ID            string           `yaml:"id"`
	Title         string           `yaml:"title"`
	Description   string           `yaml:"description"`
	Character     characterYAML    `yaml:"character"`
	Difficulty    string           `yaml:"difficulty"`
	Ingredients   []ingredientYAML `yaml:"ingredients"`
	Steps         []stepYAML       `yaml:"steps"`
	ImageURL      string           `yaml:"image_url"`
	EstimatedTime string           `yaml:"estimated_time"`
	Unlocked      bool             `yaml:"unlocked"`
}

type characterYAML struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	VoiceID     string `yaml:"voice_id"`
	Personality string `yaml:"personality"`
}

type ingredientYAML struct {
	Name   string `yaml:"name"`
	Amount string `yaml:"amount"`
	Unit   string `yaml:"unit"`
}

type stepYAML struct {
	ID          string `yaml:"id"`
	Order       int    `yaml:"order"`
	Instruction string `yaml:"instruction"`
	Duration    string `yaml:"duration"`
	ImageURL    string `yaml:"image_url"`
}

// DecodeCatalog parses a YAML catalog. Unknown fields are rejected and every
// invalid recipe is reported; a catalog with any invalid recipe is rejected
// as a whole.
func DecodeCatalog(r io.Reader) ([]domain.Recipe, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var errs []error
	seen := make(map[string]int, len(file.Recipes))
	out := make([]domain.Recipe, 0, len(file.Recipes))
	for i, ry := range file.Recipes {
		rec, err := ry.toDomain()
		if err != nil {
			errs = append(errs, fmt.Errorf("recipes[%d]: %w", i, err))
			continue
		}
		if prev, ok := seen[rec.ID]; ok {
			errs = append(errs, fmt.Errorf("recipes[%d]: %w: id %q duplicates recipes[%d]",
				i, domain.ErrInvalidRecipe, rec.ID, prev))
			continue
		}
		seen[rec.ID] = i
		out = append(out, rec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (ry recipeYAML) toDomain() (domain.Recipe, error) {
	diff := domain.DifficultyEasy
	if ry.Difficulty != "" {
		d, err := domain.ParseDifficulty(ry.Difficulty)
		if err != nil {
			return domain.Recipe{}, err
		}
		diff = d
	}
	est, err := parseOptionalDuration(ry.EstimatedTime)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("%w: estimated_time: %w", domain.ErrInvalidRecipe, err)
	}

	rec := domain.Recipe{
		ID:          ry.ID,
		Title:       ry.Title,
		Description: ry.Description,
		Character: domain.Character{
			Name:        ry.Character.Name,
			Description: ry.Character.Description,
			VoiceID:     ry.Character.VoiceID,
			Personality: ry.Character.Personality,
		},
		Difficulty:    diff,
		ImageURL:      ry.ImageURL,
		EstimatedTime: est,
		Unlocked:      ry.Unlocked,
	}
	for _, ing := range ry.Ingredients {
		rec.Ingredients = append(rec.Ingredients, domain.Ingredient{Name: ing.Name, Amount: ing.Amount, Unit: ing.Unit})
	}
	for j, st := range ry.Steps {
		d, err := parseOptionalDuration(st.Duration)
		if err != nil {
			return domain.Recipe{}, fmt.Errorf("%w: steps[%d].duration: %w", domain.ErrInvalidRecipe, j, err)
		}
		rec.Steps = append(rec.Steps, domain.Step{
			ID:          st.ID,
			Order:       st.Order,
			Instruction: st.Instruction,
			Duration:    d,
			ImageURL:    st.ImageURL,
		})
	}
	if err := rec.Validate(); err != nil {
		return domain.Recipe{}, err
	}
	return rec, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
