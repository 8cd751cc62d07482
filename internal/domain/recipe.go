// Package domain defines the core types and interfaces for the cooking
// session controller. All other packages depend on domain; domain depends on
// nothing.
package domain

import (
	"fmt"
	"time"
)

// Recipe represents a complete, character-narrated recipe. Recipes are
// immutable once loaded.
type Recipe struct {
	ID            string
	Title         string
	Description   string
	Character     Character
	Difficulty    Difficulty
	Ingredients   []Ingredient
	Steps         []Step
	ImageURL      string
	EstimatedTime time.Duration
	Unlocked      bool
}

// Character is the storyteller who narrates a recipe and answers questions
// about it.
type Character struct {
	Name        string
	Description string
	VoiceID     string // opaque token, resolved by the narration layer
	Personality string
}

// Ingredient represents a single ingredient. Amount is kept as written
// ("200", "1/2", "a pinch").
type Ingredient struct {
	Name   string
	Amount string
	Unit   string // optional
}

// Step represents a single cooking step.
type Step struct {
	ID          string
	Order       int // 1-based
	Instruction string
	Duration    time.Duration // expected duration, 0 if untimed
	ImageURL    string
}

// Difficulty grades how hard a recipe is.
type Difficulty int

const (
	DifficultyEasy Difficulty = iota
	DifficultyMedium
	DifficultyHard
)

// String returns the lowercase difficulty name.
func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return "unknown"
	}
}

// ParseDifficulty converts "easy", "medium" or "hard" into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch s {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	}
	return 0, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRecipe, s)
}

// Validate checks the structural invariants a session relies on: a recipe
// has at least one step and step orders run 1..N in slice order.
func (r *Recipe) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecipe)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: recipe %q has no steps", ErrInvalidRecipe, r.ID)
	}
	for i, s := range r.Steps {
		if s.Order != i+1 {
			return fmt.Errorf("%w: recipe %q step %d has order %d, want %d",
				ErrInvalidRecipe, r.ID, i, s.Order, i+1)
		}
	}
	return nil
}
