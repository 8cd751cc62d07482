package domain

import "time"

// SessionState is an immutable snapshot of a cooking session, published by
// the controller after every mutation.
type SessionState struct {
	ID            string
	RecipeID      string
	RecipeTitle   string
	Character     Character
	Steps         []Step
	Cursor        int
	Playing       bool
	Listening     bool
	LastError     error
	Phase         Phase
	StartedAt     time.Time
	StepStartedAt time.Time // when the cursor last moved
	PausedAt      time.Time // zero unless paused
	UpdatedAt     time.Time
}

// CurrentStep returns the step under the cursor.
func (s SessionState) CurrentStep() Step {
	return s.Steps[s.Cursor]
}

// Total returns the number of steps.
func (s SessionState) Total() int {
	return len(s.Steps)
}

// AtFirst reports whether the cursor is on the first step.
func (s SessionState) AtFirst() bool { return s.Cursor == 0 }

// AtLast reports whether the cursor is on the last step.
func (s SessionState) AtLast() bool { return s.Cursor == len(s.Steps)-1 }

// Phase tracks the lifecycle of a cooking session.
type Phase int

const (
	// PhaseIdle is a freshly created session: not playing, not listening.
	PhaseIdle Phase = iota
	// PhaseActive is a started session; Playing distinguishes playing from paused.
	PhaseActive
	// PhaseStopped is terminal.
	PhaseStopped
)

// String returns a human-readable phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
