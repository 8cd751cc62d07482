package domain

import "context"

// RecipeSource provides recipes. Implementations can be in-memory, file-based
// or API-backed. Failures wrap ErrDataUnavailable.
type RecipeSource interface {
	GetRecipes(ctx context.Context) ([]Recipe, error)
	Get(ctx context.Context, id string) (*Recipe, error)
}

// SessionStore keeps the latest snapshot of every live cooking session.
type SessionStore interface {
	Save(ctx context.Context, state SessionState) error
	Load(ctx context.Context, id string) (SessionState, error)
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]SessionState, error)
}

// IntentParser converts raw user input into structured intents.
type IntentParser interface {
	Parse(ctx context.Context, input string, session *SessionState) (*Intent, error)
}

// Notifier delivers messages to the user.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}

// RecognitionSource is a speech recognizer producing a stream of events.
//
// Start fails with an error wrapping ErrPermission or ErrRecognitionUnavailable.
// Stop is idempotent and releases the microphone before returning. After a
// vocabulary word is recognized the source stops itself; any other utterance
// keeps it listening. If nothing is recognized within the silence window the
// source emits ErrNoSpeechDetected and stops.
//
// Every flip of the running state is reported as a ListeningChanged event,
// including the stop that follows an error and the one caused by Stop.
type RecognitionSource interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan RecognitionEvent
}

// NarrationSink speaks step text. Calls are fire-and-forget: Play returns
// once narration is queued, not when it finishes.
type NarrationSink interface {
	Play(text string) error
	Pause() error
	Resume() error
}

// Answerer answers a free-form question in the voice of a character.
type Answerer interface {
	Answer(ctx context.Context, character Character, question string) (string, error)
}
