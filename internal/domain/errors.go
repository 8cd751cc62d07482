package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across layers. Match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRecipe  = errors.New("invalid recipe")
	ErrRecipeLocked   = errors.New("recipe is locked")
	ErrSessionStopped = errors.New("session is stopped")

	// ErrPermission is the parent of every recognition access failure.
	ErrPermission       = errors.New("speech recognition permission error")
	ErrPermissionDenied = fmt.Errorf("%w: speech recognition permission denied", ErrPermission)
	ErrRestricted       = fmt.Errorf("%w: speech recognition restricted on this device", ErrPermission)
	ErrNotAuthorized    = fmt.Errorf("%w: speech recognition not yet authorized", ErrPermission)

	ErrNoSpeechDetected = errors.New("no speech detected, please speak clearly and ensure your microphone is working properly")

	ErrRecognitionUnavailable = errors.New("speech recognition service is unavailable")
	ErrEngineStart            = fmt.Errorf("%w: recognition engine failed to start", ErrRecognitionUnavailable)

	ErrDataUnavailable   = errors.New("recipe data unavailable")
	ErrQuestionAnswering = errors.New("question answering failed")
	ErrNarration         = errors.New("narration failed")
)

// ErrorKind names the category of err for display and metrics. Unknown
// errors map to "other".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrNoSpeechDetected):
		return "no_speech"
	case errors.Is(err, ErrRecognitionUnavailable):
		return "engine_unavailable"
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrQuestionAnswering):
		return "question_answering"
	case errors.Is(err, ErrNarration):
		return "narration"
	default:
		return "other"
	}
}
