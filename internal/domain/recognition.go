package domain

// RecognitionEventKind classifies events emitted by a RecognitionSource.
type RecognitionEventKind int

const (
	// EventRecognized carries one final utterance.
	EventRecognized RecognitionEventKind = iota
	// EventListeningChanged reports the source starting or stopping.
	EventListeningChanged
	// EventError reports a recognition failure.
	EventError
)

// String returns a human-readable event kind.
func (k RecognitionEventKind) String() string {
	switch k {
	case EventRecognized:
		return "recognized"
	case EventListeningChanged:
		return "listening_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// RecognitionEvent is a single item on a RecognitionSource's event stream.
type RecognitionEvent struct {
	Kind      RecognitionEventKind
	Text      string // EventRecognized
	Listening bool   // EventListeningChanged
	Err       error  // EventError
}

// Recognized builds an EventRecognized event.
func Recognized(text string) RecognitionEvent {
	return RecognitionEvent{Kind: EventRecognized, Text: text}
}

// ListeningChanged builds an EventListeningChanged event.
func ListeningChanged(listening bool) RecognitionEvent {
	return RecognitionEvent{Kind: EventListeningChanged, Listening: listening}
}

// RecognitionError builds an EventError event.
func RecognitionError(err error) RecognitionEvent {
	return RecognitionEvent{Kind: EventError, Err: err}
}
