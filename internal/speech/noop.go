// Package speech provides the voice side of a cooking session: the Ear
// recognition source (whisper) and the Narrator sink (Azure TTS + oto).
package speech

import (
	"context"
	"fmt"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.NarrationSink     = (*Silent)(nil)
	_ domain.RecognitionSource = (*Disabled)(nil)
)

// Silent is a narration sink that only logs. Used when narration is
// disabled or no Azure credentials are set.
type Silent struct {
	log *logger.Logger
}

// NewSilent creates a silent narration sink.
func NewSilent(log *logger.Logger) *Silent {
	return &Silent{log: log}
}

func (s *Silent) Play(text string) error {
	s.log.Debug("narration off: would say %q", truncate(text, 60))
	return nil
}

func (s *Silent) Pause() error  { return nil }
func (s *Silent) Resume() error { return nil }

// Disabled is a recognition source for sessions without a microphone.
// Start always fails so the session shows why voice commands don't work.
type Disabled struct {
	events chan domain.RecognitionEvent
}

// NewDisabled creates a disabled recognition source.
func NewDisabled() *Disabled {
	return &Disabled{events: make(chan domain.RecognitionEvent)}
}

func (d *Disabled) Start(context.Context) error {
	return fmt.Errorf("%w: voice input disabled", domain.ErrRecognitionUnavailable)
}

func (d *Disabled) Stop() {}

func (d *Disabled) Events() <-chan domain.RecognitionEvent { return d.events }
