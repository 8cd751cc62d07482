package gpt

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Compile-time interface check.
var _ domain.Answerer = (*Echo)(nil)

// DefaultEchoDelay stands in for network latency.
const DefaultEchoDelay = time.Second

// Echo is the offline answerer used when no chat API is configured. It
// waits a moment and echoes the question back in character.
type Echo struct {
	delay time.Duration
	log   *logger.Logger
}

// NewEcho creates an echo answerer. A negative delay means DefaultEchoDelay.
func NewEcho(delay time.Duration, log *logger.Logger) *Echo {
	if delay < 0 {
		delay = DefaultEchoDelay
	}
	return &Echo{delay: delay, log: log}
}

// Answer returns "I'm <name>, and I'd be happy to help you with that! <question>".
func (e *Echo) Answer(ctx context.Context, character domain.Character, question string) (string, error) {
	if e.delay > 0 {
		t := time.NewTimer(e.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	e.log.Debug("gpt: echo answer for %s", character.Name)
	return fmt.Sprintf("I'm %s, and I'd be happy to help you with that! %s", character.Name, question), nil
}
