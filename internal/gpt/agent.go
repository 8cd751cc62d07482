package gpt

import (
	"context"
	"errors"
	"strings"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Compile-time interface check.
var _ domain.Answerer = (*Agent)(nil)

// Chatter sends one system prompt and one user message to a chat model.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Agent answers cooking questions as the recipe's character.
type Agent struct {
	chat Chatter
	log  *logger.Logger
}

// NewAgent creates an agent backed by the given chat client.
func NewAgent(chat Chatter, log *logger.Logger) *Agent {
	return &Agent{chat: chat, log: log}
}

// Answer asks the model to answer question in character.
func (a *Agent) Answer(ctx context.Context, character domain.Character, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("gpt: empty question")
	}

	a.log.Debug("gpt: asking %s: %s", character.Name, truncate(question, 80))
	raw, err := a.chat.Chat(ctx, PersonaPrompt(character), question)
	if err != nil {
		return "", err
	}

	answer := speakable(raw)
	if answer == "" {
		return "", errors.New("gpt: empty answer")
	}
	return answer, nil
}

// speakable strips markdown that models add anyway, since the answer is
// read aloud.
func speakable(s string) string {
	s = stripCodeFence(s)
	s = strings.NewReplacer("**", "", "__", "", "`", "", "#", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// stripCodeFence removes ``` wrappers that LLMs love to add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove opening fence line.
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		// Remove closing fence.
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
