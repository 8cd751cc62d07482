package gpt

import (
	"fmt"
	"strings"

	"github.com/hammamikhairi/storyplated/internal/domain"
)

// System prompts live here so personality changes are a single-file edit.
// Keep them concise; every token costs money and latency.

// promptQuestion is filled in with the character's name, description and
// personality. The answer is read aloud in the character's voice.
const promptQuestion = `You are %s, %s.
You are guiding a user through one of your recipes, one step at a time, and they just asked you something.

Your personality: %s

Rules:
- Answer in character, in 1-3 sentences.
- Stay helpful: the cooking advice must be correct even when the voice is playful.
- If the question is unrelated to cooking, say so briefly in character and redirect.
- Never use markdown formatting. Your answer will be spoken aloud by a TTS engine.
- Do not use emojis.`

// PersonaPrompt builds the system prompt that makes the model answer as c.
func PersonaPrompt(c domain.Character) string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "a friendly cook"
	}
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		desc = "an experienced home cook"
	}
	personality := strings.TrimSpace(c.Personality)
	if personality == "" {
		personality = "warm, patient and encouraging."
	}
	return fmt.Sprintf(promptQuestion, name, desc, personality)
}
