// lines.go keeps every user-facing sentence in one place. Edit this file
// to change StoryPlated's tone. Step text itself comes from the recipe.

package conversation

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
)

// ── Greeting / Global ────────────────────────────────────────────

func LineWelcome() string {
	return "Welcome to StoryPlated. Pick a story to cook."
}

func LineTagline() string {
	return "recipes told by the characters who cook them"
}

func LineBye() string {
	return "Bye. Enjoy your meal."
}

func LineLoading() string {
	return "Loading recipes..."
}

func LineNoRecipes() string {
	return "No recipes available."
}

func LineLoadFailed(err error) string {
	return fmt.Sprintf("Couldn't load recipes: %v", err)
}

func LineUnknown(input string) string {
	return fmt.Sprintf("Didn't catch that: %s. Type help for commands.", input)
}

// ── Recipe selection ─────────────────────────────────────────────

// LineRecipeEntry is one row of the recipe list.
func LineRecipeEntry(n int, r domain.Recipe) string {
	return fmt.Sprintf("[%d] %s  (%s, %s, ~%s)", n, r.Title, r.Character.Name, r.Difficulty, formatMinutes(r.EstimatedTime))
}

func LinePickPrompt() string {
	return "Pick a recipe by number, or type help for commands."
}

func LineInvalidSelection(payload string) string {
	return fmt.Sprintf("Invalid selection: %s. Pick a number from the list.", payload)
}

func LinePickRecipeFirst() string {
	return "Pick a recipe first."
}

func LineLocked(title string) string {
	return fmt.Sprintf("%s is locked. Pick another story for now.", title)
}

// LineIngredient formats one ingredient for the detail view.
func LineIngredient(ing domain.Ingredient) string {
	parts := []string{ing.Amount}
	if ing.Unit != "" {
		parts = append(parts, ing.Unit)
	}
	parts = append(parts, ing.Name)
	return "- " + strings.TrimSpace(strings.Join(parts, " "))
}

func LineNarratedBy(c domain.Character) string {
	if c.Description == "" {
		return "Narrated by " + c.Name
	}
	return fmt.Sprintf("Narrated by %s, %s", c.Name, c.Description)
}

func LineStartHint(c domain.Character) string {
	return fmt.Sprintf("Type start and %s will walk you through it.", c.Name)
}

// ── Cooking session ──────────────────────────────────────────────

func LineCookingStart(title string, c domain.Character) string {
	return fmt.Sprintf("Cooking %s with %s. Here we go.", title, c.Name)
}

// LineStepHeader renders "Step 2 of 5 (~5 min)".
func LineStepHeader(order, total int, d time.Duration) string {
	s := fmt.Sprintf("Step %d of %d", order, total)
	if d > 0 {
		s += fmt.Sprintf(" (~%s)", formatMinutes(d))
	}
	return s
}

// LineVoiceHint lists the voice vocabulary.
func LineVoiceHint() string {
	return "Say: " + strings.Join(domain.Vocabulary(), ", ")
}

func LineMicOff() string {
	return "Mic is off. Type listen (or say the wake word) to talk again."
}

func LineNoSession() string {
	return "No active session. Pick a recipe and type start."
}

func LineAlreadyActive() string {
	return "You're already cooking. Type stop to leave first."
}

func LineFirstStep() string {
	return "This is the first step."
}

func LineLastStep() string {
	return "That's the last step. Type stop when you're done."
}

func LinePaused() string {
	return "Paused."
}

func LineResumed() string {
	return "Resuming."
}

func LineStopped(title string) string {
	return fmt.Sprintf("Left %s. Back to the recipe list.", title)
}

func LineErrorDismissed() string {
	return "Dismissed."
}

func LineNothingToDismiss() string {
	return "Nothing to dismiss."
}

func LineListeningAgain() string {
	return "Listening."
}

// LineStatus summarises a session in one line.
func LineStatus(s domain.SessionState) string {
	playback := "paused"
	if s.Playing {
		playback = "playing"
	}
	mic := "mic off"
	if s.Listening {
		mic = "listening"
	}
	return fmt.Sprintf("%s with %s: step %d of %d, %s, %s.", s.RecipeTitle, s.Character.Name, s.Cursor+1, s.Total(), playback, mic)
}

// ── Questions ────────────────────────────────────────────────────

func LineAskPrompt(c domain.Character) string {
	return fmt.Sprintf("Ask %s anything: ask how long do I knead?", c.Name)
}

func LineAssistantOffline() string {
	return "The chat assistant is offline; answers come from the built-in echo."
}

var thinkingQuestion = []string{
	"Let me think about that.",
	"Good question. Give me a second.",
	"Hmm, one moment.",
	"Hang on, thinking.",
	"Bear with me a sec.",
	"Give me a beat.",
}

// LineThinking returns a random filler shown while a question is answered.
func LineThinking() string {
	return thinkingQuestion[rand.Intn(len(thinkingQuestion))]
}

// ── Help ─────────────────────────────────────────────────────────

// HelpLines is the command reference printed by help.
func HelpLines() [][2]string {
	return [][2]string{
		{"list / recipes", "Show available recipes"},
		{"1, 2, 3...", "Select a recipe by number"},
		{"start / cook", "Start cooking the selected recipe"},
		{"next / n", "Move to the next step"},
		{"previous / back", "Go back one step"},
		{"repeat / again", "Narrate the current step again"},
		{"pause / resume", "Pause or resume narration"},
		{"listen / mic", "Turn the microphone back on"},
		{"ask ... / any question", "Ask the recipe's character"},
		{"ok / dismiss", "Dismiss the current error"},
		{"status / where", "Show session progress"},
		{"stop / leave", "Leave the session"},
		{"help", "Show this message"},
		{"quit / exit", "Leave and exit"},
	}
}

// formatMinutes renders a step duration as "5 min" or "45 sec".
func formatMinutes(d time.Duration) string {
	if d <= 0 {
		return "? min"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%d sec", int(d.Seconds()))
	}
	return fmt.Sprintf("%d min", int(d.Round(time.Minute).Minutes()))
}
