// Package conversation turns typed input into intents and holds the text
// the CLI prints and notifies with.
package conversation

import (
	"context"
	"regexp"
	"strings"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Compile-time interface check.
var _ domain.IntentParser = (*KeywordParser)(nil)

// KeywordParser matches user input to intents using keywords and simple patterns.
type KeywordParser struct {
	log      *logger.Logger
	patterns []patternRule
}

type patternRule struct {
	regex  *regexp.Regexp
	intent domain.IntentType
}

// NewKeywordParser creates a keyword-based intent parser.
func NewKeywordParser(log *logger.Logger) *KeywordParser {
	p := &KeywordParser{log: log}
	p.patterns = []patternRule{
		{regexp.MustCompile(`(?i)^(next|n|done)$`), domain.IntentNext},
		{regexp.MustCompile(`(?i)^(previous|prev|back|b)$`), domain.IntentPrevious},
		{regexp.MustCompile(`(?i)^(repeat|again|r)$`), domain.IntentRepeat},
		{regexp.MustCompile(`(?i)^(pause|wait|p)$`), domain.IntentPause},
		{regexp.MustCompile(`(?i)^(resume|continue|unpause|go on)$`), domain.IntentResume},
		{regexp.MustCompile(`(?i)^(listen|mic|l)$`), domain.IntentListen},
		{regexp.MustCompile(`(?i)^(stop|leave|done cooking)$`), domain.IntentStop},
		{regexp.MustCompile(`(?i)^(ok|okay|got it|dismiss)$`), domain.IntentAcknowledge},
		{regexp.MustCompile(`(?i)^(status|where|progress|info)$`), domain.IntentStatus},
		{regexp.MustCompile(`(?i)^(quit|exit|q)$`), domain.IntentQuit},
		{regexp.MustCompile(`(?i)^(help|h|\?)$`), domain.IntentHelp},
		{regexp.MustCompile(`(?i)^(list|recipes|show|browse)$`), domain.IntentListRecipes},
		{regexp.MustCompile(`(?i)^(start|cook|begin|let'?s go)$`), domain.IntentStartCooking},
	}
	return p
}

// Parse converts user input into an intent. The session is unused by the
// keyword rules; it is there for parsers that need context.
func (p *KeywordParser) Parse(ctx context.Context, input string, session *domain.SessionState) (*domain.Intent, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return &domain.Intent{Type: domain.IntentUnknown}, nil
	}

	p.log.Debug("parsing input: %q", trimmed)

	// Recipe selection by number (e.g., "1", "2", "3").
	if len(trimmed) <= 2 && isDigits(trimmed) {
		return &domain.Intent{Type: domain.IntentSelectRecipe, Payload: trimmed}, nil
	}

	for _, rule := range p.patterns {
		if rule.regex.MatchString(trimmed) {
			p.log.Debug("matched intent: %s", rule.intent)
			return &domain.Intent{Type: rule.intent}, nil
		}
	}

	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"select ", "pick "} {
		if strings.HasPrefix(lower, prefix) {
			return &domain.Intent{Type: domain.IntentSelectRecipe, Payload: strings.TrimSpace(trimmed[len(prefix):])}, nil
		}
	}
	if strings.HasPrefix(lower, "ask ") {
		return &domain.Intent{Type: domain.IntentAskQuestion, Payload: strings.TrimSpace(trimmed[len("ask "):])}, nil
	}

	// Detect questions: ends with "?", or starts with a question word.
	if isQuestion(trimmed) {
		return &domain.Intent{Type: domain.IntentAskQuestion, Payload: trimmed}, nil
	}

	p.log.Debug("no match, returning unknown intent")
	return &domain.Intent{Type: domain.IntentUnknown, Payload: trimmed}, nil
}

// questionPrefixes are common English question starters.
var questionPrefixes = []string{
	"how", "what", "why", "when", "where", "who",
	"can", "could", "should", "would", "will", "do", "does", "is", "are",
	"am i", "tell me", "explain",
}

// isQuestion returns true if the input looks like a question.
func isQuestion(s string) bool {
	if strings.HasSuffix(s, "?") {
		return true
	}
	lower := strings.ToLower(s)
	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(lower, prefix+" ") || lower == prefix {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
