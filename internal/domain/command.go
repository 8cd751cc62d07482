package domain

import "strings"

// Command is one of the fixed voice-command vocabulary words.
type Command int

const (
	CommandNone Command = iota
	CommandNext
	CommandPrevious
	CommandRepeat
	CommandPause
	CommandResume
)

// String returns the spoken form of the command.
func (c Command) String() string {
	switch c {
	case CommandNext:
		return "next"
	case CommandPrevious:
		return "previous"
	case CommandRepeat:
		return "repeat"
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	default:
		return "none"
	}
}

var vocabulary = map[string]Command{
	"next":     CommandNext,
	"previous": CommandPrevious,
	"repeat":   CommandRepeat,
	"pause":    CommandPause,
	"resume":   CommandResume,
}

// Vocabulary lists the spoken command words in display order.
func Vocabulary() []string {
	return []string{"next", "previous", "repeat", "pause", "resume"}
}

// ParseCommand matches an utterance against the vocabulary. Matching is
// case-insensitive and exact: "next" and "NEXT" match, "next step" and
// " next" do not.
func ParseCommand(utterance string) (Command, bool) {
	c, ok := vocabulary[strings.ToLower(utterance)]
	return c, ok
}

// IsVocabulary reports whether the utterance is a command word.
func IsVocabulary(utterance string) bool {
	_, ok := ParseCommand(utterance)
	return ok
}
