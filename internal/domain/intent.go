package domain

// IntentType classifies what the user typed at the prompt.
type IntentType int

const (
	IntentUnknown IntentType = iota
	IntentListRecipes
	IntentSelectRecipe
	IntentStartCooking
	IntentNext
	IntentPrevious
	IntentRepeat
	IntentPause
	IntentResume
	IntentListen      // re-arm the recognizer after an auto-stop
	IntentStop        // stop the session and return to the list
	IntentAskQuestion // free-form question for the recipe's character
	IntentAcknowledge // dismiss the current error
	IntentStatus
	IntentHelp
	IntentQuit
)

// String returns a human-readable intent type.
func (i IntentType) String() string {
	switch i {
	case IntentListRecipes:
		return "list_recipes"
	case IntentSelectRecipe:
		return "select_recipe"
	case IntentStartCooking:
		return "start_cooking"
	case IntentNext:
		return "next"
	case IntentPrevious:
		return "previous"
	case IntentRepeat:
		return "repeat"
	case IntentPause:
		return "pause"
	case IntentResume:
		return "resume"
	case IntentListen:
		return "listen"
	case IntentStop:
		return "stop"
	case IntentAskQuestion:
		return "ask_question"
	case IntentAcknowledge:
		return "acknowledge"
	case IntentStatus:
		return "status"
	case IntentHelp:
		return "help"
	case IntentQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Intent represents a parsed user action.
type Intent struct {
	Type    IntentType
	Payload string // optional context, e.g. recipe number or question text
}

// CommandIntent maps a voice command to the equivalent typed intent.
func CommandIntent(c Command) IntentType {
	switch c {
	case CommandNext:
		return IntentNext
	case CommandPrevious:
		return IntentPrevious
	case CommandRepeat:
		return IntentRepeat
	case CommandPause:
		return IntentPause
	case CommandResume:
		return IntentResume
	default:
		return IntentUnknown
	}
}
