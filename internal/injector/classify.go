package injector

import (
	"strings"

	"github.com/clawplaza/clawlink/internal/constants"
)

// Classification is what the confirmation loop decided about a pane tail.
type Classification int

const (
	// ClassUnknown means nothing recognizable; wait and re-capture.
	ClassUnknown Classification = iota

	// ClassMultiOption is the numbered consent prompt ("Do you want to
	// proceed?" with "1. Yes" / "2. Yes, and don't ask again").
	ClassMultiOption

	// ClassSingleOption is a highlighted single "1. Yes" choice.
	ClassSingleOption

	// ClassYesNo is a plain (y/n)-style prompt.
	ClassYesNo

	// ClassPressEnter is a press-Enter-to-continue prompt.
	ClassPressEnter

	// ClassWorking means the assistant is still computing.
	ClassWorking

	// ClassIdle means a fresh input prompt with no pending question: the
	// command is done.
	ClassIdle

	// ClassError means the assistant reported a failure.
	ClassError
)

// String returns the log label for a classification.
func (c Classification) String() string {
	switch c {
	case ClassMultiOption:
		return "multi-option"
	case ClassSingleOption:
		return "single-option"
	case ClassYesNo:
		return "yes-no"
	case ClassPressEnter:
		return "press-enter"
	case ClassWorking:
		return "working"
	case ClassIdle:
		return "idle"
	case ClassError:
		return "error"
	default:
		return "unknown"
	}
}

// singleOptionMarkers are the highlighted forms of a lone "1. Yes" choice.
var singleOptionMarkers = []string{"❯ 1. Yes", "▷ 1. Yes"}

// yesNoMarkers are the inline y/n prompt forms.
var yesNoMarkers = []string{"(y/n)", "[Y/n]", "[y/N]"}

// pressEnterMarkers are the press-Enter prompt forms.
var pressEnterMarkers = []string{"Press Enter to continue", "Enter to confirm", "Press Enter"}

// Classify maps a captured pane tail to an action. It is a pure function of
// its input: same tail, same answer. Precedence follows the prompt types
// first (a consent dialog outranks everything), then working, idle, error.
func Classify(tail string) Classification {
	switch {
	case strings.Contains(tail, "Do you want to proceed?") &&
		(strings.Contains(tail, "1. Yes") || strings.Contains(tail, "2. Yes, and don't ask again")):
		return ClassMultiOption
	case containsAny(tail, singleOptionMarkers):
		return ClassSingleOption
	case containsAny(tail, yesNoMarkers):
		return ClassYesNo
	case containsAny(tail, pressEnterMarkers):
		return ClassPressEnter
	case containsAny(tail, constants.WorkingIndicators):
		return ClassWorking
	case idlePrompt(tail):
		return ClassIdle
	case containsAny(tail, constants.ErrorIndicators):
		return ClassError
	default:
		return ClassUnknown
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// idlePrompt reports whether the tail ends at a fresh input prompt: either
// the boxed TUI input line ("│ >") anywhere in the tail, or a last non-empty
// line ending in ">".
func idlePrompt(tail string) bool {
	if strings.Contains(tail, "│ >") {
		return true
	}
	lines := strings.Split(tail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return strings.HasSuffix(line, ">")
	}
	return false
}
