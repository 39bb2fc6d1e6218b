// Package feedback turns the stabilized classifier label and the rule-based
// form messages into what the athlete sees and hears.
package feedback

import (
	"strings"

	"github.com/ayusman/spotter/internal/classify"
)

// Kind is the severity of a display message.
type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Display is a single on-screen message.
type Display struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	Icon    string `json:"icon,omitempty"`
}

var labelMessages = map[classify.Label]string{
	classify.FeetWide:          "Feet too wide",
	classify.KneesCaved:        "Knees caving in",
	classify.SpineMisalignment: "Spine misaligned",
}

var labelIcons = map[classify.Label]string{
	classify.FeetWide:          "↔️",
	classify.KneesCaved:        "🦵",
	classify.SpineMisalignment: "🦴",
}

// Compose picks the one message to show for the current frame.
//
// Precedence: inactive session, visibility, stabilized classifier error,
// first rule violation, success.
func Compose(stable classify.Label, rules []string, visible, active bool) Display {
	if !active {
		return Display{
			Title:   "Ready to Train",
			Message: "Start exercise to\nreceive feedback",
			Kind:    KindInfo,
			Icon:    "✨",
		}
	}

	if !visible || stable == classify.NotVisible {
		return Display{
			Title:   "Visibility Issue",
			Message: "Ensure full body is visible",
			Kind:    KindWarning,
			Icon:    "📷",
		}
	}

	if msg, ok := labelMessages[stable]; ok {
		return Display{
			Title:   "Correction Needed",
			Message: msg,
			Kind:    KindError,
			Icon:    labelIcons[stable],
		}
	}

	if len(rules) > 0 {
		return Display{
			Title:   "Form Check",
			Message: rules[0],
			Kind:    KindError,
			Icon:    "⚠️",
		}
	}

	return Display{
		Title:   "Perfect Form!",
		Message: "Keep it up!",
		Kind:    KindSuccess,
		Icon:    "✨",
	}
}

// CueText flattens a display into a short phrase suitable for speech.
func CueText(d Display) string {
	msg := strings.Join(strings.Fields(d.Message), " ")
	msg = strings.TrimRight(msg, "!. ")
	if msg == "" {
		return d.Title
	}
	if d.Kind == KindSuccess {
		return d.Title
	}
	return msg
}
