package feedback

import (
	"fmt"

	"github.com/ayusman/spotter/internal/classify"
	"github.com/ayusman/spotter/internal/geometry"
)

// Spoken cue tuning.
const (
	// SquatBuffer is how far above the knees the hips may be while still
	// counting as "in the squat".
	SquatBuffer = 0.15
	// DepthLimit is the knee angle above which the athlete is told to go lower.
	DepthLimit = 100
	// TentativeConfidence is the confidence below which errors are phrased softly.
	TentativeConfidence = 0.6
)

var cueErrors = map[classify.Label]string{
	classify.KneesCaved:        "knees are caving in",
	classify.FeetWide:          "stance is too wide",
	classify.SpineMisalignment: "back is rounding",
}

var motivations = []string{
	"Good rep.",
	"Solid form.",
	"Lightweight baby!",
	"Perfect depth.",
	"Keep grinding.",
}

// Cue is one spoken remark.
type Cue struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

// Cuer emits at most one spoken cue per descent. It re-arms when the
// athlete stands back up.
type Cuer struct {
	armed bool
}

// NewCuer returns an armed Cuer.
func NewCuer() *Cuer {
	return &Cuer{armed: true}
}

// Next returns the cue for this frame, if any.
func (c *Cuer) Next(res classify.Result, bio geometry.Biometrics, reps int) (Cue, bool) {
	if !bio.IsSquatting(SquatBuffer) {
		c.armed = true
		return Cue{}, false
	}
	if !c.armed {
		return Cue{}, false
	}
	c.armed = false

	if bio.SquatDepth > DepthLimit {
		return Cue{Text: "LOWER! Hit depth!", IsError: true}, true
	}

	if res.Label == classify.Correct || res.Label == "" {
		if reps < 0 {
			reps = 0
		}
		return Cue{Text: motivations[reps%len(motivations)]}, true
	}

	if res.Confidence < TentativeConfidence {
		text, ok := cueErrors[res.Label]
		if !ok {
			text = "form looks off"
		}
		return Cue{Text: fmt.Sprintf("It seems your %s.", text), IsError: true}, true
	}

	text, ok := cueErrors[res.Label]
	if !ok {
		text = "check your form"
	}
	return Cue{Text: fmt.Sprintf("Fix it. Your %s!", text), IsError: true}, true
}

// Reset re-arms the cuer.
func (c *Cuer) Reset() {
	c.armed = true
}
