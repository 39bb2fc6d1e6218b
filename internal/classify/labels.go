// Package classify interprets the external posture classifier and debounces its output.
package classify

import (
	"math"
)

// Label is a posture class.
type Label string

const (
	Correct           Label = "correct"
	FeetWide          Label = "feet_wide"
	KneesCaved        Label = "knees_caved"
	SpineMisalignment Label = "spine_misalignment"
	NotVisible        Label = "not_visible"
)

// ModelLabels is the classifier output order.
var ModelLabels = [4]Label{Correct, FeetWide, KneesCaved, SpineMisalignment}

// Valid reports whether l is a known label.
func (l Label) Valid() bool {
	switch l {
	case Correct, FeetWide, KneesCaved, SpineMisalignment, NotVisible:
		return true
	}
	return false
}

// Result is one classifier observation.
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Decode picks the most probable class from a probability vector in
// ModelLabels order. It returns false for vectors of the wrong length or
// with non-finite entries.
func Decode(probs []float64) (Result, bool) {
	if len(probs) != len(ModelLabels) {
		return Result{}, false
	}

	best := -1
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Result{}, false
		}
		if best < 0 || p > probs[best] {
			best = i
		}
	}

	return Result{Label: ModelLabels[best], Confidence: probs[best]}, true
}
