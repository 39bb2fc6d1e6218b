// Package exercise turns landmark frames into counted, quality-annotated repetitions.
package exercise

import (
	"errors"

	"github.com/ayusman/spotter/internal/pose"
)

// ErrMalformedFrame is returned by Process when a frame is discarded.
var ErrMalformedFrame = errors.New("malformed frame discarded")

// ErrUnknownExercise is returned when no processor is registered for an identifier.
var ErrUnknownExercise = errors.New("unknown exercise")

// Phase is the rep state machine position.
type Phase string

const (
	// PhaseStart is the initial neutral phase.
	PhaseStart Phase = "start"
	// PhaseDown covers the eccentric and concentric portion of a rep.
	PhaseDown Phase = "down"
	// PhaseUp follows a completed rep and behaves like PhaseStart.
	PhaseUp Phase = "up"
)

// RepMetrics holds per-rep biomechanics. Durations are seconds, angles degrees,
// sway in normalized image units.
type RepMetrics struct {
	EccentricDuration  float64 `json:"eccentric_duration"`
	ConcentricDuration float64 `json:"concentric_duration"`
	HipSway            float64 `json:"hip_sway"`
	TorsoAngle         float64 `json:"torso_angle"`
	KneeSymmetry       float64 `json:"knee_symmetry"`
}

// RepRecord describes one completed rep attempt. It is never modified after
// it is appended to the history.
type RepRecord struct {
	Duration    float64            `json:"duration"`
	Feedback    []string           `json:"feedback"`
	MinAngles   map[string]float64 `json:"min_angles"`
	StartAngles map[string]float64 `json:"start_angles"`
	Metrics     *RepMetrics        `json:"metrics,omitempty"`
	IsValid     bool               `json:"is_valid"`
}

// State is the externally observable snapshot returned for every frame.
type State struct {
	Reps            int         `json:"reps"`
	Phase           Phase       `json:"phase"`
	Feedback        []string    `json:"feedback"`
	IsGoodRep       bool        `json:"is_good_rep"`
	BadPoints       []int       `json:"bad_points"`
	LastRepDuration float64     `json:"last_rep_duration"`
	History         []RepRecord `json:"history"`
}

// FormResult is the outcome of an instantaneous posture check.
type FormResult struct {
	// Visible is false when the body is not sufficiently in frame; rep
	// counting is skipped for such frames.
	Visible    bool
	IsGoodForm bool
	Feedback   []string
	BadPoints  []int
}

// Movement is the exercise-specific half of a Processor.
type Movement interface {
	// CheckForm evaluates posture rules for one frame, independent of rep phase.
	CheckForm(f pose.Frame) FormResult
	// CountReps advances the rep state machine held by the tracker.
	CountReps(f pose.Frame, form FormResult)
}

func (r RepRecord) clone() RepRecord {
	out := r
	out.Feedback = append([]string(nil), r.Feedback...)
	if out.Feedback == nil {
		out.Feedback = []string{}
	}
	out.MinAngles = cloneAngles(r.MinAngles)
	out.StartAngles = cloneAngles(r.StartAngles)
	if r.Metrics != nil {
		m := *r.Metrics
		out.Metrics = &m
	}
	return out
}

func (s State) clone() State {
	out := s
	out.Feedback = append([]string{}, s.Feedback...)
	out.BadPoints = append([]int{}, s.BadPoints...)
	out.History = make([]RepRecord, len(s.History))
	for i, r := range s.History {
		out.History[i] = r.clone()
	}
	return out
}

func cloneAngles(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
