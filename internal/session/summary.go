package session

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/spotter/internal/exercise"
)

// Summary is the coaching-ready record of a session. Only completed rep
// attempts appear; a rep in progress is never finalized.
type Summary struct {
	ExerciseName string               `json:"exercise_name"`
	TotalReps    int                  `json:"total_reps"`
	Reps         []exercise.RepRecord `json:"reps"`
}

// NewSummary builds a summary from a processor snapshot.
func NewSummary(name string, state exercise.State) Summary {
	reps := state.History
	if reps == nil {
		reps = []exercise.RepRecord{}
	}
	return Summary{
		ExerciseName: name,
		TotalReps:    state.Reps,
		Reps:         reps,
	}
}

// Stats aggregates a summary.
type Stats struct {
	Attempts       int     `json:"attempts"`
	Valid          int     `json:"valid"`
	Failed         int     `json:"failed"`
	MeanDuration   float64 `json:"mean_duration"`
	StdDevDuration float64 `json:"stddev_duration"`
	MeanMinKnee    float64 `json:"mean_min_knee"`
	DeepestKnee    float64 `json:"deepest_knee"`
}

// ComputeStats returns attempt counts and duration and depth statistics.
// Statistics are zero when there are no attempts.
func ComputeStats(s Summary) Stats {
	st := Stats{Attempts: len(s.Reps)}
	if st.Attempts == 0 {
		return st
	}

	durations := make([]float64, 0, len(s.Reps))
	knees := make([]float64, 0, len(s.Reps))
	for _, r := range s.Reps {
		if r.IsValid {
			st.Valid++
		}
		durations = append(durations, r.Duration)
		if k, ok := r.MinAngles["knee"]; ok {
			knees = append(knees, k)
		}
	}
	st.Failed = st.Attempts - st.Valid

	if len(durations) > 1 {
		st.MeanDuration, st.StdDevDuration = stat.MeanStdDev(durations, nil)
	} else {
		st.MeanDuration = durations[0]
	}

	if len(knees) > 0 {
		st.MeanMinKnee = stat.Mean(knees, nil)
		st.DeepestKnee = floats.Min(knees)
	}

	return st
}
