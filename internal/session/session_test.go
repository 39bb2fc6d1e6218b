package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/spotter/internal/classify"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/pose"
)

const frameGap = 33 * time.Millisecond

type harness struct {
	t       *testing.T
	session *Session
	mock    *classify.MockClassifier
	now     time.Time
}

func newHarness(t *testing.T, withModel bool) *harness {
	t.Helper()
	prev := monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	h := &harness{t: t, now: time.Unix(1700000000, 0)}
	clock := func() time.Time { return h.now }

	var opts []Option
	if withModel {
		h.mock = classify.NewMockClassifier()
		h.mock.SetProbabilities(0.97, 0.01, 0.01, 0.01)
		opts = append(opts, WithClassifier(h.mock))
	}
	h.session = New(exercise.NewSquat(exercise.WithClock(clock)), opts...)
	return h
}

func (h *harness) frame(f pose.Frame) Update {
	h.t.Helper()
	u, err := h.session.HandleFrame(context.Background(), f, h.now)
	require.NoError(h.t, err)
	h.now = h.now.Add(frameGap)
	return u
}

func (h *harness) angles(from, to, step float64) []Update {
	h.t.Helper()
	var out []Update
	if from > to {
		for a := from; a >= to; a -= step {
			out = append(out, h.frame(pose.SquatFrame(a)))
		}
		return out
	}
	for a := from; a <= to; a += step {
		out = append(out, h.frame(pose.SquatFrame(a)))
	}
	return out
}

func (h *harness) rep() []Update {
	return append(h.angles(180, 85, 5), h.angles(90, 180, 5)...)
}

func hidden(f pose.Frame) pose.Frame {
	f[pose.LeftHip].Visibility = pose.Vis(0.1)
	return f
}

func TestSession_CountsRepWithoutModel(t *testing.T) {
	h := newHarness(t, false)

	updates := h.rep()

	completed := 0
	for _, u := range updates {
		if u.Completed != nil {
			completed++
			assert.True(t, u.Completed.IsValid)
		}
		assert.Nil(t, u.Classification)
		assert.Equal(t, classify.Correct, u.Stable)
	}
	assert.Equal(t, 1, completed)

	last := updates[len(updates)-1]
	assert.Equal(t, 1, last.State.Reps)
	assert.Equal(t, "Perfect Form!", last.Display.Title)
	assert.Equal(t, last, h.session.Last())
}

func TestSession_StabilizesClassifierErrors(t *testing.T) {
	h := newHarness(t, true)
	h.mock.SetProbabilities(0.05, 0.02, 0.9, 0.03)

	var u Update
	for i := 0; i < 10; i++ {
		u = h.frame(pose.StandingFrame())
		require.NotNil(t, u.Classification)
		assert.Equal(t, classify.KneesCaved, u.Classification.Label)
		assert.Equal(t, classify.Correct, u.Stable, "frame %d", i)
		assert.Equal(t, "Perfect Form!", u.Display.Title)
	}

	for i := 0; i < 10; i++ {
		u = h.frame(pose.StandingFrame())
	}
	assert.Equal(t, classify.KneesCaved, u.Stable)
	assert.Equal(t, "Correction Needed", u.Display.Title)
	assert.Equal(t, "Knees caving in", u.Display.Message)

	h.mock.SetProbabilities(0.95, 0.02, 0.02, 0.01)
	u = h.frame(pose.StandingFrame())
	assert.Equal(t, classify.Correct, u.Stable)
	assert.Equal(t, 21, h.mock.Calls())
}

func TestSession_ClassifierFailureKeepsState(t *testing.T) {
	h := newHarness(t, true)
	h.mock.SetProbabilities(0.05, 0.9, 0.03, 0.02)
	for i := 0; i < 20; i++ {
		h.frame(pose.StandingFrame())
	}
	require.Equal(t, classify.FeetWide, h.session.Last().Stable)

	h.mock.SetError(errors.New("model crashed"))
	u := h.frame(pose.StandingFrame())
	assert.Nil(t, u.Classification)
	assert.Equal(t, classify.FeetWide, u.Stable)

	h.mock.SetError(nil)
	h.mock.SetProbabilities(0.5, 0.5)
	u = h.frame(pose.StandingFrame())
	assert.Nil(t, u.Classification, "wrong-length output is discarded")
	assert.Equal(t, classify.FeetWide, u.Stable)
}

func TestSession_NotVisible(t *testing.T) {
	h := newHarness(t, true)

	u := h.frame(hidden(pose.StandingFrame()))
	assert.False(t, u.Visible)
	assert.Nil(t, u.Classification)
	assert.Equal(t, classify.Correct, u.Stable)
	assert.Equal(t, "Visibility Issue", u.Display.Title)
	assert.Equal(t, 0, h.mock.Calls())

	for i := 0; i < 20; i++ {
		u = h.frame(hidden(pose.StandingFrame()))
	}
	assert.Equal(t, classify.NotVisible, u.Stable)

	u = h.frame(pose.StandingFrame())
	assert.True(t, u.Visible)
	assert.Equal(t, classify.Correct, u.Stable)
}

func TestSession_NotVisibleWithoutModel(t *testing.T) {
	h := newHarness(t, false)

	var u Update
	for i := 0; i < 20; i++ {
		u = h.frame(hidden(pose.StandingFrame()))
	}
	require.Equal(t, classify.NotVisible, u.Stable)
	assert.Equal(t, "Visibility Issue", u.Display.Title)

	u = h.frame(pose.StandingFrame())
	assert.True(t, u.Visible)
	assert.Nil(t, u.Classification)
	assert.Equal(t, classify.Correct, u.Stable)
	assert.NotEqual(t, "Visibility Issue", u.Display.Title)

	for _, u := range h.rep() {
		assert.Equal(t, classify.Correct, u.Stable)
	}
	assert.Equal(t, 1, h.session.Summary().TotalReps)
}

// stuckClassifier never answers before its context ends.
type stuckClassifier struct{}

func (stuckClassifier) Classify(ctx context.Context, _ pose.Features) ([]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stuckClassifier) Close() error { return nil }

func TestSession_ClassifierTimeout(t *testing.T) {
	h := newHarness(t, false)
	h.session = New(exercise.NewSquat(), WithClassifier(stuckClassifier{}), WithClassifierTimeout(20*time.Millisecond))

	start := time.Now()
	u := h.frame(pose.StandingFrame())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, u.Visible)
	assert.Nil(t, u.Classification)
	assert.Equal(t, classify.Correct, u.Stable)
	assert.Equal(t, 0, u.State.Reps)
}

func TestSession_MalformedFrame(t *testing.T) {
	h := newHarness(t, false)
	before := h.frame(pose.SquatFrame(100))

	u, err := h.session.HandleFrame(context.Background(), pose.Frame{{X: 1}}, h.now)
	assert.ErrorIs(t, err, exercise.ErrMalformedFrame)
	assert.Equal(t, before, u)
	assert.Equal(t, before, h.session.Last())
}

func TestSession_Cues(t *testing.T) {
	h := newHarness(t, false)

	var cues []string
	for _, u := range h.rep() {
		if u.Cue != nil {
			cues = append(cues, u.Cue.Text)
		}
	}
	assert.Equal(t, []string{"LOWER! Hit depth!"}, cues)
}

func TestSession_ResetAndStop(t *testing.T) {
	h := newHarness(t, false)
	h.rep()
	require.Equal(t, 1, h.session.Summary().TotalReps)

	h.session.Reset()
	h.session.Reset()
	sum := h.session.Summary()
	assert.Equal(t, 0, sum.TotalReps)
	assert.Empty(t, sum.Reps)
	assert.Equal(t, exercise.PhaseStart, h.session.Last().State.Phase)

	h.rep()
	h.angles(180, 100, 5)

	sum = h.session.Stop()
	assert.True(t, h.session.Stopped())
	assert.Equal(t, 1, sum.TotalReps)
	assert.Len(t, sum.Reps, 1, "rep in progress is not finalized")
	assert.Equal(t, "Ready to Train", h.session.Display().Title)

	_, err := h.session.HandleFrame(context.Background(), pose.StandingFrame(), h.now)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSummary_JSONShape(t *testing.T) {
	h := newHarness(t, false)
	h.rep()

	raw, err := json.Marshal(h.session.Summary())
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "squats", doc["exercise_name"])
	assert.EqualValues(t, 1, doc["total_reps"])

	reps := doc["reps"].([]interface{})
	require.Len(t, reps, 1)
	rep := reps[0].(map[string]interface{})

	var keys []string
	for k := range rep {
		keys = append(keys, k)
	}
	want := []string{"duration", "feedback", "min_angles", "start_angles", "metrics", "is_valid"}
	if diff := cmp.Diff(want, keys, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("rep keys mismatch (-want +got):\n%s", diff)
	}

	metrics := rep["metrics"].(map[string]interface{})
	for _, k := range []string{"eccentric_duration", "concentric_duration", "hip_sway", "torso_angle", "knee_symmetry"} {
		assert.Contains(t, metrics, k)
	}
}

func TestSummary_Empty(t *testing.T) {
	sum := NewSummary("squats", exercise.State{})
	raw, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.JSONEq(t, `{"exercise_name":"squats","total_reps":0,"reps":[]}`, string(raw))
}

func TestComputeStats(t *testing.T) {
	sum := Summary{
		ExerciseName: "squats",
		TotalReps:    2,
		Reps: []exercise.RepRecord{
			{Duration: 2.0, IsValid: true, MinAngles: map[string]float64{"knee": 80}},
			{Duration: 3.0, IsValid: false, MinAngles: map[string]float64{"knee": 100}},
			{Duration: 4.0, IsValid: true, MinAngles: map[string]float64{"knee": 90}},
		},
	}

	want := Stats{
		Attempts:       3,
		Valid:          2,
		Failed:         1,
		MeanDuration:   3.0,
		StdDevDuration: 1.0,
		MeanMinKnee:    90,
		DeepestKnee:    80,
	}
	if diff := cmp.Diff(want, ComputeStats(sum), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("ComputeStats mismatch (-want +got):\n%s", diff)
	}

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, Stats{}, ComputeStats(Summary{}))
	})

	t.Run("single attempt", func(t *testing.T) {
		st := ComputeStats(Summary{Reps: []exercise.RepRecord{{Duration: 1.5}}})
		assert.Equal(t, 1.5, st.MeanDuration)
		assert.Zero(t, st.StdDevDuration)
		assert.Zero(t, st.MeanMinKnee)
	})
}
