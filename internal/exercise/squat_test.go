package exercise

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/spotter/internal/pose"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSquat(t *testing.T) (*Processor, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return NewSquat(WithClock(clock.Now)), clock
}

// sweep returns knee angles from `from` to `to` in steps of `step` (inclusive).
func sweep(from, to, step float64) []float64 {
	var out []float64
	if from > to {
		for a := from; a >= to; a -= step {
			out = append(out, a)
		}
		return out
	}
	for a := from; a <= to; a += step {
		out = append(out, a)
	}
	return out
}

// feed processes one fixture frame per angle, 1/30 s apart, and returns every state.
func feed(t *testing.T, p *Processor, clock *fakeClock, angles []float64, mutate func(i int, f pose.Frame)) []State {
	t.Helper()
	states := make([]State, 0, len(angles))
	for i, a := range angles {
		f := pose.SquatFrame(a)
		if mutate != nil {
			mutate(i, f)
		}
		s, err := p.Process(f)
		require.NoError(t, err)
		states = append(states, s)
		clock.Advance(33 * time.Millisecond)
	}
	return states
}

func fullRep() []float64 {
	return append(sweep(180, 85, 5), sweep(90, 180, 5)...)
}

func countValid(h []RepRecord) int {
	n := 0
	for _, r := range h {
		if r.IsValid {
			n++
		}
	}
	return n
}

func TestSquat_CountsGoodRep(t *testing.T) {
	p, clock := newTestSquat(t)

	states := feed(t, p, clock, fullRep(), nil)
	last := states[len(states)-1]

	assert.Equal(t, 1, last.Reps)
	assert.Equal(t, PhaseUp, last.Phase)
	require.Len(t, last.History, 1)

	rec := last.History[0]
	assert.True(t, rec.IsValid)
	assert.Empty(t, rec.Feedback)
	assert.InDelta(t, 85, rec.MinAngles["knee"], 1e-6)
	assert.Less(t, rec.StartAngles["knee"], 110.0)
	assert.Greater(t, rec.Duration, 0.0)
	assert.InDelta(t, rec.Duration, last.LastRepDuration, 1e-9)

	require.NotNil(t, rec.Metrics)
	assert.InDelta(t, rec.Duration, rec.Metrics.EccentricDuration+rec.Metrics.ConcentricDuration, 1e-9)
	assert.InDelta(t, 0, rec.Metrics.HipSway, 1e-9)
	assert.InDelta(t, 0, rec.Metrics.KneeSymmetry, 1e-6)
	assert.InDelta(t, 0, rec.Metrics.TorsoAngle, 1e-6)
}

func TestSquat_PhaseTransitions(t *testing.T) {
	p, clock := newTestSquat(t)

	s := feed(t, p, clock, []float64{180, 150, 120}, nil)
	assert.Equal(t, PhaseStart, s[2].Phase)

	s = feed(t, p, clock, []float64{100}, nil)
	assert.Equal(t, PhaseDown, s[0].Phase)
	assert.True(t, s[0].IsGoodRep)

	s = feed(t, p, clock, []float64{130, 155}, nil)
	assert.Equal(t, PhaseDown, s[1].Phase, "not standing yet")

	s = feed(t, p, clock, []float64{170}, nil)
	assert.Equal(t, PhaseUp, s[0].Phase)
	assert.Equal(t, 1, s[0].Reps)
}

func TestSquat_RepTiming(t *testing.T) {
	p, clock := newTestSquat(t)

	for _, a := range []float64{180, 100, 90, 95, 170} {
		_, err := p.Process(pose.SquatFrame(a))
		require.NoError(t, err)
		clock.Advance(100 * time.Millisecond)
	}

	s := p.State()
	require.Len(t, s.History, 1)
	rec := s.History[0]
	assert.InDelta(t, 0.3, rec.Duration, 1e-9)
	require.NotNil(t, rec.Metrics)
	assert.InDelta(t, 0.1, rec.Metrics.EccentricDuration, 1e-9)
	assert.InDelta(t, 0.2, rec.Metrics.ConcentricDuration, 1e-9)
	assert.InDelta(t, 90, rec.MinAngles["knee"], 1e-6)
	assert.InDelta(t, 100, rec.StartAngles["knee"], 1e-6)
}

func TestSquat_KneeAsymmetry(t *testing.T) {
	p, _ := newTestSquat(t)

	frames := []pose.Frame{
		pose.SquatFrame(180),
		pose.SquatFrameLR(100, 104),
		pose.SquatFrameLR(85, 97),
		pose.SquatFrameLR(170, 172),
	}
	for _, f := range frames {
		_, err := p.Process(f)
		require.NoError(t, err)
	}

	s := p.State()
	require.Len(t, s.History, 1)
	require.NotNil(t, s.History[0].Metrics)
	assert.InDelta(t, 12, s.History[0].Metrics.KneeSymmetry, 1e-6)
	assert.InDelta(t, 85, s.History[0].MinAngles["left_knee"], 1e-6)
	assert.InDelta(t, 97, s.History[0].MinAngles["right_knee"], 1e-6)
}

func TestSquat_BadRepPersists(t *testing.T) {
	p, clock := newTestSquat(t)

	angles := fullRep()
	badAt := -1
	for i, a := range angles {
		if a == 95 && i < len(angles)/2 {
			badAt = i
		}
	}
	require.NotEqual(t, -1, badAt)

	states := feed(t, p, clock, angles, func(i int, f pose.Frame) {
		if i == badAt {
			raiseHands(f)
		}
	})

	assert.False(t, states[badAt].IsGoodRep)
	assert.False(t, states[badAt+1].IsGoodRep, "rep quality never recovers")

	last := states[len(states)-1]
	assert.Equal(t, 0, last.Reps)
	require.Len(t, last.History, 1)
	assert.False(t, last.History[0].IsValid)
	assert.Equal(t, []string{MsgHandsTooHigh}, last.History[0].Feedback)
}

func TestSquat_BadFormAtRepStart(t *testing.T) {
	p, clock := newTestSquat(t)

	feed(t, p, clock, []float64{180, 140}, nil)
	s := feed(t, p, clock, []float64{100}, func(_ int, f pose.Frame) { raiseHands(f) })
	assert.Equal(t, PhaseDown, s[0].Phase)
	assert.False(t, s[0].IsGoodRep)

	s = feed(t, p, clock, []float64{90, 170}, nil)
	assert.Equal(t, 0, s[1].Reps)
	require.Len(t, s[1].History, 1)
	assert.False(t, s[1].History[0].IsValid)
}

func TestSquat_PartialDepth(t *testing.T) {
	p, clock := newTestSquat(t)

	angles := append(sweep(180, 130, 5), sweep(135, 180, 5)...)
	states := feed(t, p, clock, angles, nil)

	var messages []string
	for _, s := range states {
		messages = append(messages, s.Feedback...)
	}
	assert.Contains(t, messages, "Go lower! Reached 130°")

	last := states[len(states)-1]
	assert.Empty(t, last.History)
	assert.Equal(t, 0, last.Reps)
	assert.Equal(t, PhaseStart, last.Phase)

	count := 0
	for _, m := range messages {
		if strings.HasPrefix(m, "Go lower!") {
			count++
		}
	}
	assert.Equal(t, 1, count, "partial rep feedback is emitted once")
}

func TestSquat_ShallowDipIsIgnored(t *testing.T) {
	p, clock := newTestSquat(t)

	angles := append(sweep(180, 145, 5), sweep(150, 180, 5)...)
	states := feed(t, p, clock, angles, nil)
	for _, s := range states {
		assert.Empty(t, s.Feedback)
	}
}

func TestSquat_NoPartialFeedbackAfterFullRep(t *testing.T) {
	p, clock := newTestSquat(t)

	states := feed(t, p, clock, append(fullRep(), fullRep()...), nil)
	for _, s := range states {
		for _, m := range s.Feedback {
			assert.NotContains(t, m, "Go lower!")
		}
	}
	last := states[len(states)-1]
	assert.Equal(t, 2, last.Reps)
	assert.Len(t, last.History, 2)
}

func TestSquat_CheckForm(t *testing.T) {
	p, _ := newTestSquat(t)

	t.Run("good standing pose", func(t *testing.T) {
		res := p.CheckForm(pose.StandingFrame())
		assert.True(t, res.Visible)
		assert.True(t, res.IsGoodForm)
		assert.Empty(t, res.Feedback)
		assert.Empty(t, res.BadPoints)
	})

	t.Run("low visibility gates everything", func(t *testing.T) {
		f := pose.StandingFrame()
		f[pose.RightAnkle].Visibility = pose.Vis(0.3)
		raiseHands(f)

		res := p.CheckForm(f)
		assert.False(t, res.Visible)
		assert.False(t, res.IsGoodForm)
		assert.Equal(t, []string{MsgNotVisible}, res.Feedback)
		assert.Empty(t, res.BadPoints)
	})

	t.Run("knees caving in", func(t *testing.T) {
		f := pose.StandingFrame()
		f[pose.LeftKnee].X = 0.52
		f[pose.RightKnee].X = 0.48

		res := p.CheckForm(f)
		assert.False(t, res.IsGoodForm)
		assert.Equal(t, []string{MsgKneesCaving}, res.Feedback)
		assert.Equal(t, []int{pose.LeftKnee, pose.RightKnee}, res.BadPoints)
	})

	t.Run("hands above nose", func(t *testing.T) {
		f := pose.StandingFrame()
		f[pose.RightWrist].Y = f[pose.Nose].Y - 0.01

		res := p.CheckForm(f)
		assert.Equal(t, []string{MsgHandsTooHigh}, res.Feedback)
		assert.Equal(t, []int{pose.LeftWrist, pose.RightWrist}, res.BadPoints)
	})

	t.Run("stance too narrow", func(t *testing.T) {
		f := pose.StandingFrame()
		f[pose.LeftAnkle].X = 0.55
		f[pose.RightAnkle].X = 0.45

		res := p.CheckForm(f)
		assert.Contains(t, res.Feedback, MsgStanceNarrow)
		assert.Subset(t, res.BadPoints, []int{pose.LeftAnkle, pose.RightAnkle})
	})

	t.Run("stance too wide", func(t *testing.T) {
		f := pose.StandingFrame()
		f[pose.LeftAnkle].X = 0.85
		f[pose.RightAnkle].X = 0.15

		res := p.CheckForm(f)
		assert.Equal(t, []string{MsgStanceWide}, res.Feedback)
		assert.Equal(t, []int{pose.LeftAnkle, pose.RightAnkle}, res.BadPoints)
	})

	t.Run("all violations are reported in order", func(t *testing.T) {
		f := pose.StandingFrame()
		f[pose.LeftKnee].X = 0.52
		f[pose.RightKnee].X = 0.48
		raiseHands(f)
		f[pose.LeftAnkle].X = 0.85
		f[pose.RightAnkle].X = 0.15

		res := p.CheckForm(f)
		assert.Equal(t, []string{MsgKneesCaving, MsgHandsTooHigh, MsgStanceWide}, res.Feedback)
		assert.Equal(t, []int{25, 26, 15, 16, 27, 28}, res.BadPoints)
	})

	t.Run("missing visibility counts as visible", func(t *testing.T) {
		f := pose.StandingFrame()
		for i := range f {
			f[i].Visibility = nil
		}
		assert.True(t, p.CheckForm(f).Visible)
	})
}

func TestSquat_HiddenFramesSkipCounting(t *testing.T) {
	p, clock := newTestSquat(t)

	feed(t, p, clock, []float64{180, 100}, nil)

	states := feed(t, p, clock, []float64{170, 90}, func(_ int, f pose.Frame) {
		f[pose.LeftKnee].Visibility = pose.Vis(0.1)
	})
	for _, s := range states {
		assert.Equal(t, PhaseDown, s.Phase)
		assert.Equal(t, []string{MsgNotVisible}, s.Feedback)
		assert.True(t, s.IsGoodRep, "occlusion does not fail a rep")
	}

	s := feed(t, p, clock, []float64{170}, nil)
	assert.Equal(t, 1, s[0].Reps)
	assert.InDelta(t, 100, s[0].History[0].MinAngles["knee"], 1e-6)
}

func TestProcessor_Reset(t *testing.T) {
	fresh := func(t *testing.T, s State) {
		t.Helper()
		assert.Equal(t, 0, s.Reps)
		assert.Equal(t, PhaseStart, s.Phase)
		assert.Empty(t, s.History)
		assert.True(t, s.IsGoodRep)
	}

	t.Run("twice in a row", func(t *testing.T) {
		p, clock := newTestSquat(t)
		feed(t, p, clock, fullRep(), nil)

		p.Reset()
		fresh(t, p.State())
		p.Reset()
		fresh(t, p.State())
	})

	t.Run("mid rep", func(t *testing.T) {
		p, clock := newTestSquat(t)
		states := feed(t, p, clock, sweep(180, 90, 10), nil)
		require.Equal(t, PhaseDown, states[len(states)-1].Phase)

		p.Reset()
		fresh(t, p.State())

		// Standing up after the reset must not complete the dropped rep.
		s := feed(t, p, clock, []float64{170, 180}, nil)
		assert.Empty(t, s[1].History)
		assert.Empty(t, s[1].Feedback)
	})

	t.Run("counts normally afterwards", func(t *testing.T) {
		p, clock := newTestSquat(t)
		feed(t, p, clock, fullRep(), nil)
		p.Reset()

		states := feed(t, p, clock, fullRep(), nil)
		assert.Equal(t, 1, states[len(states)-1].Reps)
	})
}

func TestProcessor_MalformedFrame(t *testing.T) {
	p, clock := newTestSquat(t)
	before := feed(t, p, clock, []float64{180, 100}, nil)[1]

	s, err := p.Process(pose.StandingFrame()[:10])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
	assert.Equal(t, before, s)

	after := feed(t, p, clock, []float64{170}, nil)[0]
	assert.Equal(t, 1, after.Reps)
}

func TestProcessor_SnapshotsAreIndependent(t *testing.T) {
	p, clock := newTestSquat(t)
	states := feed(t, p, clock, fullRep(), nil)

	last := states[len(states)-1]
	last.History[0].MinAngles["knee"] = -1
	last.History[0].Feedback = append(last.History[0].Feedback, "tampered")
	last.Feedback = append(last.Feedback, "tampered")

	s := p.State()
	assert.InDelta(t, 85, s.History[0].MinAngles["knee"], 1e-6)
	assert.Empty(t, s.History[0].Feedback)
}

func TestProcessor_RepsMatchValidHistory(t *testing.T) {
	p, clock := newTestSquat(t)

	var all []float64
	for i := 0; i < 4; i++ {
		all = append(all, fullRep()...)
	}
	reps := 0
	states := feed(t, p, clock, all, func(i int, f pose.Frame) {
		// Spoil the second rep near the bottom (95 degrees).
		if i == len(fullRep())+17 {
			raiseHands(f)
		}
	})
	for _, s := range states {
		assert.Equal(t, countValid(s.History), s.Reps)
		reps = s.Reps
	}
	assert.Equal(t, 3, reps)
	assert.Len(t, states[len(states)-1].History, 4)
}

func raiseHands(f pose.Frame) {
	f[pose.LeftWrist].Y = f[pose.Nose].Y - 0.05
	f[pose.RightWrist].Y = f[pose.Nose].Y - 0.05
}
