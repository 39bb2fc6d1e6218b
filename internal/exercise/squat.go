package exercise

import (
	"fmt"
	"math"

	"github.com/ayusman/spotter/internal/geometry"
	"github.com/ayusman/spotter/internal/pose"
)

// Squat form messages.
const (
	MsgNotVisible    = "Body not fully visible"
	MsgKneesCaving   = "Knees caving in!"
	MsgHandsTooHigh  = "Hands too high!"
	MsgStanceNarrow  = "Stance too narrow!"
	MsgStanceWide    = "Stance too wide!"
	msgGoLowerFormat = "Go lower! Reached %d°"
)

var squatGate = []int{
	pose.LeftHip, pose.RightHip,
	pose.LeftKnee, pose.RightKnee,
	pose.LeftAnkle, pose.RightAnkle,
}

// Squat implements the squat movement pattern using the mean knee angle
// (hip-knee-ankle) as depth metric.
type Squat struct {
	th Thresholds
	t  *Tracker
}

// NewSquat returns a squat Processor.
func NewSquat(opts ...Option) *Processor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := newTracker(o.clock)
	return &Processor{
		name:     "squats",
		movement: &Squat{th: o.thresholds, t: t},
		tracker:  t,
	}
}

// CheckForm applies, in order: visibility gate, knee valgus, hand position,
// stance width. Every violated rule is reported.
func (s *Squat) CheckForm(f pose.Frame) FormResult {
	if !f.AllVisible(s.th.MinVisibility, squatGate...) {
		return FormResult{
			Visible:    false,
			IsGoodForm: false,
			Feedback:   []string{MsgNotVisible},
			BadPoints:  []int{},
		}
	}

	res := FormResult{
		Visible:    true,
		IsGoodForm: true,
		Feedback:   []string{},
		BadPoints:  []int{},
	}
	fail := func(msg string, points ...int) {
		res.IsGoodForm = false
		res.Feedback = append(res.Feedback, msg)
		res.BadPoints = append(res.BadPoints, points...)
	}

	hipWidth := geometry.HorizontalSpan(f[pose.LeftHip], f[pose.RightHip])
	kneeWidth := geometry.HorizontalSpan(f[pose.LeftKnee], f[pose.RightKnee])
	if kneeWidth < s.th.ValgusRatio*hipWidth {
		fail(MsgKneesCaving, pose.LeftKnee, pose.RightKnee)
	}

	noseY := f[pose.Nose].Y
	if f[pose.LeftWrist].Y < noseY || f[pose.RightWrist].Y < noseY {
		fail(MsgHandsTooHigh, pose.LeftWrist, pose.RightWrist)
	}

	shoulderWidth := geometry.HorizontalSpan(f[pose.LeftShoulder], f[pose.RightShoulder])
	ankleWidth := geometry.HorizontalSpan(f[pose.LeftAnkle], f[pose.RightAnkle])
	switch {
	case ankleWidth < s.th.StanceMinRatio*shoulderWidth:
		fail(MsgStanceNarrow, pose.LeftAnkle, pose.RightAnkle)
	case ankleWidth > s.th.StanceMaxRatio*shoulderWidth:
		fail(MsgStanceWide, pose.LeftAnkle, pose.RightAnkle)
	}

	return res
}

// CountReps advances the squat state machine. Frames that failed the
// visibility gate are skipped.
func (s *Squat) CountReps(f pose.Frame, form FormResult) {
	if !form.Visible {
		return
	}

	left := geometry.AngleBetween(f[pose.LeftHip], f[pose.LeftKnee], f[pose.LeftAnkle])
	right := geometry.AngleBetween(f[pose.RightHip], f[pose.RightKnee], f[pose.RightAnkle])
	angle := (left + right) / 2

	isDeep := angle < s.th.DeepAngle
	isStanding := angle > s.th.StandingAngle

	t := s.t
	switch t.Phase() {
	case PhaseStart, PhaseUp:
		t.TrackMin(angle)
		if isDeep {
			rep := t.BeginRep(form.IsGoodForm)
			rep.StartAngles["knee"] = angle
			if !form.IsGoodForm {
				rep.AddFeedback(form.Feedback...)
			}
			s.observe(rep, f, angle, left, right)
			t.ResetMin(angle)
		} else if isStanding && t.MinAngle() < s.th.AlmostAngle {
			t.Note(fmt.Sprintf(msgGoLowerFormat, int(math.Round(t.MinAngle()))))
			t.ResetMin(angle)
		}

	case PhaseDown:
		rep := t.Rep()
		if rep.ObserveMin("knee", angle) {
			rep.Bottom = t.Now()
		}
		s.observe(rep, f, angle, left, right)
		if !form.IsGoodForm {
			t.MarkBad(form.Feedback)
		}
		if isStanding {
			t.FinishRep()
			t.ResetMin(angle)
		}
	}
}

func (s *Squat) observe(rep *Rep, f pose.Frame, angle, left, right float64) {
	rep.ObserveMin("knee", angle)
	rep.ObserveMin("left_knee", left)
	rep.ObserveMin("right_knee", right)

	hips := geometry.Midpoint(f[pose.LeftHip], f[pose.RightHip])
	rep.ObserveHipX(hips.X)
	rep.ObserveAsymmetry(left, right)

	if f.AllVisible(s.th.MinVisibility, pose.LeftShoulder, pose.RightShoulder) {
		shoulders := geometry.Midpoint(f[pose.LeftShoulder], f[pose.RightShoulder])
		rep.ObserveTorsoLean(geometry.LeanFromVertical(shoulders, hips))
	}
}
