package exercise

import (
	"fmt"
	"math"
	"time"

	"github.com/ayusman/spotter/internal/pose"
)

// Tracker holds the rep bookkeeping shared by every movement pattern:
// the observable state, the running minimum used outside a rep, and the
// rep currently in progress.
type Tracker struct {
	clock    func() time.Time
	state    State
	notes    []string
	minAngle float64
	rep      *Rep
}

// Rep accumulates measurements for the rep in progress.
type Rep struct {
	Start       time.Time
	Bottom      time.Time
	Good        bool
	StartAngles map[string]float64
	MinAngles   map[string]float64

	feedback []string
	seen     map[string]bool

	metrics    RepMetrics
	hasMetrics bool
	originX    float64
	hasOrigin  bool
}

func newTracker(clock func() time.Time) *Tracker {
	t := &Tracker{clock: clock}
	t.Reset()
	return t
}

// Reset returns the tracker to its freshly constructed state.
func (t *Tracker) Reset() {
	t.state = State{
		Phase:     PhaseStart,
		IsGoodRep: true,
		Feedback:  []string{},
		BadPoints: []int{},
		History:   []RepRecord{},
	}
	t.notes = nil
	t.minAngle = math.Inf(1)
	t.rep = nil
}

// Now returns the current time from the tracker's clock.
func (t *Tracker) Now() time.Time {
	return t.clock()
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	return t.state.Phase
}

// Note adds a rep-counting message to this frame's feedback.
func (t *Tracker) Note(msg string) {
	t.notes = append(t.notes, msg)
}

// TrackMin lowers the running minimum if angle is below it.
func (t *Tracker) TrackMin(angle float64) {
	if angle < t.minAngle {
		t.minAngle = angle
	}
}

// MinAngle returns the running minimum since the last ResetMin.
func (t *Tracker) MinAngle() float64 {
	return t.minAngle
}

// ResetMin restarts the running minimum from angle.
func (t *Tracker) ResetMin(angle float64) {
	t.minAngle = angle
}

// BeginRep moves to PhaseDown and starts timing a new rep.
func (t *Tracker) BeginRep(good bool) *Rep {
	now := t.clock()
	t.rep = &Rep{
		Start:       now,
		Bottom:      now,
		Good:        good,
		StartAngles: make(map[string]float64),
		MinAngles:   make(map[string]float64),
		seen:        make(map[string]bool),
	}
	t.state.Phase = PhaseDown
	t.state.IsGoodRep = good
	return t.rep
}

// Rep returns the rep in progress, or nil outside PhaseDown.
func (t *Tracker) Rep() *Rep {
	return t.rep
}

// MarkBad latches the rep in progress as failed. A failed rep never recovers.
func (t *Tracker) MarkBad(feedback []string) {
	if t.rep == nil {
		return
	}
	t.rep.Good = false
	t.rep.AddFeedback(feedback...)
	t.state.IsGoodRep = false
}

// FinishRep closes the rep in progress, appends its record to the history
// and counts it when valid. It moves the tracker to PhaseUp.
func (t *Tracker) FinishRep() RepRecord {
	rep := t.rep
	if rep == nil {
		return RepRecord{}
	}
	end := t.clock()

	rec := RepRecord{
		Duration:    end.Sub(rep.Start).Seconds(),
		Feedback:    append([]string{}, rep.feedback...),
		MinAngles:   cloneAngles(rep.MinAngles),
		StartAngles: cloneAngles(rep.StartAngles),
		IsValid:     rep.Good,
	}
	if rep.hasMetrics {
		m := rep.metrics
		m.EccentricDuration = rep.Bottom.Sub(rep.Start).Seconds()
		m.ConcentricDuration = end.Sub(rep.Bottom).Seconds()
		rec.Metrics = &m
	}

	t.state.History = append(t.state.History, rec)
	if rec.IsValid {
		t.state.Reps++
	}
	t.state.LastRepDuration = rec.Duration
	t.state.IsGoodRep = rec.IsValid
	t.state.Phase = PhaseUp
	t.rep = nil

	return rec
}

// snapshot publishes this frame's form result and returns an independent copy.
func (t *Tracker) snapshot(form FormResult) State {
	t.state.Feedback = append(append([]string{}, form.Feedback...), t.notes...)
	t.state.BadPoints = append([]int{}, form.BadPoints...)
	t.notes = nil
	return t.state.clone()
}

// AddFeedback records distinct messages in first-seen order.
func (r *Rep) AddFeedback(msgs ...string) {
	for _, m := range msgs {
		if r.seen[m] {
			continue
		}
		r.seen[m] = true
		r.feedback = append(r.feedback, m)
	}
}

// ObserveMin records angle under key if it is a new minimum for this rep.
// It reports whether the minimum changed.
func (r *Rep) ObserveMin(key string, angle float64) bool {
	cur, ok := r.MinAngles[key]
	if ok && angle >= cur {
		return false
	}
	r.MinAngles[key] = angle
	return true
}

// ObserveHipX tracks the peak horizontal drift of the hips from the rep start.
func (r *Rep) ObserveHipX(x float64) {
	if !r.hasOrigin {
		r.originX = x
		r.hasOrigin = true
	}
	r.hasMetrics = true
	r.metrics.HipSway = math.Max(r.metrics.HipSway, math.Abs(x-r.originX))
}

// ObserveTorsoLean tracks the peak torso lean in degrees.
func (r *Rep) ObserveTorsoLean(deg float64) {
	r.hasMetrics = true
	r.metrics.TorsoAngle = math.Max(r.metrics.TorsoAngle, deg)
}

// ObserveAsymmetry tracks the peak left/right angle difference in degrees.
func (r *Rep) ObserveAsymmetry(left, right float64) {
	r.hasMetrics = true
	r.metrics.KneeSymmetry = math.Max(r.metrics.KneeSymmetry, math.Abs(left-right))
}

// Processor drives one Movement frame by frame.
type Processor struct {
	name     string
	movement Movement
	tracker  *Tracker
	last     FormResult
}

// Name returns the exercise identifier the processor was built for.
func (p *Processor) Name() string {
	return p.name
}

// Reset clears reps, history and all cross-frame trackers. It is safe at any
// point, including mid-rep; a rep in progress is dropped.
func (p *Processor) Reset() {
	p.tracker.Reset()
	p.last = FormResult{}
}

// Visible reports whether the last accepted frame passed the visibility gate.
func (p *Processor) Visible() bool {
	return p.last.Visible
}

// Process runs the form check and rep counter for one frame and returns a
// snapshot. Malformed frames are discarded: the last valid state is returned
// alongside an error wrapping ErrMalformedFrame.
func (p *Processor) Process(f pose.Frame) (State, error) {
	if err := f.Validate(); err != nil {
		return p.tracker.state.clone(), fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	form := p.movement.CheckForm(f)
	p.movement.CountReps(f, form)
	p.last = form

	return p.tracker.snapshot(form), nil
}

// State returns the last published snapshot without processing a frame.
func (p *Processor) State() State {
	return p.tracker.state.clone()
}

// CheckForm exposes the movement's posture rules.
func (p *Processor) CheckForm(f pose.Frame) FormResult {
	return p.movement.CheckForm(f)
}
