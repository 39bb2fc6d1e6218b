// Package session glues one exercise processor to one classification
// stabilizer and produces the per-frame update and the end-of-session summary.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/spotter/internal/classify"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/feedback"
	"github.com/ayusman/spotter/internal/geometry"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/pose"
)

// ErrStopped is returned by HandleFrame after Stop.
var ErrStopped = errors.New("session stopped")

// Update is everything a client needs to render one frame.
type Update struct {
	State exercise.State `json:"state"`
	// Visible is false when the rule-based visibility gate failed.
	Visible bool `json:"visible"`
	// Classification is the raw classifier output for this frame, if any.
	Classification *classify.Result `json:"classification,omitempty"`
	Stable         classify.Label   `json:"stable_label"`
	Display        feedback.Display `json:"display"`
	Cue            *feedback.Cue    `json:"cue,omitempty"`
	// Completed holds the rep record appended by this frame, if any.
	Completed *exercise.RepRecord `json:"completed,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithClassifier attaches the external posture model.
func WithClassifier(c classify.Classifier) Option {
	return func(s *Session) {
		s.classifier = c
	}
}

// WithClassifierTimeout bounds each model call. A frame whose call runs
// over is treated as unclassified.
func WithClassifierTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.classifierTimeout = d
		}
	}
}

// WithStabilizerConfig overrides the stabilizer gate and debounce window.
func WithStabilizerConfig(cfg classify.StabilizerConfig) Option {
	return func(s *Session) {
		s.stabilizer = classify.NewStabilizer(cfg)
	}
}

// Session is a single user's workout. It is not safe for concurrent use;
// frames must arrive from one caller in order.
type Session struct {
	processor  *exercise.Processor
	stabilizer *classify.Stabilizer
	classifier classify.Classifier
	cuer       *feedback.Cuer
	stopped    bool
	seen       int
	last       Update

	classifierTimeout time.Duration
}

// New creates a session around a processor.
func New(p *exercise.Processor, opts ...Option) *Session {
	s := &Session{
		processor:  p,
		stabilizer: classify.NewStabilizer(classify.DefaultStabilizerConfig()),
		cuer:       feedback.NewCuer(),

		classifierTimeout: classify.DefaultFrameTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.last = s.initial()
	return s
}

// Exercise returns the processor's exercise identifier.
func (s *Session) Exercise() string {
	return s.processor.Name()
}

// HandleFrame processes one frame observed at now.
//
// A malformed frame returns the previous update together with an error
// wrapping exercise.ErrMalformedFrame; nothing is mutated.
func (s *Session) HandleFrame(ctx context.Context, frame pose.Frame, now time.Time) (Update, error) {
	if s.stopped {
		return s.last, ErrStopped
	}

	state, err := s.processor.Process(frame)
	if err != nil {
		return s.last, err
	}

	u := Update{State: state, Visible: s.processor.Visible()}

	switch {
	case !u.Visible:
		s.stabilizer.Update(classify.NotVisible, 1.0, now)
	case s.classifier != nil:
		u.Classification = s.runClassifier(ctx, frame)
		s.stabilizer.Observe(u.Classification, now)
	default:
		// Without a model, visibility is the only class; a visible frame clears it.
		s.stabilizer.Update(classify.Correct, 1.0, now)
	}
	u.Stable = s.stabilizer.Current()
	u.Display = feedback.Compose(u.Stable, state.Feedback, u.Visible, true)

	if u.Visible {
		res := classify.Result{Label: u.Stable, Confidence: 1.0}
		if u.Classification != nil {
			res = *u.Classification
		}
		if cue, ok := s.cuer.Next(res, geometry.SquatBiometrics(frame), state.Reps); ok {
			u.Cue = &cue
		}
	}

	if n := len(state.History); n > s.seen {
		rec := state.History[n-1]
		u.Completed = &rec
		s.seen = n
	}

	s.last = u
	return u, nil
}

func (s *Session) runClassifier(ctx context.Context, frame pose.Frame) *classify.Result {
	features, err := pose.Normalize(frame)
	if err != nil {
		monitoring.Logf("session: normalize: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.classifierTimeout)
	defer cancel()
	probs, err := s.classifier.Classify(ctx, features)
	if err != nil {
		monitoring.Logf("session: classify: %v", err)
		return nil
	}

	res, ok := classify.Decode(probs)
	if !ok {
		monitoring.Logf("session: discarding classifier output %v", probs)
		return nil
	}
	return &res
}

// Last returns the most recent update.
func (s *Session) Last() Update {
	return s.last
}

// Display returns the message to show right now. A stopped session shows
// the idle message.
func (s *Session) Display() feedback.Display {
	return feedback.Compose(s.stabilizer.Current(), s.last.State.Feedback, s.last.Visible, !s.stopped)
}

// Reset clears reps, history and the stabilizer. The session stays active.
func (s *Session) Reset() {
	s.processor.Reset()
	s.stabilizer.Reset()
	s.cuer.Reset()
	s.seen = 0
	s.last = s.initial()
}

func (s *Session) initial() Update {
	return Update{
		State:   s.processor.State(),
		Visible: true,
		Stable:  s.stabilizer.Current(),
		Display: feedback.Compose(s.stabilizer.Current(), nil, true, true),
	}
}

// Stop ends the session and returns its summary. A rep in progress is not
// included.
func (s *Session) Stop() Summary {
	s.stopped = true
	return s.Summary()
}

// Stopped reports whether Stop was called.
func (s *Session) Stopped() bool {
	return s.stopped
}

// Summary returns the coaching summary for the reps completed so far.
func (s *Session) Summary() Summary {
	return NewSummary(s.processor.Name(), s.processor.State())
}
