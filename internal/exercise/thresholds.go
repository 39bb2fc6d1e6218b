package exercise

import "time"

// Thresholds are the hand-tuned constants of a movement pattern.
type Thresholds struct {
	// DeepAngle: mean knee angle below which the rep counts as deep enough.
	DeepAngle float64
	// StandingAngle: mean knee angle above which the user is standing.
	StandingAngle float64
	// AlmostAngle: a descent whose minimum stays below this but never reaches
	// DeepAngle is reported as a partial rep.
	AlmostAngle float64
	// MinVisibility gates the landmarks the form checks depend on.
	MinVisibility float64
	// ValgusRatio: knees closer than this fraction of hip width are caving in.
	ValgusRatio float64
	// StanceMinRatio and StanceMaxRatio bound ankle width relative to shoulder width.
	StanceMinRatio float64
	StanceMaxRatio float64
}

// DefaultThresholds returns the squat tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DeepAngle:      110,
		StandingAngle:  160,
		AlmostAngle:    140,
		MinVisibility:  0.5,
		ValgusRatio:    0.8,
		StanceMinRatio: 0.8,
		StanceMaxRatio: 1.5,
	}
}

// Option configures a Processor.
type Option func(*options)

type options struct {
	thresholds Thresholds
	clock      func() time.Time
}

func defaultOptions() options {
	return options{
		thresholds: DefaultThresholds(),
		clock:      time.Now,
	}
}

// WithThresholds overrides the movement tuning.
func WithThresholds(th Thresholds) Option {
	return func(o *options) {
		o.thresholds = th
	}
}

// WithClock sets the time source used for rep timing.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}
