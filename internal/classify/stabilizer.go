package classify

import (
	"time"
)

// Stabilizer defaults.
const (
	DefaultConfidenceGate = 0.8
	DefaultDebounce       = 500 * time.Millisecond
)

// StabilizerConfig tunes the debounce behaviour.
type StabilizerConfig struct {
	// ConfidenceGate: results at or below this confidence are read as Correct.
	ConfidenceGate float64
	// Debounce is how long a new non-correct label must persist before it is adopted.
	Debounce time.Duration
}

// DefaultStabilizerConfig returns the standard gate and debounce window.
func DefaultStabilizerConfig() StabilizerConfig {
	return StabilizerConfig{
		ConfidenceGate: DefaultConfidenceGate,
		Debounce:       DefaultDebounce,
	}
}

// Stabilizer turns per-frame classifier output into a flicker-free label.
// Switching back to Correct is immediate; every other change must be
// observed continuously for the debounce window.
type Stabilizer struct {
	cfg          StabilizerConfig
	current      Label
	pending      *Label
	pendingSince time.Time
}

// NewStabilizer creates a Stabilizer whose stable label starts as Correct.
func NewStabilizer(cfg StabilizerConfig) *Stabilizer {
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	return &Stabilizer{cfg: cfg, current: Correct}
}

// Update feeds one observation and returns the stable label.
func (s *Stabilizer) Update(raw Label, confidence float64, now time.Time) Label {
	label := raw
	if confidence <= s.cfg.ConfidenceGate {
		label = Correct
	}

	if label == s.current {
		s.pending = nil
		return s.current
	}

	if label == Correct {
		s.current = Correct
		s.pending = nil
		return s.current
	}

	if s.pending == nil || *s.pending != label {
		l := label
		s.pending = &l
		s.pendingSince = now
	}

	if now.Sub(s.pendingSince) >= s.cfg.Debounce {
		s.current = label
		s.pending = nil
	}

	return s.current
}

// Observe is Update for an optional result. A nil result means the
// classifier produced nothing this frame and leaves the state untouched.
func (s *Stabilizer) Observe(res *Result, now time.Time) Label {
	if res == nil {
		return s.current
	}
	return s.Update(res.Label, res.Confidence, now)
}

// Current returns the stable label.
func (s *Stabilizer) Current() Label {
	return s.current
}

// Pending returns the candidate label being debounced and when it was first seen.
func (s *Stabilizer) Pending() (Label, time.Time, bool) {
	if s.pending == nil {
		return "", time.Time{}, false
	}
	return *s.pending, s.pendingSince, true
}

// Reset restores the initial state.
func (s *Stabilizer) Reset() {
	s.current = Correct
	s.pending = nil
	s.pendingSince = time.Time{}
}
