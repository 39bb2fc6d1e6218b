// Package config loads the spotter JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/spotter/internal/classify"
	"github.com/ayusman/spotter/internal/exercise"
)

// Defaults for fields omitted from the config file.
const (
	DefaultAddr     = "127.0.0.1:8080"
	DefaultHooksDir = "plugins"
	DefaultDBName   = "spotter.db"
	DefaultExercise = exercise.DefaultExercise
	maxFileSize     = 1 * 1024 * 1024
)

// Config is the root configuration. Every field is optional; the Get*
// methods supply defaults for anything left out, so partial files are safe.
type Config struct {
	Addr     *string `json:"addr,omitempty"`
	DBPath   *string `json:"db_path,omitempty"`
	HooksDir *string `json:"hooks_dir,omitempty"`

	// Coaching backend. An empty URL disables advice.
	CoachURL     *string `json:"coach_url,omitempty"`
	CoachTimeout *string `json:"coach_timeout,omitempty"` // duration string like "30s"

	// Classifier process. An empty command runs without a model.
	ClassifierCommand *string  `json:"classifier_command,omitempty"`
	ClassifierArgs    []string `json:"classifier_args,omitempty"`
	ClassifierIdle    *string  `json:"classifier_idle_timeout,omitempty"`
	ClassifierTimeout *string  `json:"classifier_timeout,omitempty"`       // per frame
	ClassifierStall   *string  `json:"classifier_stall_timeout,omitempty"` // restart after

	HookTimeout *string `json:"hook_timeout,omitempty"`

	// Squat tuning
	DeepAngle      *float64 `json:"deep_angle,omitempty"`
	StandingAngle  *float64 `json:"standing_angle,omitempty"`
	AlmostAngle    *float64 `json:"almost_angle,omitempty"`
	MinVisibility  *float64 `json:"min_visibility,omitempty"`
	ValgusRatio    *float64 `json:"valgus_ratio,omitempty"`
	StanceMinRatio *float64 `json:"stance_min_ratio,omitempty"`
	StanceMaxRatio *float64 `json:"stance_max_ratio,omitempty"`

	// Stabilizer
	ConfidenceGate *float64 `json:"confidence_gate,omitempty"`
	Debounce       *string  `json:"debounce,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a .json file no larger than 1MB and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	for name, v := range map[string]*string{
		"coach_timeout":            c.CoachTimeout,
		"classifier_idle_timeout":  c.ClassifierIdle,
		"classifier_timeout":       c.ClassifierTimeout,
		"classifier_stall_timeout": c.ClassifierStall,
		"hook_timeout":             c.HookTimeout,
		"debounce":                 c.Debounce,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	if c.MinVisibility != nil && (*c.MinVisibility < 0 || *c.MinVisibility > 1) {
		return fmt.Errorf("min_visibility must be between 0 and 1, got %f", *c.MinVisibility)
	}
	if c.ConfidenceGate != nil && (*c.ConfidenceGate < 0 || *c.ConfidenceGate > 1) {
		return fmt.Errorf("confidence_gate must be between 0 and 1, got %f", *c.ConfidenceGate)
	}

	th := c.Thresholds()
	if th.DeepAngle >= th.StandingAngle {
		return fmt.Errorf("deep_angle (%.1f) must be below standing_angle (%.1f)", th.DeepAngle, th.StandingAngle)
	}
	if th.AlmostAngle < th.DeepAngle || th.AlmostAngle > th.StandingAngle {
		return fmt.Errorf("almost_angle (%.1f) must lie between deep_angle and standing_angle", th.AlmostAngle)
	}
	if th.StanceMinRatio > th.StanceMaxRatio {
		return errors.New("stance_min_ratio must not exceed stance_max_ratio")
	}
	return nil
}

// GetAddr returns the HTTP listen address.
func (c *Config) GetAddr() string {
	if c.Addr == nil || *c.Addr == "" {
		return DefaultAddr
	}
	return *c.Addr
}

// GetDBPath returns the SQLite path, defaulting to ~/.spotter/spotter.db.
func (c *Config) GetDBPath() string {
	if c.DBPath != nil && *c.DBPath != "" {
		return *c.DBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDBName
	}
	return filepath.Join(home, ".spotter", DefaultDBName)
}

// GetHooksDir returns the cue hook directory.
func (c *Config) GetHooksDir() string {
	if c.HooksDir == nil || *c.HooksDir == "" {
		return DefaultHooksDir
	}
	return *c.HooksDir
}

// GetCoachURL returns the coaching backend base URL, or "" when disabled.
func (c *Config) GetCoachURL() string {
	if c.CoachURL == nil {
		return ""
	}
	return *c.CoachURL
}

// GetCoachTimeout returns the per-request coaching timeout.
func (c *Config) GetCoachTimeout() time.Duration {
	return durationOr(c.CoachTimeout, 30*time.Second)
}

// GetClassifierCommand returns the model process command, or "" when disabled.
func (c *Config) GetClassifierCommand() string {
	if c.ClassifierCommand == nil {
		return ""
	}
	return *c.ClassifierCommand
}

// GetClassifierIdle returns how long an unused model process is kept alive.
func (c *Config) GetClassifierIdle() time.Duration {
	return durationOr(c.ClassifierIdle, classify.DefaultIdleTimeout)
}

// GetClassifierTimeout returns the per-frame budget for one model call.
func (c *Config) GetClassifierTimeout() time.Duration {
	return durationOr(c.ClassifierTimeout, classify.DefaultFrameTimeout)
}

// GetClassifierStall returns how long an unanswered model call may stay
// outstanding before the process is restarted.
func (c *Config) GetClassifierStall() time.Duration {
	return durationOr(c.ClassifierStall, classify.DefaultStallTimeout)
}

// GetHookTimeout returns the per-hook execution timeout.
func (c *Config) GetHookTimeout() time.Duration {
	return durationOr(c.HookTimeout, 5*time.Second)
}

// Thresholds merges the configured tuning over the squat defaults.
func (c *Config) Thresholds() exercise.Thresholds {
	th := exercise.DefaultThresholds()
	setFloat(&th.DeepAngle, c.DeepAngle)
	setFloat(&th.StandingAngle, c.StandingAngle)
	setFloat(&th.AlmostAngle, c.AlmostAngle)
	setFloat(&th.MinVisibility, c.MinVisibility)
	setFloat(&th.ValgusRatio, c.ValgusRatio)
	setFloat(&th.StanceMinRatio, c.StanceMinRatio)
	setFloat(&th.StanceMaxRatio, c.StanceMaxRatio)
	return th
}

// StabilizerConfig merges the configured gate and debounce over the defaults.
func (c *Config) StabilizerConfig() classify.StabilizerConfig {
	sc := classify.DefaultStabilizerConfig()
	setFloat(&sc.ConfidenceGate, c.ConfidenceGate)
	sc.Debounce = durationOr(c.Debounce, sc.Debounce)
	return sc
}

// SubprocessConfig describes the model process, or false when none is configured.
func (c *Config) SubprocessConfig() (classify.SubprocessConfig, bool) {
	cmd := c.GetClassifierCommand()
	if cmd == "" {
		return classify.SubprocessConfig{}, false
	}
	return classify.SubprocessConfig{
		Command:      cmd,
		Args:         c.ClassifierArgs,
		IdleTimeout:  c.GetClassifierIdle(),
		StallTimeout: c.GetClassifierStall(),
	}, true
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
