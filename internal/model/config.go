package model

import (
	"fmt"
	"time"
)

// ConfigError reports an invalid configuration value. Configuration errors are
// fatal: a session never starts with one.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// MutationConfig holds every probability and bound used by the mutation engine.
// It is passed by value and never modified after construction.
type MutationConfig struct {
	SameExtProbability    float64 `yaml:"same_ext_probability"`
	MinBytesChanged       int     `yaml:"min_bytes_changed"`
	MaxBytesChanged       int     `yaml:"max_bytes_changed"`
	MaxRelativeChange     float64 `yaml:"max_relative_change"`
	SizeChangeProbability float64 `yaml:"size_change_probability"`
	BiggerSizeProbability float64 `yaml:"bigger_size_probability"`
	MinSizeChange         int     `yaml:"min_size_change"`
	MaxSizeChange         int     `yaml:"max_size_change"`
}

// DefaultMutationConfig returns the stock fuzzing profile.
func DefaultMutationConfig() MutationConfig {
	return MutationConfig{
		SameExtProbability:    0.7,
		MinBytesChanged:       1,
		MaxBytesChanged:       50,
		MaxRelativeChange:     0.01,
		SizeChangeProbability: 0.1,
		BiggerSizeProbability: 0.5,
		MinSizeChange:         1,
		MaxSizeChange:         7,
	}
}

// Validate checks probabilities are in [0,1] and every bounded pair is ordered.
func (c MutationConfig) Validate() error {
	probabilities := []struct {
		field string
		value float64
	}{
		{"same_ext_probability", c.SameExtProbability},
		{"max_relative_change", c.MaxRelativeChange},
		{"size_change_probability", c.SizeChangeProbability},
		{"bigger_size_probability", c.BiggerSizeProbability},
	}

	for _, p := range probabilities {
		if p.value < 0 || p.value > 1 {
			return &ConfigError{Field: p.field, Reason: fmt.Sprintf("%v is outside [0,1]", p.value)}
		}
	}

	if c.MinBytesChanged < 1 {
		return &ConfigError{Field: "min_bytes_changed", Reason: "at least one byte must change"}
	}

	if c.MinBytesChanged > c.MaxBytesChanged {
		return &ConfigError{
			Field:  "max_bytes_changed",
			Reason: fmt.Sprintf("%d is below min_bytes_changed %d", c.MaxBytesChanged, c.MinBytesChanged),
		}
	}

	if c.MinSizeChange < 0 {
		return &ConfigError{Field: "min_size_change", Reason: "must not be negative"}
	}

	if c.MinSizeChange > c.MaxSizeChange {
		return &ConfigError{
			Field:  "max_size_change",
			Reason: fmt.Sprintf("%d is below min_size_change %d", c.MaxSizeChange, c.MinSizeChange),
		}
	}

	return nil
}

// ExecConfig describes how the target program is launched and observed.
type ExecConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args,omitempty"`
	Budget  time.Duration `yaml:"budget"`
	// KillGrace bounds how long a stopped target may take to exit before it is killed.
	KillGrace time.Duration `yaml:"kill_grace"`
	// CleanExitPasses classifies a zero exit inside the budget as passed.
	CleanExitPasses bool `yaml:"clean_exit_passes"`
}

// Validate checks the target is named and the budgets are positive.
func (c ExecConfig) Validate() error {
	if c.Command == "" {
		return &ConfigError{Field: "target.command", Reason: "no target program given"}
	}

	if c.Budget <= 0 {
		return &ConfigError{Field: "exec.budget", Reason: "must be positive"}
	}

	if c.KillGrace < 0 {
		return &ConfigError{Field: "exec.kill_grace", Reason: "must not be negative"}
	}

	return nil
}
