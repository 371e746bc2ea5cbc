// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a GovernanceConfig from a JSON or YAML file.
//
// The file format is determined by the file extension:
//   - .json       — parsed with encoding/json
//   - .yaml, .yml — parsed with gopkg.in/yaml.v3
//
// Any other extension defaults to JSON.
//
// Missing fields default to the values returned by [DefaultConfig].
//
// Returns a non-nil error when the file cannot be read, the content cannot
// be decoded into a [GovernanceConfig], or validate finds the result
// internally inconsistent.
func LoadConfig(path string) (*GovernanceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("governance/config: read file %q: %w", path, err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("governance/config: parse YAML %q: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("governance/config: parse JSON %q: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("governance/config: invalid config in %q: %w", path, err)
	}

	return cfg, nil
}

// validate checks that the loaded config values are within the permitted
// ranges from §6 of the specification. It deliberately does not check
// suppression_threshold < trust_threshold: that cross-field invariant is
// governance.Config.validate's job, enforced once at governance.NewLoop,
// so the two packages cannot drift out of sync on the rule itself.
func (c *GovernanceConfig) validate() error {
	type bound struct {
		name     string
		value    float64
		min, max float64
	}
	for _, b := range []bound{
		{"trust_threshold", c.TrustThreshold, 0, 1},
		{"suppression_threshold", c.SuppressionThreshold, 0, 1},
		{"drift_delta", c.DriftDelta, 0, 1},
		{"reward_rate", c.RewardRate, 0, 1},
		{"penalty_rate", c.PenaltyRate, 0, 1},
		{"mutation_rate", c.MutationRate, 0, 1},
		{"target_success_rate", c.TargetSuccessRate, 0, 1},
		{"band_low", c.BandLow, 0, 1},
		{"band_high", c.BandHigh, 0, 1},
	} {
		if b.value < b.min || b.value > b.max {
			return fmt.Errorf("%s %.4f out of range [%.0f, %.0f]", b.name, b.value, b.min, b.max)
		}
	}
	if c.MaxRedemptionCycles < 0 {
		return fmt.Errorf("max_redemption_cycles %d must be >= 0", c.MaxRedemptionCycles)
	}
	if c.DriftWindow < 2 {
		return fmt.Errorf("drift_window %d must be >= 2", c.DriftWindow)
	}
	if c.MutationWindowMin < 1 || c.MutationWindowMin > c.MutationWindow {
		return fmt.Errorf("mutation_window_min %d must be >= 1 and <= mutation_window %d", c.MutationWindowMin, c.MutationWindow)
	}
	if c.MaxParallelExecutions < 1 {
		return fmt.Errorf("max_parallel_executions %d must be >= 1", c.MaxParallelExecutions)
	}
	if c.TaskTimeoutMS < 0 {
		return fmt.Errorf("task_timeout_ms %d must be >= 0", c.TaskTimeoutMS)
	}
	return nil
}
