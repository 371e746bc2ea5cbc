// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package config provides a serialisation-friendly GovernanceConfig struct
// and loaders for reading configuration from JSON/YAML files or
// GOVPLANE_-prefixed environment variables, mirroring the configuration
// surface in §6 of the governance specification.
//
// # Typical Usage
//
//	cfg, err := config.LoadConfig("/etc/governance-plane/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loop, err := governance.NewLoop(cfg.ToGovernanceConfig(), store)
//
// # Config Fields
//
// See [GovernanceConfig] for field documentation.
package config

import "time"

// GovernanceConfig is the flat, serialisation-friendly configuration struct
// for a governance.Loop instance. Every field corresponds to one row of the
// §6 configuration surface table; zero values are left for
// governance.Config's own defaulting once converted via ToGovernanceConfig.
//
// Tags:
//   - json:"..." — used by encoding/json (JSON files).
//   - yaml:"..." — used by gopkg.in/yaml.v3 (YAML files).
type GovernanceConfig struct {
	// TrustThreshold is the minimum trust score in [0,1] required for
	// assignment. Default: 0.70.
	TrustThreshold float64 `json:"trust_threshold" yaml:"trust_threshold"`

	// SuppressionThreshold is the trust floor below which an ACTIVE agent
	// is suppressed. Must be strictly less than TrustThreshold.
	// Default: 0.55.
	SuppressionThreshold float64 `json:"suppression_threshold" yaml:"suppression_threshold"`

	// MaxRedemptionCycles bounds probation attempts before EXCLUDED.
	// Default: 4.
	MaxRedemptionCycles int `json:"max_redemption_cycles" yaml:"max_redemption_cycles"`

	// DriftDelta is the rolling-mean gap that triggers a DriftEvent.
	// Default: 0.10.
	DriftDelta float64 `json:"drift_delta" yaml:"drift_delta"`

	// DriftWindow is the number of trailing trust samples kept per agent.
	// Default: 10.
	DriftWindow int `json:"drift_window" yaml:"drift_window"`

	// RewardRate (η) is the asymmetric success update rate. Default: 0.02.
	RewardRate float64 `json:"reward_rate" yaml:"reward_rate"`

	// PenaltyRate (γ) is the asymmetric failure update rate. Default: 0.05.
	PenaltyRate float64 `json:"penalty_rate" yaml:"penalty_rate"`

	// MutationRate (Δ) is the threshold step size. Default: 0.02.
	MutationRate float64 `json:"mutation_rate" yaml:"mutation_rate"`

	// MutationWindow (M) is the number of trailing cycles averaged by the
	// Mutation Engine. Default: 10.
	MutationWindow int `json:"mutation_window" yaml:"mutation_window"`

	// MutationWindowMin (M_min) is the minimum cycle history required
	// before the Mutation Engine acts. Default: 5.
	MutationWindowMin int `json:"mutation_window_min" yaml:"mutation_window_min"`

	// TargetSuccessRate (s*) is the success rate the Mutation Engine
	// steers toward. Default: 0.85.
	TargetSuccessRate float64 `json:"target_success_rate" yaml:"target_success_rate"`

	// BandLow and BandHigh define the hysteresis band around
	// TargetSuccessRate. Defaults: 0.10 and 0.05.
	BandLow  float64 `json:"band_low" yaml:"band_low"`
	BandHigh float64 `json:"band_high" yaml:"band_high"`

	// MaxParallelExecutions caps the executor fan-out within one cycle.
	// Default: 1.
	MaxParallelExecutions int `json:"max_parallel_executions" yaml:"max_parallel_executions"`

	// TaskTimeoutMS bounds one executor call, in milliseconds. Zero means
	// unbounded.
	TaskTimeoutMS int64 `json:"task_timeout_ms" yaml:"task_timeout_ms"`

	// PrioritizerWeights are the (impact, urgency, risk) weights used to
	// order tasks. Defaults to (0.4, 0.4, 0.2).
	PrioritizerWeights PrioritizerWeights `json:"prioritizer_weights" yaml:"prioritizer_weights"`
}

// PrioritizerWeights mirrors governance.PrioritizerWeights for
// serialisation purposes.
type PrioritizerWeights struct {
	Impact  float64 `json:"impact" yaml:"impact"`
	Urgency float64 `json:"urgency" yaml:"urgency"`
	Risk    float64 `json:"risk" yaml:"risk"`
}

// DefaultConfig returns a GovernanceConfig populated with the defaults from
// §6 of the specification.
func DefaultConfig() *GovernanceConfig {
	return &GovernanceConfig{
		TrustThreshold:        0.70,
		SuppressionThreshold:  0.55,
		MaxRedemptionCycles:   4,
		DriftDelta:            0.10,
		DriftWindow:           10,
		RewardRate:            0.02,
		PenaltyRate:           0.05,
		MutationRate:          0.02,
		MutationWindow:        10,
		MutationWindowMin:     5,
		TargetSuccessRate:     0.85,
		BandLow:               0.10,
		BandHigh:              0.05,
		MaxParallelExecutions: 1,
		PrioritizerWeights:    PrioritizerWeights{Impact: 0.4, Urgency: 0.4, Risk: 0.2},
	}
}

// TaskTimeout returns TaskTimeoutMS as a time.Duration.
func (c *GovernanceConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMS) * time.Millisecond
}
