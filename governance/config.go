// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import "time"

// PrioritizerWeights holds the (impact, urgency, risk) weights used by the
// Prioritizer's scoring function. Weights need not sum to 1; they are
// applied as given.
type PrioritizerWeights struct {
	Impact  float64
	Urgency float64
	Risk    float64
}

// Config holds all configuration for a Loop instance. Zero values are
// replaced with sensible defaults by applyDefaults.
type Config struct {
	// Thresholds holds the three values the Mutation Engine is permitted to
	// adjust over time.
	Thresholds Thresholds

	// MaxRedemptionCycles bounds how many probation attempts a suppressed
	// agent gets before being permanently EXCLUDED. Default 4.
	MaxRedemptionCycles int

	// DriftWindow is the number of trailing trust samples kept per agent
	// for drift detection. Default 10.
	DriftWindow int

	// RewardRate (η) is the asymmetric success update rate. Default 0.02.
	RewardRate float64

	// PenaltyRate (γ) is the asymmetric failure update rate. Default 0.05.
	PenaltyRate float64

	// MutationRate (Δ) is the threshold step size applied by the Mutation
	// Engine. Default 0.02.
	MutationRate float64

	// MutationWindow (M) is the number of trailing cycle success rates
	// averaged by the Mutation Engine. Default 10.
	MutationWindow int

	// MutationWindowMin (M_min) is the minimum number of cycles of history
	// required before the Mutation Engine will act. Below this, every
	// cycle mutates HOLD. Default 5.
	MutationWindowMin int

	// TargetSuccessRate (s*) is the success rate the Mutation Engine steers
	// toward. Default 0.85.
	TargetSuccessRate float64

	// BandLow and BandHigh define the hysteresis band around
	// TargetSuccessRate within which the Mutation Engine holds steady.
	// Defaults 0.10 and 0.05.
	BandLow  float64
	BandHigh float64

	// MaxParallelExecutions caps the executor fan-out within one cycle.
	// Default 1 (sequential).
	MaxParallelExecutions int

	// TaskTimeout bounds one executor call. Zero means unbounded.
	TaskTimeout time.Duration

	// PrioritizerWeights are the (impact, urgency, risk) weights used to
	// order tasks. Defaults to (0.4, 0.4, 0.2).
	PrioritizerWeights PrioritizerWeights
}

// trustThresholdBand and suppressionThresholdBand are the safety clamps the
// Mutation Engine must respect after every adjustment (spec §4.6).
var (
	trustThresholdBand       = [2]float64{0.5, 0.9}
	suppressionThresholdBand = [2]float64{0.4, 0.85}
)

// applyDefaults fills zero-valued fields with their documented defaults.
//
// The suppression_threshold default is deliberately 0.55, not the 0.75 that
// also appears in some source material alongside a 0.70 trust_threshold —
// that combination violates suppression_threshold < trust_threshold, which
// this package treats as a hard invariant rather than something to silently
// inherit (see the design notes on the resolved Open Question).
func (c *Config) applyDefaults() {
	if c.Thresholds.TrustThreshold == 0 {
		c.Thresholds.TrustThreshold = 0.70
	}
	if c.Thresholds.SuppressionThreshold == 0 {
		c.Thresholds.SuppressionThreshold = 0.55
	}
	if c.Thresholds.DriftDelta == 0 {
		c.Thresholds.DriftDelta = 0.10
	}
	if c.MaxRedemptionCycles == 0 {
		c.MaxRedemptionCycles = 4
	}
	if c.DriftWindow == 0 {
		c.DriftWindow = 10
	}
	if c.RewardRate == 0 {
		c.RewardRate = 0.02
	}
	if c.PenaltyRate == 0 {
		c.PenaltyRate = 0.05
	}
	if c.MutationRate == 0 {
		c.MutationRate = 0.02
	}
	if c.MutationWindow == 0 {
		c.MutationWindow = 10
	}
	if c.MutationWindowMin == 0 {
		c.MutationWindowMin = 5
	}
	if c.TargetSuccessRate == 0 {
		c.TargetSuccessRate = 0.85
	}
	if c.BandLow == 0 {
		c.BandLow = 0.10
	}
	if c.BandHigh == 0 {
		c.BandHigh = 0.05
	}
	if c.MaxParallelExecutions == 0 {
		c.MaxParallelExecutions = 1
	}
	if c.PrioritizerWeights == (PrioritizerWeights{}) {
		c.PrioritizerWeights = PrioritizerWeights{Impact: 0.4, Urgency: 0.4, Risk: 0.2}
	}
}

// validate returns a non-nil *ConfigError when Config contains values the
// Loop cannot safely operate under.
func (c *Config) validate() error {
	if c.Thresholds.TrustThreshold < trustThresholdBand[0] || c.Thresholds.TrustThreshold > trustThresholdBand[1] {
		return &ConfigError{Field: "Thresholds.TrustThreshold", Message: "must be in [0.5, 0.9]"}
	}
	if c.Thresholds.SuppressionThreshold < suppressionThresholdBand[0] || c.Thresholds.SuppressionThreshold > suppressionThresholdBand[1] {
		return &ConfigError{Field: "Thresholds.SuppressionThreshold", Message: "must be in [0.4, 0.85]"}
	}
	if c.Thresholds.SuppressionThreshold >= c.Thresholds.TrustThreshold {
		return &ConfigError{
			Field:   "Thresholds",
			Message: "suppression_threshold must be strictly less than trust_threshold",
		}
	}
	if c.MaxRedemptionCycles < 0 {
		return &ConfigError{Field: "MaxRedemptionCycles", Message: "must be >= 0"}
	}
	if c.DriftWindow < 2 {
		return &ConfigError{Field: "DriftWindow", Message: "must be >= 2"}
	}
	if c.RewardRate < 0 || c.RewardRate > 1 {
		return &ConfigError{Field: "RewardRate", Message: "must be in [0,1]"}
	}
	if c.PenaltyRate < 0 || c.PenaltyRate > 1 {
		return &ConfigError{Field: "PenaltyRate", Message: "must be in [0,1]"}
	}
	if c.MutationWindowMin < 1 || c.MutationWindowMin > c.MutationWindow {
		return &ConfigError{Field: "MutationWindowMin", Message: "must be >= 1 and <= MutationWindow"}
	}
	if c.MaxParallelExecutions < 1 {
		return &ConfigError{Field: "MaxParallelExecutions", Message: "must be >= 1"}
	}
	if c.TaskTimeout < 0 {
		return &ConfigError{Field: "TaskTimeout", Message: "must be >= 0"}
	}
	return nil
}
