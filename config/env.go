// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadConfigFromEnv builds a GovernanceConfig from GOVPLANE_-prefixed
// environment variables. Unset variables fall back to the values returned
// by [DefaultConfig].
//
// # Environment Variables
//
//	GOVPLANE_TRUST_THRESHOLD          float [0,1]  (default 0.70)
//	GOVPLANE_SUPPRESSION_THRESHOLD    float [0,1]  (default 0.55)
//	GOVPLANE_MAX_REDEMPTION_CYCLES    integer ≥ 0  (default 4)
//	GOVPLANE_DRIFT_DELTA              float [0,1]  (default 0.10)
//	GOVPLANE_DRIFT_WINDOW             integer ≥ 2  (default 10)
//	GOVPLANE_REWARD_RATE              float [0,1]  (default 0.02)
//	GOVPLANE_PENALTY_RATE             float [0,1]  (default 0.05)
//	GOVPLANE_MUTATION_RATE            float [0,1]  (default 0.02)
//	GOVPLANE_MUTATION_WINDOW          integer ≥ 1  (default 10)
//	GOVPLANE_MUTATION_WINDOW_MIN      integer ≥ 1  (default 5)
//	GOVPLANE_TARGET_SUCCESS_RATE      float [0,1]  (default 0.85)
//	GOVPLANE_BAND_LOW                 float [0,1]  (default 0.10)
//	GOVPLANE_BAND_HIGH                float [0,1]  (default 0.05)
//	GOVPLANE_MAX_PARALLEL_EXECUTIONS  integer ≥ 1  (default 1)
//	GOVPLANE_TASK_TIMEOUT_MS          integer ≥ 0  (default 0, unbounded)
//
// Returns a non-nil error when any variable is present but cannot be parsed.
// Range/ordering validation (e.g. suppression_threshold < trust_threshold)
// is left to governance.Config.validate, invoked when the loop is
// constructed.
func LoadConfigFromEnv() (*GovernanceConfig, error) {
	cfg := DefaultConfig()

	floatFields := []struct {
		key string
		dst *float64
	}{
		{"GOVPLANE_TRUST_THRESHOLD", &cfg.TrustThreshold},
		{"GOVPLANE_SUPPRESSION_THRESHOLD", &cfg.SuppressionThreshold},
		{"GOVPLANE_DRIFT_DELTA", &cfg.DriftDelta},
		{"GOVPLANE_REWARD_RATE", &cfg.RewardRate},
		{"GOVPLANE_PENALTY_RATE", &cfg.PenaltyRate},
		{"GOVPLANE_MUTATION_RATE", &cfg.MutationRate},
		{"GOVPLANE_TARGET_SUCCESS_RATE", &cfg.TargetSuccessRate},
		{"GOVPLANE_BAND_LOW", &cfg.BandLow},
		{"GOVPLANE_BAND_HIGH", &cfg.BandHigh},
	}
	for _, f := range floatFields {
		raw, ok := lookupEnv(f.key)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("governance/config: %s %q is not a float: %w", f.key, raw, err)
		}
		*f.dst = v
	}

	intFields := []struct {
		key string
		dst *int
	}{
		{"GOVPLANE_MAX_REDEMPTION_CYCLES", &cfg.MaxRedemptionCycles},
		{"GOVPLANE_DRIFT_WINDOW", &cfg.DriftWindow},
		{"GOVPLANE_MUTATION_WINDOW", &cfg.MutationWindow},
		{"GOVPLANE_MUTATION_WINDOW_MIN", &cfg.MutationWindowMin},
		{"GOVPLANE_MAX_PARALLEL_EXECUTIONS", &cfg.MaxParallelExecutions},
	}
	for _, f := range intFields {
		raw, ok := lookupEnv(f.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("governance/config: %s %q is not an integer: %w", f.key, raw, err)
		}
		*f.dst = n
	}

	if raw, ok := lookupEnv("GOVPLANE_TASK_TIMEOUT_MS"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("governance/config: GOVPLANE_TASK_TIMEOUT_MS %q is not an integer: %w", raw, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("governance/config: GOVPLANE_TASK_TIMEOUT_MS %d must be >= 0", n)
		}
		cfg.TaskTimeoutMS = n
	}

	return cfg, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// lookupEnv returns (value, true) when the variable is set and non-empty,
// or ("", false) otherwise.
func lookupEnv(key string) (string, bool) {
	value, set := os.LookupEnv(key)
	if !set || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}
