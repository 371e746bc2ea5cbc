// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package config

import "github.com/muvera-ai/governance-plane/governance"

// ToGovernanceConfig converts the serialisation-friendly GovernanceConfig
// into a governance.Config suitable for governance.NewLoop. Zero-valued
// fields are copied through as zero, so an omitted field in a loaded
// config file still gets governance.Config's own default once NewLoop
// calls applyDefaults.
func (c *GovernanceConfig) ToGovernanceConfig() governance.Config {
	return governance.Config{
		Thresholds: governance.Thresholds{
			TrustThreshold:       c.TrustThreshold,
			SuppressionThreshold: c.SuppressionThreshold,
			DriftDelta:           c.DriftDelta,
		},
		MaxRedemptionCycles:   c.MaxRedemptionCycles,
		DriftWindow:           c.DriftWindow,
		RewardRate:            c.RewardRate,
		PenaltyRate:           c.PenaltyRate,
		MutationRate:          c.MutationRate,
		MutationWindow:        c.MutationWindow,
		MutationWindowMin:     c.MutationWindowMin,
		TargetSuccessRate:     c.TargetSuccessRate,
		BandLow:               c.BandLow,
		BandHigh:              c.BandHigh,
		MaxParallelExecutions: c.MaxParallelExecutions,
		TaskTimeout:           c.TaskTimeout(),
		PrioritizerWeights: governance.PrioritizerWeights{
			Impact:  c.PrioritizerWeights.Impact,
			Urgency: c.PrioritizerWeights.Urgency,
			Risk:    c.PrioritizerWeights.Risk,
		},
	}
}
