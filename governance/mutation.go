// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import "sync"

// MutationEngine adapts the trust, suppression, and drift thresholds based
// on a rolling window of per-cycle success rates. It keeps its own
// in-memory mirror of that window — the same "mirror the store, then apply
// deltas in memory" discipline the teacher's AuditLogger uses for its
// lastHash/counter state — rather than re-querying the store on every
// cycle.
type MutationEngine struct {
	mu sync.Mutex

	window    int
	windowMin int
	rate      float64
	target    float64
	bandLow   float64
	bandHigh  float64

	rates []float64
}

// NewMutationEngine constructs a MutationEngine per the given configuration.
func NewMutationEngine(cfg Config) *MutationEngine {
	return &MutationEngine{
		window:    cfg.MutationWindow,
		windowMin: cfg.MutationWindowMin,
		rate:      cfg.MutationRate,
		target:    cfg.TargetSuccessRate,
		bandLow:   cfg.BandLow,
		bandHigh:  cfg.BandHigh,
	}
}

// Seed primes the rolling window from persisted history (oldest first),
// truncated to the trailing `window` entries.
func (m *MutationEngine) Seed(rates []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(rates) > m.window {
		rates = rates[len(rates)-m.window:]
	}
	m.rates = append([]float64(nil), rates...)
}

// Observe records this cycle's success rate and then evaluates whether the
// thresholds should move. It always returns a Mutation, even when the
// direction is HOLD. current holds the thresholds in effect at the start of
// the cycle; the returned Mutation's NewThresholds is what the Loop must
// adopt going forward.
func (m *MutationEngine) Observe(cycleID int64, cycleSuccessRate float64, current Thresholds) Mutation {
	m.mu.Lock()
	m.rates = append(m.rates, cycleSuccessRate)
	if len(m.rates) > m.window {
		m.rates = m.rates[len(m.rates)-m.window:]
	}
	rates := append([]float64(nil), m.rates...)
	m.mu.Unlock()

	mutation := Mutation{
		CycleID:       cycleID,
		OldThresholds: current,
		NewThresholds: current,
		Direction:     DirectionHold,
	}

	if len(rates) < m.windowMin {
		return mutation
	}

	avg := mean(rates)
	mutation.ObservedSuccessRate = avg

	switch {
	case avg < m.target-m.bandLow:
		mutation.Direction = DirectionTighten
		mutation.NewThresholds = m.step(current, m.rate)
	case avg > m.target+m.bandHigh:
		mutation.Direction = DirectionLoosen
		mutation.NewThresholds = m.step(current, -m.rate)
	}
	return mutation
}

// step applies delta (positive to tighten, negative to loosen) to the three
// thresholds at their documented ratios, clamps each to its safety band,
// and — if the clamp would leave suppression_threshold >= trust_threshold —
// shrinks the step proportionally to the largest value that preserves the
// strict ordering.
func (m *MutationEngine) step(t Thresholds, delta float64) Thresholds {
	apply := func(scale float64) Thresholds {
		return Thresholds{
			TrustThreshold:       clampBand(t.TrustThreshold+delta*scale, trustThresholdBand),
			SuppressionThreshold: clampBand(t.SuppressionThreshold+delta*scale/2, suppressionThresholdBand),
			DriftDelta:           maxFloat(0, t.DriftDelta+delta*scale/4),
		}
	}

	next := apply(1.0)
	if next.SuppressionThreshold < next.TrustThreshold {
		return next
	}

	// Binary-search the largest scale in [0,1] that preserves strict
	// ordering; few iterations suffice given the tiny step sizes involved.
	lo, hi := 0.0, 1.0
	for i := 0; i < 20; i++ {
		mid := (lo + hi) / 2
		candidate := apply(mid)
		if candidate.SuppressionThreshold < candidate.TrustThreshold {
			lo = mid
		} else {
			hi = mid
		}
	}
	return apply(lo)
}

func clampBand(v float64, band [2]float64) float64 {
	if v < band[0] {
		return band[0]
	}
	if v > band[1] {
		return band[1]
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
