// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"sort"
	"sync"
)

// TrustEngine selects an agent for each task, evaluates suppression and
// redemption transitions at the end of a cycle, and maintains the rolling
// per-agent trust window used for drift detection.
//
// A TrustEngine is owned by exactly one Loop and is safe for concurrent use
// only insofar as the Loop serializes cycles against it (see the
// package-level concurrency notes).
type TrustEngine struct {
	mu sync.Mutex

	driftWindow int
	samples     map[string][]float64
	flagged     map[string]bool
}

// NewTrustEngine constructs a TrustEngine that keeps up to driftWindow
// trailing trust samples per agent.
func NewTrustEngine(driftWindow int) *TrustEngine {
	return &TrustEngine{
		driftWindow: driftWindow,
		samples:     make(map[string][]float64),
		flagged:     make(map[string]bool),
	}
}

// SeedDrift primes the rolling window for agentID from persisted history, so
// drift detection survives a process restart. samples must be oldest-first
// and is truncated to the trailing driftWindow entries.
func (e *TrustEngine) SeedDrift(agentID string, samples []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(samples) > e.driftWindow {
		samples = samples[len(samples)-e.driftWindow:]
	}
	buf := make([]float64, len(samples))
	copy(buf, samples)
	e.samples[agentID] = buf
}

// Assign selects the agent for task out of snapshot, per the assignment
// rule: among ACTIVE agents meeting trust_threshold and the capability
// filter, the highest-trust agent wins (ties broken by lexicographically
// smallest agent_id). If no ACTIVE agent qualifies, a PROBATION agent not
// yet used this cycle may be assigned as a last-resort redemption trial,
// regardless of trust. A drift-flagged agent is only considered when it is
// the sole eligible agent for the task.
//
// probationUsed tracks, for the duration of one cycle, which PROBATION
// agents have already received their single redemption trial; Assign does
// not mutate it — the caller (Loop) must record a successful PROBATION
// assignment back into the map.
func (e *TrustEngine) Assign(snapshot map[string]Agent, task Task, thresholds Thresholds, probationUsed map[string]bool) (string, bool) {
	requiredCap := task.RequiredCapability()

	var eligible []Agent
	for _, a := range snapshot {
		if a.Status != StatusActive && a.Status != StatusProbation {
			continue
		}
		if !a.HasCapability(requiredCap) {
			continue
		}
		eligible = append(eligible, a)
	}
	if len(eligible) == 0 {
		return "", false
	}

	e.mu.Lock()
	flagged := make(map[string]bool, len(e.flagged))
	for k, v := range e.flagged {
		flagged[k] = v
	}
	e.mu.Unlock()

	usable := func(candidates []Agent) []Agent {
		if len(candidates) <= 1 {
			return candidates
		}
		var clean []Agent
		for _, a := range candidates {
			if !flagged[a.AgentID] {
				clean = append(clean, a)
			}
		}
		if len(clean) == 0 {
			// Every eligible candidate is drift-flagged; flagging only
			// restricts consideration when a non-flagged alternative exists.
			return candidates
		}
		return clean
	}

	var active []Agent
	for _, a := range eligible {
		if a.Status == StatusActive && a.Trust >= thresholds.TrustThreshold {
			active = append(active, a)
		}
	}
	if active = usable(active); len(active) > 0 {
		return pickHighestTrust(active), true
	}

	var probation []Agent
	for _, a := range eligible {
		if a.Status == StatusProbation && !probationUsed[a.AgentID] {
			probation = append(probation, a)
		}
	}
	if probation = usable(probation); len(probation) > 0 {
		return pickHighestTrust(probation), true
	}

	return "", false
}

// pickHighestTrust returns the agent_id of the highest-trust agent in
// candidates, breaking ties by lexicographically smallest agent_id.
func pickHighestTrust(candidates []Agent) string {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Trust != candidates[j].Trust {
			return candidates[i].Trust > candidates[j].Trust
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})
	return candidates[0].AgentID
}

// TransitionSuppression evaluates the suppression/redemption transition for
// agent given its post-learning trust value, per the rule in the governance
// loop's §4.4 design. probationSucceeded is only consulted when agent is
// currently on PROBATION and was this cycle's redemption trial (nil
// otherwise, meaning the agent was not assigned this cycle while on
// probation — it remains on PROBATION untouched).
//
// Returns the updated agent and a non-nil StatusChange when the status
// actually changed.
func (e *TrustEngine) TransitionSuppression(agent Agent, cycleID int64, thresholds Thresholds, maxRedemptionCycles int, probationSucceeded *bool) (Agent, *StatusChange) {
	old := agent.Status

	switch agent.Status {
	case StatusActive:
		if agent.Trust < thresholds.SuppressionThreshold {
			agent.Status = StatusSuppressed
			agent.RedemptionCyclesUsed = 0
			agent.SuppressionEnteredAtCycle = cycleID
		}

	case StatusSuppressed:
		if agent.RedemptionCyclesUsed < maxRedemptionCycles {
			agent.Status = StatusProbation
		} else {
			agent.Status = StatusExcluded
		}

	case StatusProbation:
		if probationSucceeded == nil {
			break
		}
		agent.LastProbationOutcome = probationSucceeded
		if *probationSucceeded && agent.Trust >= thresholds.TrustThreshold {
			agent.Status = StatusActive
			agent.RedemptionCyclesUsed = 0
		} else {
			agent.Status = StatusSuppressed
			agent.RedemptionCyclesUsed++
		}

	case StatusExcluded:
		// terminal: never transitions.
	}

	if agent.Status == old {
		return agent, nil
	}
	return agent, &StatusChange{
		AgentID: agent.AgentID,
		CycleID: cycleID,
		Old:     old,
		New:     agent.Status,
		Reason:  suppressionReason(old, agent.Status),
	}
}

func suppressionReason(old, new AgentStatus) string {
	switch {
	case old == StatusActive && new == StatusSuppressed:
		return "trust fell below suppression_threshold"
	case old == StatusSuppressed && new == StatusProbation:
		return "redemption attempts remain; promoted to probation"
	case old == StatusSuppressed && new == StatusExcluded:
		return "max_redemption_cycles exhausted"
	case old == StatusProbation && new == StatusActive:
		return "probation trial succeeded and trust recovered"
	case old == StatusProbation && new == StatusSuppressed:
		return "probation trial failed or trust still below trust_threshold"
	default:
		return ""
	}
}

// RecordTrustSample pushes trust into agent's rolling drift window and
// reports a DriftEvent when the mean of the most recent half of the window
// is at least driftDelta below the mean of the preceding half. The window
// must be completely full (driftWindow samples) before a comparison is
// made; an even driftWindow is assumed (the configured default is 10).
func (e *TrustEngine) RecordTrustSample(agentID string, cycleID int64, trust, driftDelta float64) *DriftEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := append(e.samples[agentID], trust)
	if len(buf) > e.driftWindow {
		buf = buf[len(buf)-e.driftWindow:]
	}
	e.samples[agentID] = buf

	if len(buf) < e.driftWindow {
		e.flagged[agentID] = false
		return nil
	}

	half := e.driftWindow / 2
	older := mean(buf[:half])
	newer := mean(buf[half:])
	delta := older - newer

	if delta >= driftDelta {
		e.flagged[agentID] = true
		return &DriftEvent{
			AgentID:          agentID,
			CycleID:          cycleID,
			Delta:            delta,
			WindowMeanBefore: older,
			WindowMeanAfter:  newer,
		}
	}
	e.flagged[agentID] = false
	return nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
