// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import "testing"

func defaultThresholds() Thresholds {
	return Thresholds{TrustThreshold: 0.70, SuppressionThreshold: 0.55, DriftDelta: 0.10}
}

func TestTrustEngine_Assign_PrefersHighestTrustActive(t *testing.T) {
	e := NewTrustEngine(10)
	snapshot := map[string]Agent{
		"a": {AgentID: "a", Status: StatusActive, Trust: 0.80},
		"b": {AgentID: "b", Status: StatusActive, Trust: 0.90},
		"c": {AgentID: "c", Status: StatusActive, Trust: 0.60}, // below threshold
	}
	agentID, ok := e.Assign(snapshot, Task{TaskID: "t1"}, defaultThresholds(), map[string]bool{})
	if !ok || agentID != "b" {
		t.Fatalf("got (%q, %v), want (\"b\", true)", agentID, ok)
	}
}

func TestTrustEngine_Assign_TiesBrokenLexicographically(t *testing.T) {
	e := NewTrustEngine(10)
	snapshot := map[string]Agent{
		"zeta":  {AgentID: "zeta", Status: StatusActive, Trust: 0.80},
		"alpha": {AgentID: "alpha", Status: StatusActive, Trust: 0.80},
	}
	agentID, ok := e.Assign(snapshot, Task{TaskID: "t1"}, defaultThresholds(), map[string]bool{})
	if !ok || agentID != "alpha" {
		t.Fatalf("got (%q, %v), want (\"alpha\", true)", agentID, ok)
	}
}

func TestTrustEngine_Assign_RequiresCapability(t *testing.T) {
	e := NewTrustEngine(10)
	snapshot := map[string]Agent{
		"a": {AgentID: "a", Status: StatusActive, Trust: 0.90, Capabilities: map[string]struct{}{"email": {}}},
		"b": {AgentID: "b", Status: StatusActive, Trust: 0.95, Capabilities: map[string]struct{}{"billing": {}}},
	}
	task := Task{TaskID: "t1", Metadata: map[string]string{"required_capability": "email"}}
	agentID, ok := e.Assign(snapshot, task, defaultThresholds(), map[string]bool{})
	if !ok || agentID != "a" {
		t.Fatalf("got (%q, %v), want (\"a\", true)", agentID, ok)
	}
}

func TestTrustEngine_Assign_NoEligibleAgent(t *testing.T) {
	e := NewTrustEngine(10)
	snapshot := map[string]Agent{
		"a": {AgentID: "a", Status: StatusActive, Trust: 0.40},
	}
	_, ok := e.Assign(snapshot, Task{TaskID: "t1"}, defaultThresholds(), map[string]bool{})
	if ok {
		t.Fatal("expected no eligible agent")
	}
}

func TestTrustEngine_Assign_ProbationAsLastResort(t *testing.T) {
	e := NewTrustEngine(10)
	snapshot := map[string]Agent{
		"p": {AgentID: "p", Status: StatusProbation, Trust: 0.30},
	}
	agentID, ok := e.Assign(snapshot, Task{TaskID: "t1"}, defaultThresholds(), map[string]bool{})
	if !ok || agentID != "p" {
		t.Fatalf("got (%q, %v), want (\"p\", true)", agentID, ok)
	}
}

func TestTrustEngine_Assign_ActivePreferredOverProbation(t *testing.T) {
	e := NewTrustEngine(10)
	snapshot := map[string]Agent{
		"active": {AgentID: "active", Status: StatusActive, Trust: 0.75},
		"p":      {AgentID: "p", Status: StatusProbation, Trust: 0.95},
	}
	agentID, ok := e.Assign(snapshot, Task{TaskID: "t1"}, defaultThresholds(), map[string]bool{})
	if !ok || agentID != "active" {
		t.Fatalf("got (%q, %v), want (\"active\", true): probation must be last resort", agentID, ok)
	}
}

func TestTrustEngine_Assign_ProbationOncePerCycle(t *testing.T) {
	e := NewTrustEngine(10)
	snapshot := map[string]Agent{
		"p": {AgentID: "p", Status: StatusProbation, Trust: 0.30},
	}
	used := map[string]bool{"p": true}
	_, ok := e.Assign(snapshot, Task{TaskID: "t1"}, defaultThresholds(), used)
	if ok {
		t.Fatal("expected probation agent already used this cycle to be ineligible")
	}
}

func TestTrustEngine_TransitionSuppression_ActiveToSuppressed(t *testing.T) {
	e := NewTrustEngine(10)
	agent := Agent{AgentID: "a", Status: StatusActive, Trust: 0.50}
	updated, change := e.TransitionSuppression(agent, 3, defaultThresholds(), 4, nil)
	if updated.Status != StatusSuppressed {
		t.Fatalf("status = %v, want SUPPRESSED", updated.Status)
	}
	if change == nil || change.Old != StatusActive || change.New != StatusSuppressed {
		t.Fatalf("unexpected change: %+v", change)
	}
	if updated.SuppressionEnteredAtCycle != 3 {
		t.Fatalf("SuppressionEnteredAtCycle = %d, want 3", updated.SuppressionEnteredAtCycle)
	}
}

func TestTrustEngine_TransitionSuppression_SuppressedToProbation(t *testing.T) {
	e := NewTrustEngine(10)
	agent := Agent{AgentID: "a", Status: StatusSuppressed, RedemptionCyclesUsed: 1}
	updated, change := e.TransitionSuppression(agent, 4, defaultThresholds(), 4, nil)
	if updated.Status != StatusProbation {
		t.Fatalf("status = %v, want PROBATION", updated.Status)
	}
	if change == nil {
		t.Fatal("expected a status change")
	}
}

func TestTrustEngine_TransitionSuppression_ExclusionAfterMaxRedemptions(t *testing.T) {
	e := NewTrustEngine(10)
	agent := Agent{AgentID: "a", Status: StatusSuppressed, RedemptionCyclesUsed: 4}
	updated, change := e.TransitionSuppression(agent, 5, defaultThresholds(), 4, nil)
	if updated.Status != StatusExcluded {
		t.Fatalf("status = %v, want EXCLUDED", updated.Status)
	}
	if change == nil || change.New != StatusExcluded {
		t.Fatalf("unexpected change: %+v", change)
	}
}

func TestTrustEngine_TransitionSuppression_ExcludedIsTerminal(t *testing.T) {
	e := NewTrustEngine(10)
	agent := Agent{AgentID: "a", Status: StatusExcluded, Trust: 0.95}
	succeeded := true
	updated, change := e.TransitionSuppression(agent, 6, defaultThresholds(), 4, &succeeded)
	if updated.Status != StatusExcluded {
		t.Fatalf("status = %v, want EXCLUDED to remain terminal", updated.Status)
	}
	if change != nil {
		t.Fatalf("expected no status change for terminal agent, got %+v", change)
	}
}

func TestTrustEngine_TransitionSuppression_ProbationSuccessReturnsActive(t *testing.T) {
	e := NewTrustEngine(10)
	agent := Agent{AgentID: "a", Status: StatusProbation, Trust: 0.72, RedemptionCyclesUsed: 2}
	succeeded := true
	updated, change := e.TransitionSuppression(agent, 7, defaultThresholds(), 4, &succeeded)
	if updated.Status != StatusActive {
		t.Fatalf("status = %v, want ACTIVE", updated.Status)
	}
	if updated.RedemptionCyclesUsed != 0 {
		t.Fatalf("RedemptionCyclesUsed = %d, want reset to 0", updated.RedemptionCyclesUsed)
	}
	if change == nil {
		t.Fatal("expected a status change")
	}
}

func TestTrustEngine_TransitionSuppression_ProbationFailureReturnsSuppressed(t *testing.T) {
	e := NewTrustEngine(10)
	agent := Agent{AgentID: "a", Status: StatusProbation, Trust: 0.30, RedemptionCyclesUsed: 2}
	failed := false
	updated, change := e.TransitionSuppression(agent, 8, defaultThresholds(), 4, &failed)
	if updated.Status != StatusSuppressed {
		t.Fatalf("status = %v, want SUPPRESSED", updated.Status)
	}
	if updated.RedemptionCyclesUsed != 3 {
		t.Fatalf("RedemptionCyclesUsed = %d, want 3", updated.RedemptionCyclesUsed)
	}
	if change == nil {
		t.Fatal("expected a status change")
	}
}

func TestTrustEngine_RecordTrustSample_DriftFlag(t *testing.T) {
	e := NewTrustEngine(10)
	samples := append(repeat(0.9, 5), repeat(0.75, 5)...)

	var last *DriftEvent
	events := 0
	for i, s := range samples {
		ev := e.RecordTrustSample("a", int64(i), s, 0.10)
		if ev != nil {
			events++
			last = ev
		}
	}
	if events != 1 {
		t.Fatalf("got %d drift events, want exactly 1", events)
	}
	if last.Delta < 0.10 {
		t.Fatalf("Delta = %f, want >= 0.10", last.Delta)
	}
}

func TestTrustEngine_RecordTrustSample_NoFlagBeforeWindowFull(t *testing.T) {
	e := NewTrustEngine(10)
	for i := 0; i < 9; i++ {
		if ev := e.RecordTrustSample("a", int64(i), 0.9, 0.10); ev != nil {
			t.Fatalf("unexpected drift event before window filled: %+v", ev)
		}
	}
}

func TestTrustEngine_SeedDrift_TruncatesToWindow(t *testing.T) {
	e := NewTrustEngine(3)
	e.SeedDrift("a", []float64{0.1, 0.2, 0.3, 0.4, 0.5})
	if got := len(e.samples["a"]); got != 3 {
		t.Fatalf("seeded window length = %d, want 3", got)
	}
	if e.samples["a"][0] != 0.3 {
		t.Fatalf("seeded window not truncated to trailing entries: %+v", e.samples["a"])
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
