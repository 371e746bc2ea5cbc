// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"context"
	"testing"

	"github.com/muvera-ai/governance-plane/eventbus"
	"github.com/muvera-ai/governance-plane/storage"
)

// scriptedExecutor reports outcomes keyed by task ID. Tasks with no entry in
// outcomes default to success, letting tests omit boilerplate for the
// "everything succeeds" common case.
type scriptedExecutor struct {
	outcomes map[string]bool
}

func (e *scriptedExecutor) Execute(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error) {
	success, ok := e.outcomes[task.TaskID]
	if !ok {
		success = true
	}
	return ExecutionOutcome{Success: success}, nil
}

func TestLoop_RunCycle_AppliesAsymmetricLearning(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loop, err := NewLoop(Config{}, store)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.RegisterAgent(ctx, "a1", nil, 0.70); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	exec := &scriptedExecutor{outcomes: map[string]bool{"t1": true}}
	result, err := loop.RunCycle(ctx, []Task{{TaskID: "t1"}}, exec)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Status != CycleOK {
		t.Fatalf("status = %v, want OK", result.Status)
	}
	if len(result.TrustUpdates) != 1 {
		t.Fatalf("expected 1 trust update, got %d", len(result.TrustUpdates))
	}
	want := 0.70 + 0.02*(1-0.70)
	if !almostEqual(result.TrustUpdates[0].NewScore, want) {
		t.Fatalf("new trust = %v, want %v", result.TrustUpdates[0].NewScore, want)
	}

	history, err := store.TrustHistory("a1", 1)
	if err != nil || len(history) != 1 {
		t.Fatalf("TrustHistory: %v, %+v", err, history)
	}
	if !almostEqual(history[0].NewScore, want) {
		t.Fatalf("persisted trust = %v, want %v", history[0].NewScore, want)
	}
}

func TestLoop_RunCycle_SuppressionTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cfg := Config{Thresholds: Thresholds{TrustThreshold: 0.75, SuppressionThreshold: 0.73}}
	loop, err := NewLoop(cfg, store)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.RegisterAgent(ctx, "a1", nil, 0.76); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	exec := &scriptedExecutor{outcomes: map[string]bool{"t1": false}}
	result, err := loop.RunCycle(ctx, []Task{{TaskID: "t1"}}, exec)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(result.StatusChanges) != 1 {
		t.Fatalf("expected 1 status change, got %d: %+v", len(result.StatusChanges), result.StatusChanges)
	}
	change := result.StatusChanges[0]
	if change.Old != StatusActive || change.New != StatusSuppressed {
		t.Fatalf("transition = %v -> %v, want ACTIVE -> SUPPRESSED", change.Old, change.New)
	}

	wantTrust := 0.76 - 0.05*0.76
	if !almostEqual(result.TrustUpdates[0].NewScore, wantTrust) {
		t.Fatalf("new trust = %v, want %v", result.TrustUpdates[0].NewScore, wantTrust)
	}

	agent, ok := loop.Registry.Get("a1")
	if !ok || agent.Status != StatusSuppressed {
		t.Fatalf("registry status = %+v, want SUPPRESSED", agent)
	}
}

func TestLoop_RunCycle_CircuitBreakerWhenNoAgentEligible(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loop, err := NewLoop(Config{}, store)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	exec := &scriptedExecutor{}
	result, err := loop.RunCycle(ctx, []Task{{TaskID: "t1"}, {TaskID: "t2"}}, exec)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Status != CycleCircuitBreaker {
		t.Fatalf("status = %v, want CIRCUIT_BREAKER", result.Status)
	}
	if len(result.Executions) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(result.Executions))
	}
	for _, e := range result.Executions {
		if e.Success != nil || e.AgentID != "" {
			t.Fatalf("unassigned execution should have agent=⊥, success=nil, got %+v", e)
		}
	}
	if len(result.TrustUpdates) != 0 || result.Mutation != nil {
		t.Fatalf("circuit breaker must not learn or mutate: %+v", result)
	}

	mutations, err := store.Mutations(0)
	if err != nil || len(mutations) != 0 {
		t.Fatalf("expected no persisted mutations, got %v %+v", err, mutations)
	}
}

func TestLoop_RunCycle_MutationTightensAfterSustainedUnderperformance(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loop, err := NewLoop(Config{}, store)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	const agentCount = 5
	tasks := make([]Task, agentCount)
	outcomes := map[string]bool{}
	for i := 0; i < agentCount; i++ {
		capability := capLabel(i)
		agentID := "agent-" + capability
		if _, err := loop.RegisterAgent(ctx, agentID, []string{capability}, 0.90); err != nil {
			t.Fatalf("RegisterAgent: %v", err)
		}
		taskID := "task-" + capability
		tasks[i] = Task{TaskID: taskID, Metadata: map[string]string{"required_capability": capability}}
		// 3 of 5 tasks succeed every cycle: a steady 0.60 success rate.
		outcomes[taskID] = i < 3
	}
	exec := &scriptedExecutor{outcomes: outcomes}

	var result CycleResult
	for cycle := 0; cycle < 5; cycle++ {
		result, err = loop.RunCycle(ctx, tasks, exec)
		if err != nil {
			t.Fatalf("RunCycle cycle %d: %v", cycle, err)
		}
	}

	if result.Mutation == nil || result.Mutation.Direction != DirectionTighten {
		t.Fatalf("expected TIGHTEN on the 5th cycle, got %+v", result.Mutation)
	}
	wantTrust := 0.70 + 0.02
	if !almostEqual(result.Mutation.NewThresholds.TrustThreshold, wantTrust) {
		t.Fatalf("new trust_threshold = %v, want %v", result.Mutation.NewThresholds.TrustThreshold, wantTrust)
	}
}

func TestLoop_RunCycle_DriftEventFiresWhenWindowFills(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loop, err := NewLoop(Config{}, store)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.RegisterAgent(ctx, "a1", nil, 0.90); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	success := &scriptedExecutor{outcomes: map[string]bool{"t": true}}
	failure := &scriptedExecutor{outcomes: map[string]bool{"t": false}}

	var last CycleResult
	for cycle := 0; cycle < 10; cycle++ {
		exec := success
		if cycle >= 5 {
			exec = failure
		}
		last, err = loop.RunCycle(ctx, []Task{{TaskID: "t"}}, exec)
		if err != nil {
			t.Fatalf("RunCycle cycle %d: %v", cycle, err)
		}
		if cycle < 9 && len(last.DriftEvents) != 0 {
			t.Fatalf("drift fired early at cycle %d: %+v", cycle, last.DriftEvents)
		}
	}
	if len(last.DriftEvents) != 1 {
		t.Fatalf("expected exactly 1 drift event on window fill, got %d", len(last.DriftEvents))
	}
	if last.DriftEvents[0].Delta < 0.10 {
		t.Fatalf("Delta = %v, want >= 0.10", last.DriftEvents[0].Delta)
	}
}

func TestLoop_RunCycle_RecordsAuditTrail(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loop, err := NewLoop(Config{}, store)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.RegisterAgent(ctx, "a1", []string{"email"}, 0.90); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	tasks := []Task{
		{TaskID: "allowed", Metadata: map[string]string{"required_capability": "email"}},
		{TaskID: "denied", Metadata: map[string]string{"required_capability": "billing"}},
	}
	exec := &scriptedExecutor{}
	if _, err := loop.RunCycle(ctx, tasks, exec); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	records, err := store.QueryAudit(storage.AuditFilter{})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(records))
	}

	byAction := make(map[string]storage.AuditRecord, len(records))
	for _, r := range records {
		byAction[r.Decision.Action] = r
		if r.Hash == "" {
			t.Fatalf("audit record %+v has empty hash", r)
		}
	}
	if !byAction["allowed"].Decision.Permitted || byAction["allowed"].Decision.AgentID != "a1" {
		t.Fatalf("allowed decision = %+v, want permitted by a1", byAction["allowed"].Decision)
	}
	if byAction["denied"].Decision.Permitted {
		t.Fatalf("denied decision = %+v, want not permitted", byAction["denied"].Decision)
	}
	if records[1].PrevHash != records[0].Hash {
		t.Fatalf("hash chain broken: records[1].PrevHash = %q, want %q", records[1].PrevHash, records[0].Hash)
	}
}

func capLabel(i int) string {
	return string(rune('a' + i))
}

// TestLoop_RunCycle_ComposesLearningAcrossMultipleTasksPerAgent covers the
// case TrustEngine.Assign creates whenever tasks carry no required_capability:
// the single highest-trust agent is assigned every task in the cycle, so its
// trust must move once per task, folded left-to-right in priority order —
// not once for the whole cycle using only the last task's outcome.
func TestLoop_RunCycle_ComposesLearningAcrossMultipleTasksPerAgent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	loop, err := NewLoop(Config{}, store)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.RegisterAgent(ctx, "a1", nil, 0.70); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	// Priority order ties on score and breaks on ascending task_id, so "t1"
	// is folded before "t2".
	exec := &scriptedExecutor{outcomes: map[string]bool{"t1": true, "t2": false}}
	result, err := loop.RunCycle(ctx, []Task{{TaskID: "t1"}, {TaskID: "t2"}}, exec)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(result.TrustUpdates) != 1 {
		t.Fatalf("expected 1 trust history entry for the single agent, got %d", len(result.TrustUpdates))
	}

	afterSuccess := 0.70 + 0.02*(1-0.70)
	want := afterSuccess - 0.05*afterSuccess
	got := result.TrustUpdates[0].NewScore
	if !almostEqual(got, want) {
		t.Fatalf("composed trust = %v, want %v (single-task trust would be %v)", got, want, 0.70-0.05*0.70)
	}
	if result.TrustUpdates[0].Outcome != OutcomeFailure {
		t.Fatalf("recorded outcome = %v, want OutcomeFailure (the last task folded)", result.TrustUpdates[0].Outcome)
	}
}

// TestLoop_RunCycle_EmitsTaskScopedCircuitBreaker covers a cycle where some
// tasks find an eligible agent and others don't: the unassigned tasks must
// each trip a TASK-scoped circuit breaker, distinct from the CYCLE-scoped
// breaker that fires only when every task in the cycle goes unassigned.
func TestLoop_RunCycle_EmitsTaskScopedCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	bus := eventbus.NewLocalBus()
	var trips []eventbus.CircuitBreakerTripped
	bus.Subscribe(func(e eventbus.Event) {
		if e.Kind == eventbus.KindCircuitBreakerTrip {
			trips = append(trips, e.Payload.(eventbus.CircuitBreakerTripped))
		}
	})
	loop, err := NewLoop(Config{}, store, WithPublisher(bus))
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.RegisterAgent(ctx, "a1", []string{"email"}, 0.90); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	tasks := []Task{
		{TaskID: "allowed", Metadata: map[string]string{"required_capability": "email"}},
		{TaskID: "denied", Metadata: map[string]string{"required_capability": "billing"}},
	}
	exec := &scriptedExecutor{}
	result, err := loop.RunCycle(ctx, tasks, exec)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Status != CycleOK {
		t.Fatalf("status = %v, want OK (cycle is not fully circuit-broken)", result.Status)
	}

	if len(trips) != 1 {
		t.Fatalf("expected 1 circuit breaker trip, got %d: %+v", len(trips), trips)
	}
	if trips[0].Scope != eventbus.ScopeTask || trips[0].TaskID != "denied" {
		t.Fatalf("trip = %+v, want TASK-scoped trip for %q", trips[0], "denied")
	}
}
