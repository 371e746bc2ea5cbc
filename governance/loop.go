// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/muvera-ai/governance-plane/eventbus"
	"github.com/muvera-ai/governance-plane/storage"
	"github.com/rs/zerolog"
)

// LoopOption is a functional option for NewLoop.
type LoopOption func(*Loop)

// WithPublisher sets the event boundary the Loop publishes to after every
// successful cycle commit. Defaults to an eventbus.LocalBus with no
// subscribers.
func WithPublisher(p eventbus.Publisher) LoopOption {
	return func(l *Loop) { l.publisher = p }
}

// WithLogger sets the structured logger used for best-effort diagnostics
// (e.g. publish failures). Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) LoopOption {
	return func(l *Loop) { l.log = log }
}

// Loop drives one governance cycle per RunCycle invocation: prioritize,
// assign, execute, learn, mutate, reflect, persist, emit events.
//
// A single Loop instance processes cycles sequentially: RunCycle holds the
// Loop's mutex for the whole cycle, so concurrent RunCycle calls against the
// same Loop wait for one another rather than interleave.
type Loop struct {
	mu sync.Mutex

	cfg          Config
	store        storage.Store
	Registry     *Registry
	Capabilities *CapabilityGrantManager

	prioritizer *Prioritizer
	trust       *TrustEngine
	learning    *LearningEngine
	mutation    *MutationEngine
	reflection  *ReflectionEngine
	audit       *AuditLogger

	publisher eventbus.Publisher
	log       zerolog.Logger

	thresholds   Thresholds
	cycleCounter int64
}

// NewLoop constructs a Loop backed by store, validating cfg and mirroring
// the store's current agent and history state.
func NewLoop(cfg Config, store storage.Store, opts ...LoopOption) (*Loop, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	registry, err := NewRegistry(store)
	if err != nil {
		return nil, err
	}

	trustEngine := NewTrustEngine(cfg.DriftWindow)
	for agentID := range registry.Snapshot() {
		samples, err := store.RecentTrustSamples(agentID, cfg.DriftWindow)
		if err != nil {
			return nil, &StorageFault{Op: "RecentTrustSamples", Err: err}
		}
		trustEngine.SeedDrift(agentID, samples)
	}

	mutationEngine := NewMutationEngine(cfg)
	rates, err := store.RecentSuccessRates(cfg.MutationWindow)
	if err != nil {
		return nil, &StorageFault{Op: "RecentSuccessRates", Err: err}
	}
	mutationEngine.Seed(rates)

	l := &Loop{
		cfg:          cfg,
		store:        store,
		Registry:     registry,
		Capabilities: NewCapabilityGrantManager(store),
		prioritizer:  NewPrioritizer(cfg.PrioritizerWeights),
		trust:        trustEngine,
		learning:     NewLearningEngine(cfg.RewardRate, cfg.PenaltyRate),
		mutation:     mutationEngine,
		reflection:   NewReflectionEngine(cfg.TargetSuccessRate),
		audit:        NewAuditLogger(store, AuditConfig{}),
		publisher:    eventbus.NewLocalBus(),
		log:          zerolog.Nop(),
		thresholds:   cfg.Thresholds,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// RegisterAgent registers a new agent and publishes an AgentRegistered
// event.
func (l *Loop) RegisterAgent(ctx context.Context, agentID string, capabilities []string, initialTrust float64) (Agent, error) {
	agent, err := l.Registry.Register(ctx, agentID, capabilities, initialTrust)
	if err != nil {
		return Agent{}, err
	}
	l.publish(eventbus.Event{
		Kind: eventbus.KindAgentRegistered,
		Payload: eventbus.AgentRegistered{
			AgentID:      agent.AgentID,
			Capabilities: capabilitySlice(agent.Capabilities),
			InitialTrust: agent.Trust,
		},
	})
	return agent, nil
}

// RunCycle drives exactly one governance cycle over tasks, dispatching
// assigned work to executor.
func (l *Loop) RunCycle(ctx context.Context, tasks []Task, executor Executor) (CycleResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cycleCounter++
	cycleID := l.cycleCounter

	ordered := l.prioritizer.Order(tasks)

	snapshot := l.Registry.Snapshot()
	snapshot, err := l.Capabilities.ApplyRevocations(ctx, snapshot)
	if err != nil {
		return CycleResult{}, fmt.Errorf("governance: apply capability revocations: %w", err)
	}

	probationUsed := make(map[string]bool)
	assignments := make([]assignment, len(ordered))
	anyAssigned := false
	for i, task := range ordered {
		agentID, ok := l.trust.Assign(snapshot, task, l.thresholds, probationUsed)
		if !ok {
			assignments[i] = assignment{task: task}
			continue
		}
		agent := snapshot[agentID]
		if agent.Status == StatusProbation {
			probationUsed[agentID] = true
		}
		assignments[i] = assignment{task: task, agentID: agentID, agent: agent, ok: true}
		anyAssigned = true
	}

	if !anyAssigned && len(ordered) > 0 {
		return l.commitCircuitBreaker(ctx, cycleID, assignments)
	}

	results := runBatch(ctx, executor, assignments, cycleID, l.cfg.TaskTimeout, l.cfg.MaxParallelExecutions)
	if err := ctx.Err(); err != nil {
		return CycleResult{}, fmt.Errorf("governance: cycle %d cancelled before commit: %w", cycleID, err)
	}

	return l.commitCycle(ctx, cycleID, snapshot, assignments, results)
}

// commitCircuitBreaker records a whole-cycle circuit breaker: every task
// lacked an eligible agent. No learning, mutation, or reflection occurs.
func (l *Loop) commitCircuitBreaker(ctx context.Context, cycleID int64, assignments []assignment) (CycleResult, error) {
	executions := make([]ExecutionResult, len(assignments))
	for i, a := range assignments {
		executions[i] = ExecutionResult{TaskID: a.task.TaskID, CycleID: cycleID}
	}

	commit := storage.CycleCommit{CycleID: cycleID, Executions: toStorageExecutions(executions)}
	if err := l.store.RecordCycle(commit); err != nil {
		return CycleResult{}, &StorageFault{Op: "RecordCycle", Err: err}
	}

	for _, a := range assignments {
		l.logDecision(ctx, &Decision{Action: a.task.TaskID, CycleID: cycleID, Reason: "cycle circuit breaker: no eligible agent"})
	}

	l.publish(eventbus.Event{Kind: eventbus.KindCircuitBreakerTrip, CycleID: cycleID, Payload: eventbus.CircuitBreakerTripped{Scope: eventbus.ScopeCycle}})

	return CycleResult{CycleID: cycleID, Status: CycleCircuitBreaker, Executions: executions}, nil
}

// commitCycle runs the learn/mutate/reflect/persist/emit tail of one cycle
// against a shadow copy of agent state, committing atomically.
func (l *Loop) commitCycle(ctx context.Context, cycleID int64, snapshot map[string]Agent, assignments []assignment, results []ExecutionResult) (CycleResult, error) {
	shadow := make(map[string]Agent, len(snapshot))
	// ids fixes the order in which agents are visited below, so updates,
	// changes and events come out in the same order on every run.
	ids := make([]string, 0, len(snapshot))
	for id, a := range snapshot {
		shadow[id] = a
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var trustUpdates []TrustHistoryEntry
	// outcomesByAgent accumulates each agent's per-task outcomes in priority
	// order (assignments is already ordered by the prioritizer), so an agent
	// assigned several tasks in one cycle has its trust moved once per task
	// rather than once for the whole cycle.
	outcomesByAgent := make(map[string][]Outcome)
	probationOutcome := make(map[string]bool)

	for i, a := range assignments {
		if !a.ok {
			continue
		}
		result := results[i]
		outcome := outcomeFor(result.Success)
		if outcome == OutcomeNone {
			continue
		}
		outcomesByAgent[a.agentID] = append(outcomesByAgent[a.agentID], outcome)
		if shadow[a.agentID].Status == StatusProbation {
			probationOutcome[a.agentID] = outcome == OutcomeSuccess
		}
	}

	for _, agentID := range ids {
		outcomes, ok := outcomesByAgent[agentID]
		if !ok {
			continue
		}
		agent := shadow[agentID]
		oldScore := agent.Trust
		newScore := oldScore
		var lastOutcome Outcome
		for _, outcome := range outcomes {
			newScore = l.learning.Update(newScore, outcome)
			lastOutcome = outcome
		}
		agent.Trust = newScore
		shadow[agentID] = agent
		trustUpdates = append(trustUpdates, TrustHistoryEntry{
			AgentID:  agentID,
			CycleID:  cycleID,
			OldScore: oldScore,
			NewScore: newScore,
			Outcome:  lastOutcome,
		})
	}

	var statusChanges []StatusChange
	anyExcluded := false
	for _, id := range ids {
		agent := shadow[id]
		var probSucceeded *bool
		if v, ok := probationOutcome[id]; ok {
			probSucceeded = &v
		}
		updated, change := l.trust.TransitionSuppression(agent, cycleID, l.thresholds, l.cfg.MaxRedemptionCycles, probSucceeded)
		shadow[id] = updated
		if change != nil {
			statusChanges = append(statusChanges, *change)
			if change.New == StatusExcluded {
				anyExcluded = true
			}
		}
	}

	var driftEvents []DriftEvent
	for _, id := range ids {
		agent := shadow[id]
		if ev := l.trust.RecordTrustSample(id, cycleID, agent.Trust, l.thresholds.DriftDelta); ev != nil {
			driftEvents = append(driftEvents, *ev)
		}
	}

	successes, assigned := 0, 0
	for _, r := range results {
		if r.Success == nil {
			continue
		}
		assigned++
		if *r.Success {
			successes++
		}
	}
	var cycleSuccessRate float64
	if assigned > 0 {
		cycleSuccessRate = float64(successes) / float64(assigned)
	}
	mutation := l.mutation.Observe(cycleID, cycleSuccessRate, l.thresholds)

	reflection := l.reflection.Score(cycleID, reflectionInput{
		anyAssigned:      assigned > 0,
		hasAssignments:   assigned > 0,
		cycleSuccessRate: cycleSuccessRate,
		anyExcluded:      anyExcluded,
	})

	agentSnapshots := make([]Agent, 0, len(shadow))
	for _, id := range ids {
		agentSnapshots = append(agentSnapshots, shadow[id])
	}

	commit := storage.CycleCommit{
		CycleID:           cycleID,
		Executions:        toStorageExecutions(results),
		TrustUpdates:      toStorageTrustUpdates(trustUpdates),
		SuppressionStates: toStorageSuppressionStates(cycleID, shadow),
		StatusChanges:     toStorageStatusChanges(statusChanges),
		DriftEvents:       toStorageDriftEvents(driftEvents),
		Mutation:          storagePtr(toStorageMutation(mutation)),
		Reflection:        storageReflectionPtr(toStorageReflection(reflection)),
		AgentSnapshots:    toStorageAgents(agentSnapshots),
	}

	if err := l.store.RecordCycle(commit); err != nil {
		return CycleResult{}, &StorageFault{Op: "RecordCycle", Err: err}
	}

	l.Registry.Apply(agentSnapshots)
	l.thresholds = mutation.NewThresholds

	var unassignedTasks []string
	for i, a := range assignments {
		if a.ok {
			l.logDecision(ctx, &Decision{
				Permitted: true,
				AgentID:   a.agentID,
				Action:    a.task.TaskID,
				CycleID:   cycleID,
				Outcome:   outcomeFor(results[i].Success),
				Reason:    "assigned",
			})
		} else {
			l.logDecision(ctx, &Decision{Action: a.task.TaskID, CycleID: cycleID, Reason: "no eligible agent"})
			unassignedTasks = append(unassignedTasks, a.task.TaskID)
		}
	}

	l.publishCycleEvents(cycleID, unassignedTasks, trustUpdates, statusChanges, driftEvents, mutation, reflection)

	return CycleResult{
		CycleID:       cycleID,
		Status:        CycleOK,
		Executions:    results,
		TrustUpdates:  trustUpdates,
		StatusChanges: statusChanges,
		DriftEvents:   driftEvents,
		Mutation:      &mutation,
		Reflection:    &reflection,
	}, nil
}

func (l *Loop) publishCycleEvents(cycleID int64, unassignedTasks []string, trustUpdates []TrustHistoryEntry, statusChanges []StatusChange, driftEvents []DriftEvent, mutation Mutation, reflection Reflection) {
	seq := 0
	next := func() int { seq++; return seq - 1 }

	// A task that finds no eligible agent within an otherwise-normal cycle
	// trips a TASK-scoped circuit breaker, distinct from the CYCLE-scoped
	// one commitCircuitBreaker emits when every task in the cycle fails to
	// find an agent.
	for _, taskID := range unassignedTasks {
		l.publish(eventbus.Event{Kind: eventbus.KindCircuitBreakerTrip, CycleID: cycleID, Sequence: next(), Payload: eventbus.CircuitBreakerTripped{
			TaskID: taskID, Scope: eventbus.ScopeTask,
		}})
	}
	for _, t := range trustUpdates {
		l.publish(eventbus.Event{Kind: eventbus.KindTrustUpdated, CycleID: cycleID, Sequence: next(), Payload: eventbus.TrustUpdated{
			AgentID: t.AgentID, Old: t.OldScore, New: t.NewScore, Outcome: t.Outcome.String(),
		}})
	}
	for _, s := range statusChanges {
		l.publish(eventbus.Event{Kind: eventbus.KindStatusChanged, CycleID: cycleID, Sequence: next(), Payload: eventbus.StatusChanged{
			AgentID: s.AgentID, Old: s.Old.String(), New: s.New.String(), Reason: s.Reason,
		}})
	}
	for _, d := range driftEvents {
		l.publish(eventbus.Event{Kind: eventbus.KindDriftDetected, CycleID: cycleID, Sequence: next(), Payload: eventbus.DriftDetected{
			AgentID: d.AgentID, Delta: d.Delta,
		}})
	}
	l.publish(eventbus.Event{Kind: eventbus.KindThresholdMutated, CycleID: cycleID, Sequence: next(), Payload: eventbus.ThresholdMutated{
		OldTrustThreshold: mutation.OldThresholds.TrustThreshold, NewTrustThreshold: mutation.NewThresholds.TrustThreshold,
		OldSuppressionThreshold: mutation.OldThresholds.SuppressionThreshold, NewSuppressionThreshold: mutation.NewThresholds.SuppressionThreshold,
		Direction: mutation.Direction.String(),
	}})
	l.publish(eventbus.Event{Kind: eventbus.KindReflectionRecorded, CycleID: cycleID, Sequence: next(), Payload: eventbus.ReflectionRecorded{
		ConstraintScore: reflection.ConstraintScore, Notes: reflection.Notes,
	}})
}

// logDecision appends decision to the tamper-evident audit trail. Like
// publish, this is best-effort: an audit storage failure is logged but never
// fails the cycle that produced it.
func (l *Loop) logDecision(ctx context.Context, decision *Decision) {
	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now().UTC()
	}
	if err := l.audit.Log(ctx, decision); err != nil {
		l.log.Error().Err(err).Str("action", decision.Action).Msg("governance: audit log failed")
	}
}

func (l *Loop) publish(e eventbus.Event) {
	if l.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("recovered", r).Msg("governance: publisher panicked")
		}
	}()
	l.publisher.Publish([]eventbus.Event{e})
}

func outcomeFor(success *bool) Outcome {
	if success == nil {
		return OutcomeNone
	}
	if *success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

func capabilitySlice(caps map[string]struct{}) []string {
	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	return out
}
