// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package governance implements a pre-execution governance plane for
// autonomous agent pools. Given a batch of tasks and a registry of agents, it
// decides which agent (if any) should execute each task, learns from the
// outcome, and adapts its own decision thresholds over time. It composes
// deterministic prioritization, trust-weighted assignment, asymmetric
// learning, a suppression/redemption lifecycle, drift detection, threshold
// mutation, and per-cycle reflection into a single sequential pipeline
// ("cycle") that commits atomically to a storage.Store.
//
// The core never dispatches work itself — it hands (task, agent) pairs to an
// Executor supplied by the caller and only records the outcome.
//
// All managers are safe for concurrent use within a single running cycle;
// cycles against the same Loop run one at a time, because Loop.RunCycle
// holds the Loop's mutex for the whole cycle.
//
// # Quick Start
//
//	store := storage.NewMemoryStore()
//	loop, err := governance.NewLoop(governance.Config{}, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loop.Registry.Register(ctx, "agent-1", []string{"email"}, 0.70)
//
//	result, err := loop.RunCycle(ctx, []governance.Task{
//	    {TaskID: "t-1", Impact: 0.5, Urgency: 0.5, Risk: 0.0},
//	}, executor)
package governance

import "time"

// AgentStatus is the lifecycle state of an agent within the governance plane.
type AgentStatus int

const (
	// StatusActive is the default status: the agent is fully eligible for
	// assignment subject only to the trust threshold.
	StatusActive AgentStatus = iota

	// StatusProbation is a single-cycle trial granted to a suppressed agent
	// attempting redemption. At most one task is assigned to a probation
	// agent per cycle, and only when no active agent qualifies.
	StatusProbation

	// StatusSuppressed means the agent is ineligible for assignment pending
	// a future probation cycle.
	StatusSuppressed

	// StatusExcluded is terminal: the agent is never assigned again and
	// never transitions to any other status.
	StatusExcluded
)

// String returns the human-readable name of the status.
func (s AgentStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusProbation:
		return "PROBATION"
	case StatusSuppressed:
		return "SUPPRESSED"
	case StatusExcluded:
		return "EXCLUDED"
	default:
		return "UNKNOWN"
	}
}

// Outcome classifies the result of one task execution for the Learning
// Engine. OutcomeNone means the task was never assigned (circuit-broken) and
// therefore produces no trust update.
type Outcome int

const (
	// OutcomeNone indicates no trust update should be applied (the task was
	// not assigned to any agent).
	OutcomeNone Outcome = iota
	// OutcomeSuccess indicates the executor reported success.
	OutcomeSuccess
	// OutcomeFailure indicates the executor reported failure, a timeout, or
	// an executor fault.
	OutcomeFailure
)

// String returns the human-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "none"
	}
}

// MutationDirection records which way, if any, the Mutation Engine adjusted
// the thresholds at the end of a cycle.
type MutationDirection int

const (
	// DirectionHold means the thresholds were left unchanged.
	DirectionHold MutationDirection = iota
	// DirectionTighten means thresholds were raised (harder to qualify).
	DirectionTighten
	// DirectionLoosen means thresholds were lowered (easier to qualify).
	DirectionLoosen
)

// String returns the human-readable name of the direction.
func (d MutationDirection) String() string {
	switch d {
	case DirectionTighten:
		return "TIGHTEN"
	case DirectionLoosen:
		return "LOOSEN"
	default:
		return "HOLD"
	}
}

// ErrorKind classifies why an execution failed, for observability purposes.
type ErrorKind string

const (
	// ErrorKindNone means the execution did not fail.
	ErrorKindNone ErrorKind = ""
	// ErrorKindExecutor means the executor returned a Go error.
	ErrorKindExecutor ErrorKind = "EXECUTOR"
	// ErrorKindTimeout means the executor exceeded its per-task timeout.
	ErrorKindTimeout ErrorKind = "TIMEOUT"
)

// Task is one unit of work submitted to a cycle. Tasks are ephemeral: only
// the ExecutionResult derived from a task survives past the cycle in which it
// was submitted.
type Task struct {
	// TaskID uniquely identifies the task within the batch.
	TaskID string

	// Impact, Urgency, and Risk are scoring fields in [0,1] consumed by the
	// Prioritizer.
	Impact  float64
	Urgency float64
	Risk    float64

	// Metadata is an opaque, string-keyed map interpreted only by the
	// executor, except for the reserved key "required_capability", which
	// the Trust Engine uses to filter eligible agents.
	Metadata map[string]string
}

// RequiredCapability returns the task's reserved "required_capability"
// metadata value, or "" if none was specified (meaning any agent passes the
// capability filter).
func (t Task) RequiredCapability() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata["required_capability"]
}

// Agent is a registered participant in the governance plane.
type Agent struct {
	// AgentID uniquely identifies the agent.
	AgentID string

	// Capabilities is the agent's unordered set of opaque capability tags.
	Capabilities map[string]struct{}

	// Status is the agent's current lifecycle state.
	Status AgentStatus

	// Trust is the agent's current trust score in [0,1].
	Trust float64

	// RedemptionCyclesUsed counts probation attempts consumed while
	// SUPPRESSED/on probation.
	RedemptionCyclesUsed int

	// SuppressionEnteredAtCycle is the cycle id at which the agent most
	// recently transitioned into SUPPRESSED, or -1 if it never has.
	SuppressionEnteredAtCycle int64

	// LastProbationOutcome records whether the agent's most recent
	// probation trial succeeded. Nil if the agent has never been on
	// probation.
	LastProbationOutcome *bool
}

// HasCapability reports whether tag is present in the agent's capability set.
// An empty tag always passes (no capability was required).
func (a Agent) HasCapability(tag string) bool {
	if tag == "" {
		return true
	}
	_, ok := a.Capabilities[tag]
	return ok
}

// TrustScore is a durable (agent_id, score, updated_at) record. The
// invariant enforced across the Registry and Store is that the registry's
// in-memory score always equals the store's latest TrustScore for that
// agent once a cycle has committed.
type TrustScore struct {
	AgentID   string
	Score     float64
	UpdatedAt time.Time
}

// TrustHistoryEntry is one append-only record of a trust update.
type TrustHistoryEntry struct {
	AgentID   string
	CycleID   int64
	OldScore  float64
	NewScore  float64
	Outcome   Outcome
	Timestamp time.Time
}

// SuppressionState is the per-agent suppression/redemption bookkeeping
// persisted alongside the agent record.
type SuppressionState struct {
	AgentID              string
	Status               AgentStatus
	CycleEntered         int64
	RedemptionAttempts   int
	LastProbationOutcome *bool
}

// ExecutionResult is an append-only record of one task's outcome within a
// cycle. Success is nil when the task was never assigned (a per-task circuit
// breaker).
type ExecutionResult struct {
	TaskID         string
	AgentID        string // empty when unassigned
	CycleID        int64
	Success        *bool
	LatencyMS      int64
	OutputMetadata map[string]string
	ErrorKind      ErrorKind
	Timestamp      time.Time
}

// DriftEvent is emitted when an agent's rolling trust mean drops by at least
// drift_delta across the configured window.
type DriftEvent struct {
	AgentID          string
	CycleID          int64
	Delta            float64
	WindowMeanBefore float64
	WindowMeanAfter  float64
}

// Thresholds is the mutable subset of configuration the Mutation Engine is
// permitted to adjust.
type Thresholds struct {
	TrustThreshold       float64
	SuppressionThreshold float64
	DriftDelta           float64
}

// Mutation is an append-only record of one threshold adjustment decision,
// recorded whether or not it actually changed any value (direction may be
// HOLD).
type Mutation struct {
	CycleID             int64
	OldThresholds       Thresholds
	NewThresholds       Thresholds
	ObservedSuccessRate float64
	Direction           MutationDirection
	Timestamp           time.Time
}

// Reflection is the per-cycle self-assessment produced by the Reflection
// Engine.
type Reflection struct {
	CycleID         int64
	ConstraintScore int
	Notes           []string
	Timestamp       time.Time
}

// CycleStatus summarizes the overall outcome of one governance cycle.
type CycleStatus int

const (
	// CycleOK means the cycle ran its full pipeline (prioritize through
	// reflection) and committed.
	CycleOK CycleStatus = iota
	// CycleCircuitBreaker means every task in the cycle had no eligible
	// agent; no learning or mutation occurred, and the cycle commits only
	// the (agent=⊥, success=nil) execution results.
	CycleCircuitBreaker
)

// String returns the human-readable name of the cycle status.
func (s CycleStatus) String() string {
	if s == CycleCircuitBreaker {
		return "CIRCUIT_BREAKER"
	}
	return "OK"
}

// StatusChange is an append-only record of an agent's status transition.
type StatusChange struct {
	AgentID string
	CycleID int64
	Old     AgentStatus
	New     AgentStatus
	Reason  string
}

// CycleResult is the unified outcome of one Loop.RunCycle invocation.
type CycleResult struct {
	CycleID       int64
	Status        CycleStatus
	Executions    []ExecutionResult
	TrustUpdates  []TrustHistoryEntry
	StatusChanges []StatusChange
	DriftEvents   []DriftEvent
	Mutation      *Mutation
	Reflection    *Reflection
}
