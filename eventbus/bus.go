// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package eventbus publishes typed governance events to best-effort
// subscribers. Delivery failures never affect committed governance state —
// the event boundary is strictly downstream of a successful cycle commit.
package eventbus

import "time"

// Kind identifies the type of a published Event.
type Kind string

const (
	KindAgentRegistered      Kind = "AgentRegistered"
	KindTrustUpdated         Kind = "TrustUpdated"
	KindStatusChanged        Kind = "StatusChanged"
	KindDriftDetected        Kind = "DriftDetected"
	KindThresholdMutated     Kind = "ThresholdMutated"
	KindReflectionRecorded   Kind = "ReflectionRecorded"
	KindCircuitBreakerTrip   Kind = "CircuitBreakerTripped"
)

// Scope distinguishes a per-task circuit breaker from a whole-cycle one.
type Scope string

const (
	ScopeTask  Scope = "TASK"
	ScopeCycle Scope = "CYCLE"
)

// Event is the envelope published for every governance occurrence. Payload
// holds one of the Kind-specific structs below; CycleID and Sequence give
// every event a total order: events from cycle N are all published before
// any event from cycle N+1.
type Event struct {
	Kind      Kind      `json:"kind"`
	CycleID   int64     `json:"cycle_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// AgentRegistered is published when a new agent is registered.
type AgentRegistered struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	InitialTrust float64  `json:"initial_trust"`
}

// TrustUpdated is published for every trust score change.
type TrustUpdated struct {
	AgentID string  `json:"agent_id"`
	Old     float64 `json:"old"`
	New     float64 `json:"new"`
	Outcome string  `json:"outcome"`
}

// StatusChanged is published for every agent status transition.
type StatusChanged struct {
	AgentID string `json:"agent_id"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Reason  string `json:"reason"`
}

// DriftDetected is published when an agent's rolling trust mean drops
// beyond drift_delta.
type DriftDetected struct {
	AgentID string  `json:"agent_id"`
	Delta   float64 `json:"delta"`
}

// ThresholdMutated is published whenever the Mutation Engine runs, even
// when its direction is HOLD.
type ThresholdMutated struct {
	OldTrustThreshold       float64 `json:"old_trust_threshold"`
	NewTrustThreshold       float64 `json:"new_trust_threshold"`
	OldSuppressionThreshold float64 `json:"old_suppression_threshold"`
	NewSuppressionThreshold float64 `json:"new_suppression_threshold"`
	Direction               string  `json:"direction"`
}

// ReflectionRecorded is published once per cycle.
type ReflectionRecorded struct {
	ConstraintScore int      `json:"constraint_score"`
	Notes           []string `json:"notes"`
}

// CircuitBreakerTripped is published once per task or once per cycle,
// depending on Scope.
type CircuitBreakerTripped struct {
	TaskID string `json:"task_id,omitempty"`
	Scope  Scope  `json:"scope"`
}

// Publisher delivers Events to interested subscribers. Publish must never
// block the caller on a slow or unreachable subscriber for more than the
// implementation's own internal timeout, and must never return an error
// that the caller is expected to treat as a cycle failure.
type Publisher interface {
	Publish(events []Event)
}
