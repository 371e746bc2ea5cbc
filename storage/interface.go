// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package storage defines the persistence interface for the governance
// plane and two concrete implementations: an in-memory store for tests and
// single-process use, and a modernc.org/sqlite-backed store for durable,
// transactional deployments.
//
// All implementations MUST be safe for concurrent use, and MUST make
// RecordCycle atomic: either every entity in a CycleCommit becomes visible
// to subsequent reads, or none of it does.
package storage

import "time"

// AgentStatus mirrors governance.AgentStatus, avoiding a circular import
// between the governance and storage packages.
type AgentStatus int

const (
	StatusActive AgentStatus = iota
	StatusProbation
	StatusSuppressed
	StatusExcluded
)

// Outcome mirrors governance.Outcome.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// MutationDirection mirrors governance.MutationDirection.
type MutationDirection int

const (
	DirectionHold MutationDirection = iota
	DirectionTighten
	DirectionLoosen
)

// ErrorKind mirrors governance.ErrorKind.
type ErrorKind string

// Agent mirrors governance.Agent, flattening the capability set to a slice
// for storage.
type Agent struct {
	AgentID                   string
	Capabilities              []string
	Status                    AgentStatus
	Trust                     float64
	RedemptionCyclesUsed      int
	SuppressionEnteredAtCycle int64
	LastProbationOutcome      *bool
	UpdatedAt                 time.Time
}

// TrustHistoryEntry mirrors governance.TrustHistoryEntry.
type TrustHistoryEntry struct {
	AgentID   string
	CycleID   int64
	OldScore  float64
	NewScore  float64
	Outcome   Outcome
	Timestamp time.Time
}

// SuppressionState mirrors governance.SuppressionState.
type SuppressionState struct {
	AgentID              string
	Status               AgentStatus
	CycleEntered         int64
	RedemptionAttempts   int
	LastProbationOutcome *bool
}

// ExecutionResult mirrors governance.ExecutionResult.
type ExecutionResult struct {
	TaskID         string
	AgentID        string
	CycleID        int64
	Success        *bool
	LatencyMS      int64
	OutputMetadata map[string]string
	ErrorKind      ErrorKind
	Timestamp      time.Time
}

// DriftEvent mirrors governance.DriftEvent.
type DriftEvent struct {
	AgentID          string
	CycleID          int64
	Delta            float64
	WindowMeanBefore float64
	WindowMeanAfter  float64
}

// Thresholds mirrors governance.Thresholds.
type Thresholds struct {
	TrustThreshold       float64
	SuppressionThreshold float64
	DriftDelta           float64
}

// Mutation mirrors governance.Mutation.
type Mutation struct {
	CycleID             int64
	OldThresholds       Thresholds
	NewThresholds       Thresholds
	ObservedSuccessRate float64
	Direction           MutationDirection
	Timestamp           time.Time
}

// Reflection mirrors governance.Reflection.
type Reflection struct {
	CycleID         int64
	ConstraintScore int
	Notes           []string
	Timestamp       time.Time
}

// StatusChange mirrors governance.StatusChange.
type StatusChange struct {
	AgentID string
	CycleID int64
	Old     AgentStatus
	New     AgentStatus
	Reason  string
}

// CapabilityGrant is an append-only record of a capability tag being
// granted or revoked for an agent.
type CapabilityGrant struct {
	AgentID   string
	Tag       string
	Granted   bool
	GrantedBy string
	Timestamp time.Time
}

// Decision mirrors governance.Decision, flattened for storage.
type Decision struct {
	Permitted bool
	AgentID   string
	Action    string
	CycleID   int64
	Outcome   Outcome
	Timestamp time.Time
	Reason    string
}

// AuditRecord mirrors governance.AuditRecord, the tamper-evident hash chain
// entry persisted by the Store.
type AuditRecord struct {
	ID        string
	Decision  Decision
	Hash      string
	PrevHash  string
	Timestamp time.Time
}

// AuditFilter restricts QueryAudit reads.
type AuditFilter struct {
	AgentID       string
	Action        string
	Since         time.Time
	Until         time.Time
	PermittedOnly bool
	DeniedOnly    bool
	Limit         int
}

// CycleCommit bundles everything one governance cycle produces so that
// RecordCycle can apply it as a single atomic unit.
type CycleCommit struct {
	CycleID           int64
	Executions        []ExecutionResult
	TrustUpdates      []TrustHistoryEntry
	SuppressionStates []SuppressionState
	StatusChanges     []StatusChange
	DriftEvents       []DriftEvent
	Mutation          *Mutation
	Reflection        *Reflection

	// AgentSnapshots carries the final (trust, status, redemption state) for
	// every agent touched this cycle, applied to the mutable agents table.
	AgentSnapshots []Agent
}

// Stats is the aggregate returned by Store.Stats.
type Stats struct {
	Cycles           int
	Executions       int
	Successes        int
	Failures         int
	ActiveAgents     int
	SuppressedAgents int
	ExcludedAgents   int
	AverageTrust     float64
}

// ExecutionFilter restricts ExecutionHistory reads.
type ExecutionFilter struct {
	AgentID string
	TaskID  string
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Store is the persistence interface for the governance plane. All methods
// must be safe for concurrent use.
type Store interface {
	// UpsertAgent idempotently registers or updates an agent. When the agent
	// already exists and overrideTrust is false, the stored trust score,
	// status and suppression/redemption state are preserved and only
	// capabilities are updated.
	UpsertAgent(agent Agent, overrideTrust bool) error

	// LoadAgents returns a snapshot of all registered agents. Ordering is
	// unspecified.
	LoadAgents() ([]Agent, error)

	// RecordCycle atomically persists every entity produced by one
	// governance cycle. Either the whole commit becomes visible or none of
	// it does.
	RecordCycle(commit CycleCommit) error

	// Stats aggregates counts over the last window cycles, or all time when
	// window <= 0.
	Stats(window int) (Stats, error)

	// TrustHistory returns up to limit trust history entries for agentID,
	// most recent first. limit <= 0 means no limit.
	TrustHistory(agentID string, limit int) ([]TrustHistoryEntry, error)

	// RecentTrustSamples returns up to limit of the most recent trust
	// values recorded for agentID (oldest first), used to seed drift
	// detection after a restart.
	RecentTrustSamples(agentID string, limit int) ([]float64, error)

	// RecentSuccessRates returns up to limit of the most recent per-cycle
	// success rates (oldest first), used to seed the Mutation Engine's
	// rolling window after a restart.
	RecentSuccessRates(limit int) ([]float64, error)

	// Executions returns execution results matching filter, oldest first.
	Executions(filter ExecutionFilter) ([]ExecutionResult, error)

	// DriftEvents returns up to limit drift events for agentID, most recent
	// first. An empty agentID matches all agents.
	DriftEvents(agentID string, limit int) ([]DriftEvent, error)

	// Mutations returns up to limit mutation records, most recent first.
	Mutations(limit int) ([]Mutation, error)

	// Reflections returns up to limit reflection records, most recent
	// first.
	Reflections(limit int) ([]Reflection, error)

	// SetCapabilityGrant records a capability grant or revocation.
	SetCapabilityGrant(grant CapabilityGrant) error

	// CapabilityGrants returns the current grant state for agentID, keyed
	// by tag.
	CapabilityGrants(agentID string) (map[string]bool, error)

	// AppendAudit appends one record to the tamper-evident audit log. Callers
	// are responsible for computing Hash/PrevHash before calling; AppendAudit
	// only persists the record.
	AppendAudit(record AuditRecord) error

	// QueryAudit returns audit records matching filter, oldest first.
	QueryAudit(filter AuditFilter) ([]AuditRecord, error)
}
