// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"context"
	"sync"
	"time"

	"github.com/muvera-ai/governance-plane/storage"
)

// Registry is the fast in-memory view of agents used on the hot path. On
// construction it mirrors the store; after every successful cycle commit
// the Loop calls Apply with the same deltas it just persisted.
//
// The registry is exclusively owned by its Loop — callers outside the Loop
// should only Register agents and read Snapshot; sub-engines never mutate
// it directly.
type Registry struct {
	mu     sync.RWMutex
	store  storage.Store
	agents map[string]Agent
}

// NewRegistry constructs a Registry and loads its initial state from store.
// A failure to load is fatal and reported as *RegistryInconsistency.
func NewRegistry(store storage.Store) (*Registry, error) {
	loaded, err := store.LoadAgents()
	if err != nil {
		return nil, &RegistryInconsistency{Reason: err.Error()}
	}

	r := &Registry{store: store, agents: make(map[string]Agent, len(loaded))}
	for _, sa := range loaded {
		r.agents[sa.AgentID] = fromStorageAgent(sa)
	}
	return r, nil
}

// Register installs a new agent (or re-registers an existing one with a
// fresh capability set) in both the store and the in-memory view, with
// status ACTIVE and the given initial trust.
func (r *Registry) Register(ctx context.Context, agentID string, capabilities []string, initialTrust float64) (Agent, error) {
	if err := ctx.Err(); err != nil {
		return Agent{}, err
	}
	if initialTrust < 0 || initialTrust > 1 {
		return Agent{}, ErrInvalidTrust
	}

	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	agent := Agent{
		AgentID:                   agentID,
		Capabilities:              caps,
		Status:                    StatusActive,
		Trust:                     initialTrust,
		SuppressionEnteredAtCycle: -1,
	}

	if err := r.store.UpsertAgent(toStorageAgent(agent), true); err != nil {
		return Agent{}, &StorageFault{Op: "UpsertAgent", Err: err}
	}

	r.mu.Lock()
	r.agents[agentID] = agent
	r.mu.Unlock()

	return agent, nil
}

// Snapshot returns a deep, immutable-to-the-caller copy of the registry's
// current view, suitable as the input to one governance cycle.
func (r *Registry) Snapshot() map[string]Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Agent, len(r.agents))
	for id, a := range r.agents {
		out[id] = copyGovernanceAgent(a)
	}
	return out
}

// Get returns the current view of a single agent.
func (r *Registry) Get(agentID string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	return copyGovernanceAgent(a), ok
}

// Apply installs the final per-agent state from a committed cycle into the
// in-memory view. It must only be called after RecordCycle has succeeded.
func (r *Registry) Apply(updated []Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range updated {
		r.agents[a.AgentID] = copyGovernanceAgent(a)
	}
}

func copyGovernanceAgent(a Agent) Agent {
	caps := make(map[string]struct{}, len(a.Capabilities))
	for k := range a.Capabilities {
		caps[k] = struct{}{}
	}
	a.Capabilities = caps
	if a.LastProbationOutcome != nil {
		v := *a.LastProbationOutcome
		a.LastProbationOutcome = &v
	}
	return a
}

func toStorageAgent(a Agent) storage.Agent {
	caps := make([]string, 0, len(a.Capabilities))
	for c := range a.Capabilities {
		caps = append(caps, c)
	}
	return storage.Agent{
		AgentID:                   a.AgentID,
		Capabilities:              caps,
		Status:                    storage.AgentStatus(a.Status),
		Trust:                     a.Trust,
		RedemptionCyclesUsed:      a.RedemptionCyclesUsed,
		SuppressionEnteredAtCycle: a.SuppressionEnteredAtCycle,
		LastProbationOutcome:      a.LastProbationOutcome,
		UpdatedAt:                 time.Now().UTC(),
	}
}

func fromStorageAgent(sa storage.Agent) Agent {
	caps := make(map[string]struct{}, len(sa.Capabilities))
	for _, c := range sa.Capabilities {
		caps[c] = struct{}{}
	}
	return Agent{
		AgentID:                   sa.AgentID,
		Capabilities:              caps,
		Status:                    AgentStatus(sa.Status),
		Trust:                     sa.Trust,
		RedemptionCyclesUsed:      sa.RedemptionCyclesUsed,
		SuppressionEnteredAtCycle: sa.SuppressionEnteredAtCycle,
		LastProbationOutcome:      sa.LastProbationOutcome,
	}
}
