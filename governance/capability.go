// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/muvera-ai/governance-plane/storage"
)

// CapabilityGrantManager records and queries capability grants/revocations
// for agents, adapted from the teacher's ConsentManager: the same
// Record/Check/Revoke shape, applied to (agent_id, capability tag) pairs
// instead of (agent_id, action) consent pairs.
//
// A grant with granted=false removes a tag from an agent's effective
// eligibility set even if the tag is still present in the registry
// snapshot's static Capabilities, letting an operator revoke a capability
// without a full re-registration. All methods are safe for concurrent use.
type CapabilityGrantManager struct {
	store storage.Store
}

// NewCapabilityGrantManager constructs a CapabilityGrantManager backed by
// the given store.
func NewCapabilityGrantManager(store storage.Store) *CapabilityGrantManager {
	return &CapabilityGrantManager{store: store}
}

// Record grants tag to agentID, attributing the grant to grantedBy.
func (m *CapabilityGrantManager) Record(ctx context.Context, agentID, tag, grantedBy string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if agentID == "" || tag == "" {
		return fmt.Errorf("governance: agentID and tag must not be empty")
	}
	return m.store.SetCapabilityGrant(storage.CapabilityGrant{
		AgentID:   agentID,
		Tag:       tag,
		Granted:   true,
		GrantedBy: grantedBy,
		Timestamp: time.Now().UTC(),
	})
}

// Revoke withdraws tag from agentID.
func (m *CapabilityGrantManager) Revoke(ctx context.Context, agentID, tag, revokedBy string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	existing, err := m.store.CapabilityGrants(agentID)
	if err != nil {
		return fmt.Errorf("governance: revoke capability: %w", err)
	}
	if _, ok := existing[tag]; !ok {
		return ErrCapabilityNotFound
	}
	return m.store.SetCapabilityGrant(storage.CapabilityGrant{
		AgentID:   agentID,
		Tag:       tag,
		Granted:   false,
		GrantedBy: revokedBy,
		Timestamp: time.Now().UTC(),
	})
}

// Has reports whether tag is currently granted for agentID.
func (m *CapabilityGrantManager) Has(ctx context.Context, agentID, tag string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	grants, err := m.store.CapabilityGrants(agentID)
	if err != nil {
		return false, fmt.Errorf("governance: check capability: %w", err)
	}
	granted, ok := grants[tag]
	return ok && granted, nil
}

// ApplyRevocations returns a copy of snapshot with any explicitly revoked
// capability tag removed from the corresponding agent's effective
// capability set. Grants that only add a tag are not applied here, and no
// other step of the Loop applies them either: a tag takes part in
// eligibility only if it is in the agent's registered Capabilities. This
// method only ever narrows eligibility, matching the Trust Engine's
// use of it as a pure filter step ahead of assignment.
func (m *CapabilityGrantManager) ApplyRevocations(ctx context.Context, snapshot map[string]Agent) (map[string]Agent, error) {
	out := make(map[string]Agent, len(snapshot))
	for id, a := range snapshot {
		grants, err := m.store.CapabilityGrants(id)
		if err != nil {
			return nil, fmt.Errorf("governance: load capability grants for %q: %w", id, err)
		}
		if len(grants) == 0 {
			out[id] = a
			continue
		}
		caps := make(map[string]struct{}, len(a.Capabilities))
		for tag := range a.Capabilities {
			if granted, revoked := grants[tag]; revoked && !granted {
				continue
			}
			caps[tag] = struct{}{}
		}
		a.Capabilities = caps
		out[id] = a
	}
	return out, nil
}
