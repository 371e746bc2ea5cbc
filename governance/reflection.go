// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

// ReflectionEngine produces a per-cycle self-assessment from how many
// governance constraints the cycle satisfied.
type ReflectionEngine struct {
	targetSuccessRate float64
}

// NewReflectionEngine constructs a ReflectionEngine targeting the given
// success rate.
func NewReflectionEngine(targetSuccessRate float64) *ReflectionEngine {
	return &ReflectionEngine{targetSuccessRate: targetSuccessRate}
}

// reflectionInput summarizes the facts the Reflection Engine scores.
type reflectionInput struct {
	circuitBroken    bool
	anyAssigned      bool
	cycleSuccessRate float64
	hasAssignments   bool
	anyExcluded      bool
}

// Score evaluates in against the four governance constraints and returns a
// Reflection for cycleID. Notes records which constraints were violated.
func (e *ReflectionEngine) Score(cycleID int64, in reflectionInput) Reflection {
	score := 0
	var notes []string

	if !in.circuitBroken {
		score++
	} else {
		notes = append(notes, "circuit breaker fired")
	}

	if in.anyAssigned {
		score++
	} else {
		notes = append(notes, "no task was assigned")
	}

	if !in.hasAssignments || in.cycleSuccessRate >= e.targetSuccessRate {
		score++
	} else {
		notes = append(notes, "cycle success rate below target")
	}

	if !in.anyExcluded {
		score++
	} else {
		notes = append(notes, "an agent crossed into EXCLUDED")
	}

	return Reflection{
		CycleID:         cycleID,
		ConstraintScore: score,
		Notes:           notes,
	}
}
