// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import "sort"

// Prioritizer produces a deterministic total order over a batch of tasks.
type Prioritizer struct {
	weights PrioritizerWeights
}

// NewPrioritizer constructs a Prioritizer with the given scoring weights.
func NewPrioritizer(weights PrioritizerWeights) *Prioritizer {
	return &Prioritizer{weights: weights}
}

// Order returns a new slice containing tasks sorted by descending
// score = w_i·impact + w_u·urgency + w_r·risk, ties broken by ascending
// task_id. The input slice is not modified.
func (p *Prioritizer) Order(tasks []Task) []Task {
	ordered := make([]Task, len(tasks))
	copy(ordered, tasks)

	scores := make(map[string]float64, len(ordered))
	for _, t := range ordered {
		scores[t.TaskID] = p.weights.Impact*t.Impact + p.weights.Urgency*t.Urgency + p.weights.Risk*t.Risk
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := scores[ordered[i].TaskID], scores[ordered[j].TaskID]
		if si != sj {
			return si > sj
		}
		return ordered[i].TaskID < ordered[j].TaskID
	})
	return ordered
}
