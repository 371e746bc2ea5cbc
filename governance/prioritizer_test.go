// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"reflect"
	"testing"
)

func defaultWeights() PrioritizerWeights {
	return PrioritizerWeights{Impact: 0.4, Urgency: 0.4, Risk: 0.2}
}

func TestPrioritizer_OrdersByDescendingScore(t *testing.T) {
	p := NewPrioritizer(defaultWeights())
	tasks := []Task{
		{TaskID: "low", Impact: 0.1, Urgency: 0.1, Risk: 0.1},
		{TaskID: "high", Impact: 0.9, Urgency: 0.9, Risk: 0.9},
		{TaskID: "mid", Impact: 0.5, Urgency: 0.5, Risk: 0.5},
	}
	ordered := p.Order(tasks)

	got := []string{ordered[0].TaskID, ordered[1].TaskID, ordered[2].TaskID}
	want := []string{"high", "mid", "low"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestPrioritizer_TiesBrokenByTaskIDAscending(t *testing.T) {
	p := NewPrioritizer(defaultWeights())
	tasks := []Task{
		{TaskID: "zz", Impact: 0.5, Urgency: 0.5, Risk: 0.5},
		{TaskID: "aa", Impact: 0.5, Urgency: 0.5, Risk: 0.5},
	}
	ordered := p.Order(tasks)
	if ordered[0].TaskID != "aa" || ordered[1].TaskID != "zz" {
		t.Fatalf("order = [%s %s], want [aa zz]", ordered[0].TaskID, ordered[1].TaskID)
	}
}

func TestPrioritizer_Deterministic(t *testing.T) {
	p := NewPrioritizer(defaultWeights())
	tasks := []Task{
		{TaskID: "a", Impact: 0.3, Urgency: 0.7, Risk: 0.2},
		{TaskID: "b", Impact: 0.6, Urgency: 0.1, Risk: 0.9},
		{TaskID: "c", Impact: 0.5, Urgency: 0.5, Risk: 0.5},
	}
	first := p.Order(tasks)
	for i := 0; i < 10; i++ {
		again := p.Order(tasks)
		for j := range first {
			if first[j].TaskID != again[j].TaskID {
				t.Fatalf("non-deterministic ordering on run %d: %v vs %v", i, first, again)
			}
		}
	}
}

func TestPrioritizer_DoesNotMutateInput(t *testing.T) {
	p := NewPrioritizer(defaultWeights())
	tasks := []Task{
		{TaskID: "z", Impact: 0.1},
		{TaskID: "a", Impact: 0.9},
	}
	_ = p.Order(tasks)
	if tasks[0].TaskID != "z" || tasks[1].TaskID != "a" {
		t.Fatalf("input slice was mutated: %v", tasks)
	}
}
