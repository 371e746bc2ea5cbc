// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExecutor struct {
	inflight  int32
	maxSeen   int32
	fn        func(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, n) {
			break
		}
	}
	return f.fn(ctx, task, agent)
}

func TestRunBatch_UnassignedRecordedWithoutCallingExecutor(t *testing.T) {
	called := false
	exec := &fakeExecutor{fn: func(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error) {
		called = true
		return ExecutionOutcome{Success: true}, nil
	}}

	assignments := []assignment{{task: Task{TaskID: "t1"}, ok: false}}
	results := runBatch(context.Background(), exec, assignments, 1, 0, 1)

	if called {
		t.Fatal("executor must not be called for an unassigned task")
	}
	if results[0].Success != nil {
		t.Fatalf("Success = %v, want nil", results[0].Success)
	}
	if results[0].AgentID != "" {
		t.Fatalf("AgentID = %q, want empty", results[0].AgentID)
	}
}

func TestRunBatch_SuccessAndFailure(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error) {
		if task.TaskID == "ok" {
			return ExecutionOutcome{Success: true}, nil
		}
		return ExecutionOutcome{}, errors.New("boom")
	}}

	assignments := []assignment{
		{task: Task{TaskID: "ok"}, agentID: "a", agent: Agent{AgentID: "a"}, ok: true},
		{task: Task{TaskID: "bad"}, agentID: "a", agent: Agent{AgentID: "a"}, ok: true},
	}
	results := runBatch(context.Background(), exec, assignments, 1, 0, 2)

	if results[0].Success == nil || !*results[0].Success {
		t.Fatalf("expected ok task to succeed, got %+v", results[0])
	}
	if results[1].Success == nil || *results[1].Success {
		t.Fatalf("expected bad task to fail, got %+v", results[1])
	}
	if results[1].ErrorKind != ErrorKindExecutor {
		t.Fatalf("ErrorKind = %v, want EXECUTOR", results[1].ErrorKind)
	}
}

func TestRunBatch_RespectsMaxParallel(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error) {
		time.Sleep(10 * time.Millisecond)
		return ExecutionOutcome{Success: true}, nil
	}}

	var assignments []assignment
	for i := 0; i < 8; i++ {
		assignments = append(assignments, assignment{task: Task{TaskID: string(rune('a' + i))}, agentID: "a", agent: Agent{AgentID: "a"}, ok: true})
	}
	runBatch(context.Background(), exec, assignments, 1, 0, 2)

	if exec.maxSeen > 2 {
		t.Fatalf("max concurrent executions = %d, want <= 2", exec.maxSeen)
	}
}

func TestRunBatch_Timeout(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return ExecutionOutcome{Success: true}, nil
		case <-ctx.Done():
			return ExecutionOutcome{}, ctx.Err()
		}
	}}

	assignments := []assignment{{task: Task{TaskID: "slow"}, agentID: "a", agent: Agent{AgentID: "a"}, ok: true}}
	results := runBatch(context.Background(), exec, assignments, 1, 5*time.Millisecond, 1)

	if results[0].Success == nil || *results[0].Success {
		t.Fatalf("expected timeout to be recorded as failure, got %+v", results[0])
	}
	if results[0].ErrorKind != ErrorKindTimeout {
		t.Fatalf("ErrorKind = %v, want TIMEOUT", results[0].ErrorKind)
	}
}
