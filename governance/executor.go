// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package governance

import (
	"context"
	"sync"
	"time"
)

// ExecutionOutcome is what an Executor reports back for one (task, agent)
// pair.
type ExecutionOutcome struct {
	Success   bool
	LatencyMS int64
	Output    map[string]string
	ErrorKind ErrorKind
}

// Executor runs one task against the agent the Trust Engine assigned it to.
// Implementations must be side-effect-idempotent with respect to retries at
// the governance layer — the core never retries within a cycle.
type Executor interface {
	Execute(ctx context.Context, task Task, agent Agent) (ExecutionOutcome, error)
}

// assignment pairs a task with the agent the Trust Engine selected for it,
// or records that none was found.
type assignment struct {
	task    Task
	agentID string
	agent   Agent
	ok      bool
}

// runBatch dispatches every assigned pair in assignments to executor,
// bounded to maxParallel concurrent calls via a buffered-channel semaphore,
// waits for all outcomes (fan-in), and returns one ExecutionResult per
// assignment in the same order — including unassigned tasks, recorded with
// agent="" and Success=nil without ever calling the executor.
func runBatch(ctx context.Context, executor Executor, assignments []assignment, cycleID int64, taskTimeout time.Duration, maxParallel int) []ExecutionResult {
	results := make([]ExecutionResult, len(assignments))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, a := range assignments {
		if !a.ok {
			results[i] = ExecutionResult{
				TaskID:    a.task.TaskID,
				CycleID:   cycleID,
				Timestamp: time.Now().UTC(),
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, a assignment) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = executeOne(ctx, executor, a, cycleID, taskTimeout)
		}(i, a)
	}

	wg.Wait()
	return results
}

func executeOne(ctx context.Context, executor Executor, a assignment, cycleID int64, taskTimeout time.Duration) ExecutionResult {
	callCtx := ctx
	cancel := func() {}
	if taskTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, taskTimeout)
	}
	defer cancel()

	start := time.Now()
	outcome, err := executor.Execute(callCtx, a.task, a.agent)
	elapsed := time.Since(start)

	result := ExecutionResult{
		TaskID:    a.task.TaskID,
		AgentID:   a.agentID,
		CycleID:   cycleID,
		LatencyMS: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}

	switch {
	case callCtx.Err() == context.DeadlineExceeded:
		success := false
		result.Success = &success
		result.ErrorKind = ErrorKindTimeout
	case err != nil:
		success := false
		result.Success = &success
		result.ErrorKind = ErrorKindExecutor
	default:
		success := outcome.Success
		result.Success = &success
		result.LatencyMS = outcome.LatencyMS
		result.OutputMetadata = outcome.Output
		result.ErrorKind = outcome.ErrorKind
	}
	return result
}
