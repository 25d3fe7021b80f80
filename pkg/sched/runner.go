// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sched

import (
	"context"
	"fmt"
	"sync"

	scherrors "github.com/tombarlow/tissuesched/pkg/errors"
)

// RunnerJobView is the read-only job contract handed to a runner: type,
// params, and input reference. It is distinct from the API-facing JobView in
// types.go, which omits these runner-only fields.
type RunnerJobView struct {
	ID             string
	WorkflowID     string
	BranchID       string
	Type           string
	Params         map[string]any
	InputImagePath string
}

// ProgressSink is how a runner reports progress back to the core. The core
// enforces monotonicity and clamps to [0,100]; a runner may call Update any
// number of times from any goroutine.
type ProgressSink interface {
	Update(percent int, tilesProcessed, tilesTotal int)
}

// CancelToken is queried cooperatively by a runner; the runner must return
// promptly with OutcomeCancelled on observing Requested().
type CancelToken interface {
	Requested() bool
	Done() <-chan struct{}
}

// OutcomeKind classifies how a runner invocation ended.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "SUCCEEDED"
	OutcomeFailed    OutcomeKind = "FAILED"
	OutcomeCancelled OutcomeKind = "CANCELLED"
)

// Outcome is what a Job Runner returns from Run.
type Outcome struct {
	Kind OutcomeKind

	// ResultHandle is set when Kind == OutcomeSucceeded.
	ResultHandle string

	// ErrorKind/ErrorMessage are set when Kind == OutcomeFailed.
	ErrorKind    string
	ErrorMessage string
}

// JobRunner is the single operation the core calls to execute one job. The
// image-processing pipeline itself is an opaque implementation of this
// interface; the core never inspects what a runner does internally.
type JobRunner interface {
	Run(ctx context.Context, job RunnerJobView, sink ProgressSink, cancel CancelToken) Outcome
}

// RunnerRegistry maps a job type tag to the JobRunner that executes it
// (spec §6 runner_registry, §9 "dynamic type dispatch for job types").
type RunnerRegistry struct {
	mu      sync.RWMutex
	runners map[string]JobRunner
}

// NewRunnerRegistry constructs an empty registry.
func NewRunnerRegistry() *RunnerRegistry {
	return &RunnerRegistry{runners: make(map[string]JobRunner)}
}

// Register installs runner as the implementation for jobType. Registering a
// type a second time replaces the prior runner.
func (r *RunnerRegistry) Register(jobType string, runner JobRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[jobType] = runner
}

// Get looks up the runner for jobType.
func (r *RunnerRegistry) Get(jobType string) (JobRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[jobType]
	return runner, ok
}

// KnownTypes returns every registered job type tag, for DAG validation.
func (r *RunnerRegistry) KnownTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.runners))
	for t := range r.runners {
		types = append(types, t)
	}
	return types
}

// cancelToken is the scheduler's CancelToken implementation: a context whose
// cancellation doubles as the sticky "was this requested" flag, mirroring
// the teacher's runner.go stop-channel/context pairing.
type cancelToken struct {
	ctx context.Context
}

func (c *cancelToken) Requested() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func (c *cancelToken) Done() <-chan struct{} { return c.ctx.Done() }

// RunnerCrashOutcome builds the FAILED outcome the scheduler substitutes
// when a runner panics, per spec §4.2 ("raises or terminates abnormally").
func RunnerCrashOutcome(recovered any) Outcome {
	return Outcome{
		Kind:         OutcomeFailed,
		ErrorKind:    string(scherrors.KindRunnerCrash),
		ErrorMessage: fmt.Sprintf("runner panic: %v", recovered),
	}
}
