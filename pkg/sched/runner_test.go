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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantRunner succeeds immediately with a fixed result handle. Grounds
// the "single job happy path" e2e scenario.
type instantRunner struct {
	resultHandle string
}

func (r *instantRunner) Run(ctx context.Context, job RunnerJobView, sink ProgressSink, cancel CancelToken) Outcome {
	sink.Update(100, 1, 1)
	return Outcome{Kind: OutcomeSucceeded, ResultHandle: r.resultHandle}
}

// blockingRunner runs until its release channel is closed or the cancel
// token fires, letting tests hold a worker slot to exercise max_workers.
type blockingRunner struct {
	release chan struct{}
	started chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 8)}
}

func (r *blockingRunner) Run(ctx context.Context, job RunnerJobView, sink ProgressSink, cancel CancelToken) Outcome {
	select {
	case r.started <- struct{}{}:
	default:
	}
	select {
	case <-r.release:
		return Outcome{Kind: OutcomeSucceeded, ResultHandle: "handle"}
	case <-cancel.Done():
		return Outcome{Kind: OutcomeCancelled}
	}
}

// panicRunner always panics, exercising the RUNNER_CRASH recovery path.
type panicRunner struct{}

func (panicRunner) Run(ctx context.Context, job RunnerJobView, sink ProgressSink, cancel CancelToken) Outcome {
	panic("simulated runner crash")
}

// failingRunner always fails with a caller-supplied error kind.
type failingRunner struct {
	kind string
}

func (r *failingRunner) Run(ctx context.Context, job RunnerJobView, sink ProgressSink, cancel CancelToken) Outcome {
	return Outcome{Kind: OutcomeFailed, ErrorKind: r.kind, ErrorMessage: "simulated failure"}
}

func TestRunnerRegistryRegisterAndGet(t *testing.T) {
	reg := NewRunnerRegistry()
	_, ok := reg.Get("tile_segmentation")
	assert.False(t, ok)

	reg.Register("tile_segmentation", &instantRunner{})
	runner, ok := reg.Get("tile_segmentation")
	require.True(t, ok)
	assert.NotNil(t, runner)
	assert.Equal(t, []string{"tile_segmentation"}, reg.KnownTypes())
}

func TestRunnerCrashOutcomeCarriesRunnerCrashKind(t *testing.T) {
	outcome := RunnerCrashOutcome("boom")
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "RUNNER_CRASH", outcome.ErrorKind)
	assert.Contains(t, outcome.ErrorMessage, "boom")
}

func TestCancelTokenReflectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tok := &cancelToken{ctx: ctx}
	assert.False(t, tok.Requested())

	cancel()
	assert.True(t, tok.Requested())

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel should be closed once cancelled")
	}
}
