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
	"log/slog"
	"sync"
	"time"

	scherrors "github.com/tombarlow/tissuesched/pkg/errors"
)

// legalTransitions encodes the job state machine (spec §4.3).
var legalTransitions = map[JobStatus]map[JobStatus]bool{
	JobPending: {JobRunning: true, JobCancelled: true},
	JobRunning: {JobSucceeded: true, JobFailed: true, JobCancelled: true},
}

// JobRegistry is the in-memory, concurrency-safe store of Job records. Every
// mutation publishes a job.<id> event; illegal transitions are rejected and
// leave state unchanged (spec §4.3).
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	bus    *EventBus
	log    *slog.Logger
	onTerminal func(job *Job) // scheduler hook: branch policy + tenant release
}

// NewJobRegistry constructs an empty registry publishing to bus.
func NewJobRegistry(bus *EventBus, log *slog.Logger) *JobRegistry {
	return &JobRegistry{
		jobs: make(map[string]*Job),
		bus:  bus,
		log:  log,
	}
}

// SetOnTerminal installs the callback invoked (outside the registry lock)
// whenever a job reaches a terminal status. The scheduler uses this to apply
// branch-failure policy and release tenant slots.
func (r *JobRegistry) SetOnTerminal(fn func(job *Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTerminal = fn
}

// create installs job. Called only during workflow submission, before the
// job is visible to any other component.
func (r *JobRegistry) create(job *Job) {
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
}

// Get returns a defensive copy of the job, or (nil, false) if unknown.
func (r *JobRegistry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// ListByWorkflow returns defensive copies of every job belonging to
// workflowID, in branch/position order per ids.
func (r *JobRegistry) ListByWorkflow(ids []string) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := r.jobs[id]; ok {
			out = append(out, j.Clone())
		}
	}
	return out
}

// transition validates and applies a status change, publishing a job.<id>
// event on success. Illegal transitions return an INVALID_TRANSITION error
// and leave the job unchanged (spec §4.3, §7 — logged, never user-visible).
func (r *JobRegistry) transition(id string, to JobStatus, mutate func(j *Job)) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return &scherrors.NotFoundError{Kind: scherrors.KindUnknownJob, Resource: "job", ID: id}
	}

	from := job.Status
	if from.Terminal() || !legalTransitions[from][to] {
		r.mu.Unlock()
		err := &scherrors.TransitionError{
			Kind: scherrors.KindInvalidTransition, Entity: "job", ID: id,
			From: string(from), To: string(to),
		}
		r.log.Error("rejected illegal job transition", "job_id", id, "from", from, "to", to)
		return err
	}

	job.Status = to
	now := time.Now()
	switch to {
	case JobRunning:
		job.StartedAt = &now
	case JobSucceeded, JobFailed, JobCancelled:
		job.FinishedAt = &now
	}
	if mutate != nil {
		mutate(job)
	}
	view := job.Clone()
	onTerminal := r.onTerminal
	r.mu.Unlock()

	r.bus.Publish(JobTopic(id), Event{Type: EventJobProgress, Data: view.View()})

	if to.Terminal() && onTerminal != nil {
		onTerminal(view)
	}
	return nil
}

// Start transitions a job PENDING -> RUNNING.
func (r *JobRegistry) Start(id string) error {
	return r.transition(id, JobRunning, nil)
}

// Succeed transitions a job RUNNING -> SUCCEEDED, recording the result handle.
func (r *JobRegistry) Succeed(id, resultHandle string) error {
	return r.transition(id, JobSucceeded, func(j *Job) {
		j.ResultHandle = resultHandle
		j.ProgressPercent = 100
	})
}

// Fail transitions a job to FAILED with the given error kind/message.
func (r *JobRegistry) Fail(id, errKind, errMessage string) error {
	return r.transition(id, JobFailed, func(j *Job) {
		j.ErrorKind = errKind
		j.ErrorMessage = errMessage
	})
}

// Cancel transitions a job (PENDING or RUNNING) to CANCELLED with errKind
// (CANCELLED_BY_REQUEST or SKIPPED_DUE_TO_PREDECESSOR).
func (r *JobRegistry) Cancel(id, errKind string) error {
	return r.transition(id, JobCancelled, func(j *Job) {
		j.ErrorKind = errKind
	})
}

// updateProgress applies a monotonic, clamped progress update and, if
// shouldPublish, emits a job.<id> progress event. Called by progressSink;
// never rejects (progress updates on a non-RUNNING job are silently
// ignored — the runner lost the race against cancellation/completion).
func (r *JobRegistry) updateProgress(id string, percent, tilesProcessed, tilesTotal int, shouldPublish bool) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok || job.Status != JobRunning {
		r.mu.Unlock()
		return
	}
	job.ProgressPercent = percent
	job.TilesProcessed = tilesProcessed
	job.TilesTotal = tilesTotal
	view := job.Clone()
	r.mu.Unlock()

	if shouldPublish {
		r.bus.Publish(JobTopic(id), Event{Type: EventJobProgress, Data: view.View()})
	}
}
