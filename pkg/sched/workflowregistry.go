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
	"sort"
	"sync"
	"time"

	scherrors "github.com/tombarlow/tissuesched/pkg/errors"
)

// WorkflowRegistry stores Workflow records and recomputes their derived
// counters/status/progress whenever an owned job mutates (spec §4.4).
type WorkflowRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow

	jobs *JobRegistry
	bus  *EventBus
	log  *slog.Logger
}

// NewWorkflowRegistry constructs an empty registry.
func NewWorkflowRegistry(jobs *JobRegistry, bus *EventBus, log *slog.Logger) *WorkflowRegistry {
	return &WorkflowRegistry{
		workflows: make(map[string]*Workflow),
		jobs:      jobs,
		bus:       bus,
		log:       log,
	}
}

// Create validates and installs a new workflow and its jobs. Returns
// INVALID_DAG if validation fails; no state is mutated on rejection
// (spec §4.4).
func (r *WorkflowRegistry) Create(id, name, userID string, sub DAGSubmission, knownTypes map[string]bool, validateInput func(path string) error) (*Workflow, []*Job, error) {
	branchOrder, branches, jobs, err := buildDAG(id, sub, knownTypes, validateInput)
	if err != nil {
		return nil, nil, err
	}

	wf := &Workflow{
		ID:          id,
		Name:        name,
		UserID:      userID,
		BranchOrder: branchOrder,
		Branches:    branches,
		Status:      WorkflowPending,
		Counters:    Counters{Total: len(jobs), Pending: len(jobs)},
		CreatedAt:   time.Now(),
	}

	r.mu.Lock()
	r.workflows[id] = wf
	r.mu.Unlock()

	for _, j := range jobs {
		r.jobs.create(j)
	}

	r.bus.Publish(WorkflowTopic(id), Event{Type: EventWorkflowProgress, Data: wf.Clone().View()})
	return wf.Clone(), jobs, nil
}

// buildDAG validates a submission per spec §4.4 (unique branch ids,
// non-empty branches, known type tags, syntactically valid input refs) and
// materializes Branch/Job records with stable, lexicographically-ordered
// branch ids.
func buildDAG(workflowID string, sub DAGSubmission, knownTypes map[string]bool, validateInput func(path string) error) ([]string, map[string]*Branch, []*Job, error) {
	if len(sub.DAG.Branches) == 0 {
		return nil, nil, nil, &scherrors.ValidationError{
			Kind: scherrors.KindInvalidDAG, Field: "dag.branches",
			Message: "a workflow must have at least one branch",
		}
	}

	branchOrder := make([]string, 0, len(sub.DAG.Branches))
	for bid := range sub.DAG.Branches {
		branchOrder = append(branchOrder, bid)
	}
	sort.Strings(branchOrder)

	branches := make(map[string]*Branch, len(branchOrder))
	var jobs []*Job

	for _, bid := range branchOrder {
		entries := sub.DAG.Branches[bid]
		if len(entries) == 0 {
			return nil, nil, nil, &scherrors.ValidationError{
				Kind: scherrors.KindInvalidDAG, Field: "dag.branches[" + bid + "]",
				Message: "branch must be non-empty",
			}
		}

		jobIDs := make([]string, 0, len(entries))
		for pos, entry := range entries {
			if !knownTypes[entry.Type] {
				return nil, nil, nil, &scherrors.ValidationError{
					Kind: scherrors.KindInvalidDAG, Field: "type",
					Message:    "unknown job type tag: " + entry.Type,
					Suggestion: "register a runner for this type or fix the submission",
				}
			}
			if validateInput != nil {
				if err := validateInput(entry.InputImagePath); err != nil {
					return nil, nil, nil, &scherrors.ValidationError{
						Kind: scherrors.KindInvalidDAG, Field: "input_image_path",
						Message: err.Error(),
					}
				}
			}

			jobID := newJobID(workflowID, bid, pos)
			jobIDs = append(jobIDs, jobID)
			jobs = append(jobs, &Job{
				ID:             jobID,
				WorkflowID:     workflowID,
				BranchID:       bid,
				Position:       pos,
				Type:           entry.Type,
				Params:         entry.Params,
				InputImagePath: entry.InputImagePath,
				Status:         JobPending,
				CreatedAt:      time.Now(),
			})
		}
		branches[bid] = &Branch{ID: bid, JobIDs: jobIDs}
	}

	return branchOrder, branches, jobs, nil
}

// Get returns a defensive copy of the workflow, or (nil, false) if unknown.
func (r *WorkflowRegistry) Get(id string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// List returns defensive copies of every known workflow.
func (r *WorkflowRegistry) List() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		out = append(out, w.Clone())
	}
	return out
}

// Recompute recalculates counters, progress_percent, and aggregate status
// for workflowID from the current state of its jobs, and publishes a
// workflow.<id> event if anything changed (spec §4.4). Called by the
// scheduler after every job status transition.
func (r *WorkflowRegistry) Recompute(workflowID string) {
	r.mu.Lock()
	wf, ok := r.workflows[workflowID]
	if !ok {
		r.mu.Unlock()
		return
	}
	jobIDs := wf.JobIDs()
	cancelledAt := wf.CancelledAt
	r.mu.Unlock()

	jobs := r.jobs.ListByWorkflow(jobIDs)

	var c Counters
	var progressSum float64
	anyFailed, anyCancelled, allSucceeded, allPending, allTerminal := false, false, true, true, true
	succeededAfterCancel := false

	for _, j := range jobs {
		c.Total++
		progressSum += float64(j.ProgressPercent)
		switch j.Status {
		case JobPending:
			c.Pending++
			allSucceeded = false
			allTerminal = false
		case JobRunning:
			c.Running++
			allSucceeded = false
			allPending = false
			allTerminal = false
		case JobSucceeded:
			c.Succeeded++
			allPending = false
			if cancelledAt != nil && j.FinishedAt != nil && j.FinishedAt.After(*cancelledAt) {
				succeededAfterCancel = true
			}
		case JobFailed:
			c.Failed++
			anyFailed = true
			allSucceeded = false
			allPending = false
		case JobCancelled:
			c.Cancelled++
			anyCancelled = true
			allSucceeded = false
			allPending = false
		}
	}

	// Per spec §3: CANCELLED iff cancellation was requested and no job
	// SUCCEEDED after that request. A failure still wins over a pending
	// cancellation (§4.6 branch-level failure policy runs regardless of
	// cancellation state).
	wasCancelled := cancelledAt != nil && !succeededAfterCancel

	status := WorkflowPending
	switch {
	case allPending:
		status = WorkflowPending
	case !allTerminal:
		// Per spec §3/§4.4: a workflow stays RUNNING until every job is
		// terminal, even once one branch has already failed or been
		// cancelled — sibling branches keep running to completion (§4.6).
		status = WorkflowRunning
	case anyFailed:
		status = WorkflowFailed
	case wasCancelled && anyCancelled:
		status = WorkflowCancelled
	case allSucceeded:
		status = WorkflowSucceeded
	default:
		// Mixed succeeded/cancelled with no failure and no live cancellation
		// request blocking it (e.g. a stale CancelledAt racing a completed
		// branch) — treat as the best available terminal state.
		if anyCancelled {
			status = WorkflowCancelled
		} else {
			status = WorkflowSucceeded
		}
	}

	progressPercent := 0.0
	if c.Total > 0 {
		progressPercent = progressSum / float64(c.Total)
	}

	r.mu.Lock()
	wf, ok = r.workflows[workflowID]
	if !ok {
		r.mu.Unlock()
		return
	}
	changed := wf.Status != status || wf.Counters != c || wf.ProgressPercent != progressPercent
	wf.Counters = c
	wf.ProgressPercent = progressPercent
	wf.Status = status
	view := wf.Clone()
	r.mu.Unlock()

	if changed {
		r.bus.Publish(WorkflowTopic(workflowID), Event{Type: EventWorkflowProgress, Data: view.View()})
	}
}

// MarkCancelled records that cancellation was requested for workflowID, used
// to disambiguate CANCELLED vs FAILED when a workflow has no SUCCEEDED jobs
// after a cancel request (spec §3).
func (r *WorkflowRegistry) MarkCancelled(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wf, ok := r.workflows[id]; ok && wf.CancelledAt == nil {
		now := time.Now()
		wf.CancelledAt = &now
	}
}
