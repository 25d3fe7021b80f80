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

// Package sched implements the scheduling and tenancy core for tissuesched:
// workflow/job state machines, two-level admission, progress aggregation,
// branch-local failure handling, and the event bus that fans status out to
// API consumers.
package sched

import "time"

// JobStatus is a job's position in its state machine.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether s is one of the absorbing states.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// WorkflowStatus is a workflow's derived aggregate status.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "PENDING"
	WorkflowRunning   WorkflowStatus = "RUNNING"
	WorkflowSucceeded WorkflowStatus = "SUCCEEDED"
	WorkflowFailed    WorkflowStatus = "FAILED"
	WorkflowCancelled WorkflowStatus = "CANCELLED"
)

// Terminal reports whether s is one of the absorbing states.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowSucceeded, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// TenantState is a user's admission state with the Tenant Manager.
type TenantState string

const (
	TenantActive TenantState = "ACTIVE"
	TenantQueued TenantState = "QUEUED"
	TenantIdle   TenantState = "IDLE"
)

// Job is one unit of dispatch: one invocation of a Job Runner.
type Job struct {
	ID         string
	WorkflowID string
	BranchID   string
	Position   int

	Type   string
	Params map[string]any

	InputImagePath string

	Status JobStatus

	ProgressPercent int
	TilesTotal      int
	TilesProcessed  int

	ResultHandle string
	ErrorKind    string
	ErrorMessage string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ResultAvailable reports whether a result handle can be fetched.
func (j *Job) ResultAvailable() bool {
	return j.Status == JobSucceeded && j.ResultHandle != ""
}

// Clone returns a defensive copy safe to hand to callers outside the registry.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Params != nil {
		cp.Params = make(map[string]any, len(j.Params))
		for k, v := range j.Params {
			cp.Params[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// Branch is an ordered, strictly-sequential chain of job ids within a workflow.
type Branch struct {
	ID     string
	JobIDs []string
}

// Counters summarizes a workflow's jobs by status.
type Counters struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
	Cancelled int
}

// Workflow is a named, user-owned unit of work composed of independent branches.
type Workflow struct {
	ID     string
	Name   string
	UserID string

	BranchOrder []string // lexicographically sorted branch ids, fixed at submission
	Branches    map[string]*Branch

	Status          WorkflowStatus
	Counters        Counters
	ProgressPercent float64

	CreatedAt  time.Time
	CancelledAt *time.Time
}

// JobIDs returns every job id across all branches, in branch/position order.
func (w *Workflow) JobIDs() []string {
	ids := make([]string, 0, w.Counters.Total)
	for _, bid := range w.BranchOrder {
		ids = append(ids, w.Branches[bid].JobIDs...)
	}
	return ids
}

// Clone returns a defensive copy safe to hand to callers outside the registry.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.BranchOrder = append([]string(nil), w.BranchOrder...)
	cp.Branches = make(map[string]*Branch, len(w.Branches))
	for id, b := range w.Branches {
		cp.Branches[id] = &Branch{ID: b.ID, JobIDs: append([]string(nil), b.JobIDs...)}
	}
	if w.CancelledAt != nil {
		t := *w.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}

// WorkflowView is the read-only projection returned by queries (spec §6).
type WorkflowView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	TotalJobs       int       `json:"total_jobs"`
	PendingJobs     int       `json:"pending_jobs"`
	RunningJobs     int       `json:"running_jobs"`
	SucceededJobs   int       `json:"succeeded_jobs"`
	FailedJobs      int       `json:"failed_jobs"`
	CancelledJobs   int       `json:"cancelled_jobs"`
	ProgressPercent float64   `json:"progress_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

// View projects a Workflow onto its API-facing shape.
func (w *Workflow) View() WorkflowView {
	return WorkflowView{
		ID:              w.ID,
		Name:            w.Name,
		UserID:          w.UserID,
		Status:          string(w.Status),
		TotalJobs:       w.Counters.Total,
		PendingJobs:     w.Counters.Pending,
		RunningJobs:     w.Counters.Running,
		SucceededJobs:   w.Counters.Succeeded,
		FailedJobs:      w.Counters.Failed,
		CancelledJobs:   w.Counters.Cancelled,
		ProgressPercent: w.ProgressPercent,
		CreatedAt:       w.CreatedAt,
	}
}

// JobView is the read-only projection of a Job returned by queries (spec §6).
type JobView struct {
	ID              string     `json:"id"`
	WorkflowID      string     `json:"workflow_id"`
	BranchID        string     `json:"branch_id"`
	Position        int        `json:"position"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	ProgressPercent int        `json:"progress_percent"`
	TilesProcessed  int        `json:"tiles_processed"`
	TilesTotal      int        `json:"tiles_total"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ResultAvailable bool       `json:"result_available"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// View projects a Job onto its API-facing shape. Runner inputs (Params,
// InputImagePath) are deliberately omitted: the Job Runner Interface reads
// them directly, callers only need status.
func (j *Job) View() JobView {
	return JobView{
		ID:              j.ID,
		WorkflowID:      j.WorkflowID,
		BranchID:        j.BranchID,
		Position:        j.Position,
		Type:            j.Type,
		Status:          string(j.Status),
		ProgressPercent: j.ProgressPercent,
		TilesProcessed:  j.TilesProcessed,
		TilesTotal:      j.TilesTotal,
		ErrorMessage:    j.ErrorMessage,
		ResultAvailable: j.ResultAvailable(),
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		FinishedAt:      j.FinishedAt,
	}
}

// Tenant is the scheduler's view of one user.
type Tenant struct {
	UserID            string
	WorkflowIDs       map[string]struct{}
	NonTerminalJobs   int
	State             TenantState
	AdmittedAt        time.Time // first-queued time, used for FIFO ordering
}

// StatusSnapshot is the `/status` surface (spec §6).
type StatusSnapshot struct {
	Scheduler struct {
		RunningJobs int `json:"running_jobs"`
		MaxWorkers  int `json:"max_workers"`
	} `json:"scheduler"`
	TenantManager struct {
		ActiveUsers    int `json:"active_users"`
		MaxActiveUsers int `json:"max_active_users"`
		QueuedUsers    int `json:"queued_users"`
	} `json:"tenant_manager"`
}

// DAGSubmission is the wire shape of a workflow submission (spec §6).
type DAGSubmission struct {
	Name string              `json:"name"`
	DAG  DAGBranches         `json:"dag"`
}

// DAGBranches carries the submission's branch map.
type DAGBranches struct {
	Branches map[string][]DAGJob `json:"branches"`
}

// DAGJob is one job entry within a submitted branch.
type DAGJob struct {
	Type           string         `json:"type"`
	InputImagePath string         `json:"input_image_path"`
	Params         map[string]any `json:"params"`
}
