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
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombarlow/tissuesched/internal/metrics"
	"github.com/tombarlow/tissuesched/internal/tracing"
	scherrors "github.com/tombarlow/tissuesched/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// Config configures a Scheduler.
type Config struct {
	MaxWorkers         int
	MaxActiveUsers     int
	EventQueueCapacity int
	MinProgressDelta   int
}

// Scheduler is the dispatch loop: it pulls ready jobs from admitted tenants,
// enforces max_workers, launches runners, and applies completion back to the
// registries (spec §4.6). It is the single logical coordinator described in
// spec §5 — registry and tenant mutations are serialized through the
// registries' own locks, while this type owns only the permit pool, the
// in-flight job bookkeeping, and the scheduling notification channel.
type Scheduler struct {
	cfg Config
	log *slog.Logger

	Jobs      *JobRegistry
	Workflows *WorkflowRegistry
	Tenants   *TenantManager
	Runners   *RunnerRegistry
	Bus       *EventBus

	semaphore chan struct{}  // capacity == MaxWorkers
	notify    chan struct{}  // buffered(1) "something may be schedulable"

	mu        sync.Mutex
	running   map[string]context.CancelFunc // job id -> cancel for in-flight runs
	owners    map[string]string             // workflow id -> user id, for tenant release
	wfSpans   map[string]*tracing.Span      // workflow id -> root span, while non-terminal

	draining atomic.Bool
	wg       sync.WaitGroup

	stopOnce sync.Once
	stopCh   chan struct{}

	tracer  trace.Tracer // nil when tracing is disabled
	metrics *metrics.Collector // nil when metrics are disabled
}

// SetObservability wires an optional tracing provider and metrics collector
// into the scheduler. Called once during daemon startup, before Start; nil
// arguments leave the corresponding instrumentation disabled.
func (s *Scheduler) SetObservability(provider *tracing.Provider, collector *metrics.Collector) {
	s.tracer = provider.Tracer("tissuesched/scheduler")
	s.metrics = collector
	if collector != nil {
		collector.SetStats(s)
	}
}

// RunningJobCount reports how many permits are currently held, for the
// metrics collector's observable gauge.
func (s *Scheduler) RunningJobCount() int {
	return len(s.semaphore)
}

// TenantCounts reports the current active/queued tenant counts, for the
// metrics collector's observable gauges.
func (s *Scheduler) TenantCounts() (active, queued int) {
	snap := s.Tenants.Snapshot()
	return snap.ActiveUsers, snap.QueuedUsers
}

// NewScheduler constructs a Scheduler wired to fresh registries, a tenant
// manager, and an empty runner registry. Callers register runners via
// s.Runners.Register before calling Start.
func NewScheduler(cfg Config, log *slog.Logger) *Scheduler {
	bus := NewEventBus(cfg.EventQueueCapacity)
	jobs := NewJobRegistry(bus, log)
	workflows := NewWorkflowRegistry(jobs, bus, log)
	tenants := NewTenantManager(cfg.MaxActiveUsers, bus, log)

	s := &Scheduler{
		cfg:       cfg,
		log:       log,
		Jobs:      jobs,
		Workflows: workflows,
		Tenants:   tenants,
		Runners:   NewRunnerRegistry(),
		Bus:       bus,
		semaphore: make(chan struct{}, cfg.MaxWorkers),
		notify:    make(chan struct{}, 1),
		running:   make(map[string]context.CancelFunc),
		owners:    make(map[string]string),
		wfSpans:   make(map[string]*tracing.Span),
		stopCh:    make(chan struct{}),
	}

	jobs.SetOnTerminal(s.onJobTerminal)
	tenants.SetOnAdmitted(func(string) { s.signal() })
	return s
}

// signal wakes the dispatch loop without blocking if it is busy.
func (s *Scheduler) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Submit validates and installs a new workflow, registers its owning user
// with the Tenant Manager, and wakes the dispatch loop (spec §4.4, §2).
func (s *Scheduler) Submit(name, userID string, sub DAGSubmission, validateInput func(string) error) (*Workflow, error) {
	id := NewWorkflowID()
	known := make(map[string]bool)
	for _, t := range s.Runners.KnownTypes() {
		known[t] = true
	}

	wf, jobs, err := s.Workflows.Create(id, name, userID, sub, known, validateInput)
	if err != nil {
		return nil, err
	}

	_, span := tracing.StartWorkflowSpan(context.Background(), s.tracer, wf.ID, name)

	s.mu.Lock()
	s.owners[wf.ID] = userID
	s.wfSpans[wf.ID] = span
	s.mu.Unlock()

	s.Tenants.Register(userID, wf.ID, len(jobs))
	s.signal()
	return wf, nil
}

// CancelWorkflow marks every non-terminal job of id CANCELLED: RUNNING jobs
// have their cancel token signaled, PENDING jobs transition directly to
// CANCELLED (spec §4.6). Idempotent; cannot be retracted.
func (s *Scheduler) CancelWorkflow(id string) error {
	wf, ok := s.Workflows.Get(id)
	if !ok {
		return &scherrors.NotFoundError{Kind: scherrors.KindUnknownWorkflow, Resource: "workflow", ID: id}
	}

	s.Workflows.MarkCancelled(id)

	for _, jobID := range wf.JobIDs() {
		job, ok := s.Jobs.Get(jobID)
		if !ok || job.Status.Terminal() {
			continue
		}
		switch job.Status {
		case JobPending:
			_ = s.Jobs.Cancel(jobID, string(scherrors.KindCancelledByRequest))
		case JobRunning:
			s.mu.Lock()
			cancel := s.running[jobID]
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		}
	}

	s.Workflows.Recompute(id)
	s.signal()
	return nil
}

// Start launches the dispatch loop. It returns once ctx is cancelled or
// Shutdown is called; callers typically run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.signal() // survey once at startup in case work was submitted before Start
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.notify:
			s.dispatchOnce()
		}
	}
}

// Shutdown cancels every in-flight job, waits (bounded by ctx) for runners to
// drain, and closes down the dispatch loop — following the teacher's
// Runner.Stop/WaitForDrain pattern.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readyJob is one branch-head candidate considered during a survey.
type readyJob struct {
	jobID          string
	workflowID     string
	userID         string
	admittedAt     time.Time
	workflowCreated time.Time
	branchID       string
	position       int
}

// dispatchOnce performs one iteration of the coordinator's survey/order/
// acquire/launch cycle (spec §4.6 steps 2-4).
func (s *Scheduler) dispatchOnce() {
	if s.draining.Load() {
		return
	}

	ready := s.surveyReadyJobs()
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if !a.admittedAt.Equal(b.admittedAt) {
			return a.admittedAt.Before(b.admittedAt)
		}
		if !a.workflowCreated.Equal(b.workflowCreated) {
			return a.workflowCreated.Before(b.workflowCreated)
		}
		if a.branchID != b.branchID {
			return a.branchID < b.branchID
		}
		return a.position < b.position
	})

	for _, rj := range ready {
		select {
		case s.semaphore <- struct{}{}:
		default:
			return // global cap reached; remaining ready jobs wait for the next signal
		}
		s.launch(rj)
	}
}

// surveyReadyJobs finds, for every ACTIVE tenant's non-terminal workflows,
// each branch's ready head job (spec §4.6 step 2).
func (s *Scheduler) surveyReadyJobs() []readyJob {
	var ready []readyJob

	for _, userID := range s.Tenants.ActiveUserIDs() {
		admittedAt := s.Tenants.AdmittedAt(userID)

		for _, wf := range s.Workflows.List() {
			if wf.UserID != userID || wf.Status.Terminal() {
				continue
			}
			for _, branchID := range wf.BranchOrder {
				branch := wf.Branches[branchID]
				head, pos, ok := s.branchHead(branch)
				if !ok {
					continue
				}
				_ = pos
				ready = append(ready, readyJob{
					jobID:           head.ID,
					workflowID:      wf.ID,
					userID:          userID,
					admittedAt:      admittedAt,
					workflowCreated: wf.CreatedAt,
					branchID:        branchID,
					position:        head.Position,
				})
			}
		}
	}
	return ready
}

// branchHead returns the lowest-position job in branch whose predecessor is
// SUCCEEDED (or position 0), if that job is PENDING (spec's "ready job"
// definition, §2 glossary).
func (s *Scheduler) branchHead(branch *Branch) (*Job, int, bool) {
	var prevSucceeded = true
	for pos, jobID := range branch.JobIDs {
		job, ok := s.Jobs.Get(jobID)
		if !ok {
			return nil, 0, false
		}
		if job.Status == JobSucceeded {
			prevSucceeded = true
			continue
		}
		if !prevSucceeded {
			return nil, 0, false
		}
		if job.Status == JobPending {
			return job, pos, true
		}
		// RUNNING or a terminal non-succeeded status occupies the head;
		// nothing further in this branch is ready.
		return nil, 0, false
	}
	return nil, 0, false
}

// launch transitions job PENDING -> RUNNING and runs it on its own goroutine,
// holding one global permit for the duration (spec §4.6 step 4).
func (s *Scheduler) launch(rj readyJob) {
	runnerJob, ok := s.Jobs.Get(rj.jobID)
	if !ok {
		<-s.semaphore
		return
	}

	runner, ok := s.Runners.Get(runnerJob.Type)
	if !ok {
		<-s.semaphore
		s.log.Error("no runner registered for job type", "job_id", rj.jobID, "type", runnerJob.Type)
		_ = s.Jobs.Fail(rj.jobID, string(scherrors.KindRunnerCrash), "no runner registered for type "+runnerJob.Type)
		return
	}

	if err := s.Jobs.Start(rj.jobID); err != nil {
		<-s.semaphore
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[rj.jobID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, cancel, rj, runnerJob, runner)
}

// run executes one job's runner invocation to completion, applying its
// outcome to the registries and releasing the held permit (spec §4.2, §4.6
// step 5). A panicking runner is treated as FAILED with RUNNER_CRASH.
func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, rj readyJob, job *Job, runner JobRunner) {
	defer s.wg.Done()
	defer func() {
		<-s.semaphore // release the permit before signaling, so a woken
		// dispatch can actually acquire it
		s.mu.Lock()
		delete(s.running, rj.jobID)
		s.mu.Unlock()
		cancel()
		s.signal()
	}()

	view := RunnerJobView{
		ID: job.ID, WorkflowID: job.WorkflowID, BranchID: job.BranchID,
		Type: job.Type, Params: job.Params, InputImagePath: job.InputImagePath,
	}
	sink := newProgressSink(s.Jobs, job.ID, s.cfg.MinProgressDelta)
	token := &cancelToken{ctx: ctx}

	spanCtx, span := tracing.StartJobSpan(ctx, s.tracer, job.ID, job.WorkflowID, job.BranchID, job.Type)
	started := time.Now()

	outcome := s.invokeRunner(spanCtx, runner, view, sink, token)

	var status string
	switch outcome.Kind {
	case OutcomeSucceeded:
		_ = s.Jobs.Succeed(job.ID, outcome.ResultHandle)
		status = "succeeded"
		span.SetOK()
	case OutcomeCancelled:
		_ = s.Jobs.Cancel(job.ID, string(scherrors.KindCancelledByRequest))
		status = "cancelled"
	case OutcomeFailed:
		_ = s.Jobs.Fail(job.ID, outcome.ErrorKind, outcome.ErrorMessage)
		status = "failed"
		span.RecordError(&scherrors.TransitionError{Kind: scherrors.Kind(outcome.ErrorKind), Entity: "job", ID: job.ID})
	default:
		_ = s.Jobs.Fail(job.ID, string(scherrors.KindRunnerCrash), "runner returned unrecognized outcome")
		status = "failed"
	}
	span.End()
	s.metrics.RecordJobTerminal(job.Type, status, time.Since(started))
}

// invokeRunner calls runner.Run, converting a panic into a RUNNER_CRASH
// outcome instead of propagating it (spec §4.2, §7 — internal invariant
// violations must not crash the coordinator).
func (s *Scheduler) invokeRunner(ctx context.Context, runner JobRunner, view RunnerJobView, sink ProgressSink, token CancelToken) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job runner panicked", "job_id", view.ID, "recovered", r)
			outcome = RunnerCrashOutcome(r)
		}
	}()
	return runner.Run(ctx, view, sink, token)
}

// onJobTerminal is the JobRegistry hook invoked whenever any job reaches a
// terminal status, by any path (dispatch completion, direct cancellation, or
// branch cascade). It applies the branch-level failure policy, recomputes
// the owning workflow's aggregate, releases the tenant slot if applicable,
// and wakes the dispatch loop (spec §4.6 step 5, "branch-level failure
// policy").
func (s *Scheduler) onJobTerminal(job *Job) {
	if job.Status == JobFailed {
		s.cancelBranchRemainder(job)
	}

	s.Workflows.Recompute(job.WorkflowID)

	s.mu.Lock()
	userID := s.owners[job.WorkflowID]
	s.mu.Unlock()
	if userID != "" {
		s.Tenants.OnJobTerminal(userID)
	}

	if wf, ok := s.Workflows.Get(job.WorkflowID); ok && wf.Status.Terminal() {
		s.mu.Lock()
		span := s.wfSpans[job.WorkflowID]
		delete(s.wfSpans, job.WorkflowID)
		s.mu.Unlock()
		if span != nil {
			if wf.Status == WorkflowSucceeded {
				span.SetOK()
			}
			span.End()
		}
	}

	s.signal()
}

// cancelBranchRemainder cancels every later-position PENDING job in job's
// branch with kind SKIPPED_DUE_TO_PREDECESSOR, leaving other branches
// untouched (spec §4.6 "branch-level failure policy").
func (s *Scheduler) cancelBranchRemainder(job *Job) {
	wf, ok := s.Workflows.Get(job.WorkflowID)
	if !ok {
		return
	}
	branch, ok := wf.Branches[job.BranchID]
	if !ok {
		return
	}
	for _, jobID := range branch.JobIDs {
		sibling, ok := s.Jobs.Get(jobID)
		if !ok || sibling.Position <= job.Position || sibling.Status.Terminal() {
			continue
		}
		_ = s.Jobs.Cancel(jobID, string(scherrors.KindSkippedDueToPredecessor))
	}
}

// Status returns the `/status` surface (spec §6).
func (s *Scheduler) Status() StatusSnapshot {
	var snap StatusSnapshot
	snap.Scheduler.RunningJobs = len(s.semaphore)
	snap.Scheduler.MaxWorkers = s.cfg.MaxWorkers
	ts := s.Tenants.Snapshot()
	snap.TenantManager.ActiveUsers = ts.ActiveUsers
	snap.TenantManager.MaxActiveUsers = ts.MaxActiveUsers
	snap.TenantManager.QueuedUsers = ts.QueuedUsers
	return snap
}
