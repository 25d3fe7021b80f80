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

package api

import (
	"encoding/json"
	"net/http"

	scherrors "github.com/tombarlow/tissuesched/pkg/errors"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

// handleSubmit implements `POST workflow` (spec §4.7): body = {name, dag},
// header carries user id, returns the Workflow view.
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) {
	userID := userIDFromRequest(req)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID")
		return
	}

	var sub sched.DAGSubmission
	if err := json.NewDecoder(req.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	wf, err := r.scheduler.Submit(sub.Name, userID, sub, r.validateInput)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf.View())
}

// handleListWorkflows implements `GET workflows`.
func (r *Router) handleListWorkflows(w http.ResponseWriter, req *http.Request) {
	views := make([]sched.WorkflowView, 0)
	for _, wf := range r.scheduler.Workflows.List() {
		views = append(views, wf.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetWorkflow implements `GET workflow(id)`.
func (r *Router) handleGetWorkflow(w http.ResponseWriter, req *http.Request) {
	wf, ok := r.scheduler.Workflows.Get(req.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown workflow")
		return
	}
	writeJSON(w, http.StatusOK, wf.View())
}

// handleListJobs implements `GET jobs_of_workflow(id)`.
func (r *Router) handleListJobs(w http.ResponseWriter, req *http.Request) {
	wf, ok := r.scheduler.Workflows.Get(req.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown workflow")
		return
	}
	jobs := r.scheduler.Jobs.ListByWorkflow(wf.JobIDs())
	views := make([]sched.JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// handleJobResult implements `GET job_result(id)`: 404 until the job has
// SUCCEEDED, then returns the result handle's contents.
func (r *Router) handleJobResult(w http.ResponseWriter, req *http.Request) {
	job, ok := r.scheduler.Jobs.Get(req.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	if !job.ResultAvailable() {
		writeError(w, http.StatusNotFound, "job has no result yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result_handle": job.ResultHandle})
}

// handleCancelWorkflow implements `POST cancel_workflow(id)`.
func (r *Router) handleCancelWorkflow(w http.ResponseWriter, req *http.Request) {
	if err := r.scheduler.CancelWorkflow(req.PathValue("id")); err != nil {
		writeSchedulerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleStatus serves the `/status` surface (spec §6).
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.scheduler.Status())
}

// writeSchedulerError maps a pkg/errors Kind-tagged error onto an HTTP
// status code.
func writeSchedulerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *scherrors.ValidationError:
		status = http.StatusBadRequest
	case *scherrors.NotFoundError:
		status = http.StatusNotFound
	case *scherrors.TransitionError:
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}
