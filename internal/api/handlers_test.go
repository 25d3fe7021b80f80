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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	schedconfig "github.com/tombarlow/tissuesched/internal/config"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

type instantRunner struct{ resultHandle string }

func (r *instantRunner) Run(ctx context.Context, job sched.RunnerJobView, sink sched.ProgressSink, cancel sched.CancelToken) sched.Outcome {
	sink.Update(100, 1, 1)
	return sched.Outcome{Kind: sched.OutcomeSucceeded, ResultHandle: r.resultHandle}
}

func singleJobSubmission(jobType string) sched.DAGSubmission {
	return sched.DAGSubmission{
		Name: "single-job",
		DAG: sched.DAGBranches{
			Branches: map[string][]sched.DAGJob{
				"a": {{Type: jobType, InputImagePath: "/data/a.svs"}},
			},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T) (http.Handler, *sched.Scheduler, context.CancelFunc) {
	t.Helper()
	s := sched.NewScheduler(sched.Config{
		MaxWorkers:         4,
		MaxActiveUsers:     4,
		EventQueueCapacity: 16,
		MinProgressDelta:   1,
	}, testLogger())
	s.Runners.Register("seg", &instantRunner{resultHandle: "result-1"})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	handler, err := NewRouter(s, schedconfig.APIConfig{}, nil, testLogger(), nil)
	require.NoError(t, err)
	return handler, s, cancel
}

func TestHandleSubmitAndGetWorkflow(t *testing.T) {
	handler, _, cancel := newTestRouter(t)
	defer cancel()

	body, _ := json.Marshal(singleJobSubmission("seg"))
	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view sched.WorkflowView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.NotEmpty(t, view.ID)

	req = httptest.NewRequest(http.MethodGet, "/workflows/"+view.ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSubmitRequiresUserID(t *testing.T) {
	handler, _, cancel := newTestRouter(t)
	defer cancel()

	body, _ := json.Marshal(singleJobSubmission("seg"))
	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGetWorkflowNotFound(t *testing.T) {
	handler, _, cancel := newTestRouter(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/workflows/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleJobResultUnavailableUntilSucceeded(t *testing.T) {
	handler, s, cancel := newTestRouter(t)
	defer cancel()

	body, _ := json.Marshal(singleJobSubmission("seg"))
	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view sched.WorkflowView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))

	require.Eventually(t, func() bool {
		wf, ok := s.Workflows.Get(view.ID)
		return ok && wf.Status == sched.WorkflowSucceeded
	}, time.Second, 5*time.Millisecond)

	wf, _ := s.Workflows.Get(view.ID)
	jobID := wf.JobIDs()[0]

	req = httptest.NewRequest(http.MethodGet, "/jobs/"+jobID+"/result", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCancelWorkflow(t *testing.T) {
	handler, _, cancel := newTestRouter(t)
	defer cancel()

	body, _ := json.Marshal(singleJobSubmission("seg"))
	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view sched.WorkflowView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))

	req = httptest.NewRequest(http.MethodPost, "/workflows/"+view.ID+"/cancel", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	handler, _, cancel := newTestRouter(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	s := sched.NewScheduler(sched.Config{
		MaxWorkers:         4,
		MaxActiveUsers:     4,
		EventQueueCapacity: 16,
		MinProgressDelta:   1,
	}, testLogger())
	s.Runners.Register("seg", &instantRunner{resultHandle: "result-1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	handler, err := NewRouter(s, schedconfig.APIConfig{
		RateLimit: schedconfig.RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
	}, nil, testLogger(), nil)
	require.NoError(t, err)

	body, _ := json.Marshal(singleJobSubmission("seg"))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader(body))
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i == 0 {
			assert.Equal(t, http.StatusCreated, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}
