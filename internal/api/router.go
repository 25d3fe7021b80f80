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

// Package api is the HTTP API Adapter (spec §4.7): submission, queries,
// result download, and WebSocket subscription — a thin boundary over
// pkg/sched, specified only at the contract level.
package api

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/tombarlow/tissuesched/internal/api/auth"
	schedconfig "github.com/tombarlow/tissuesched/internal/config"
	"github.com/tombarlow/tissuesched/internal/log"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

// Router wraps an http.ServeMux with the scheduler's HTTP and WebSocket
// surface, following the teacher's internal/daemon/api.Router shape (a
// ServeMux plus setter-injected optional concerns) but built directly from
// a Config at construction time instead.
type Router struct {
	mux           *http.ServeMux
	scheduler     *sched.Scheduler
	log           *slog.Logger
	validateInput func(string) error
}

// NewRouter builds the full HTTP mux: REST endpoints, the WebSocket bridge,
// and (if metricsHandler is non-nil) the /metrics endpoint, wrapped in logging, optional JWT auth, and optional per-user
// rate limiting.
func NewRouter(scheduler *sched.Scheduler, cfg schedconfig.APIConfig, validateInput func(string) error, logger *slog.Logger, metricsHandler http.Handler) (http.Handler, error) {
	r := &Router{
		mux:           http.NewServeMux(),
		scheduler:     scheduler,
		log:           logger,
		validateInput: validateInput,
	}

	r.mux.HandleFunc("POST /workflows", r.handleSubmit)
	r.mux.HandleFunc("GET /workflows", r.handleListWorkflows)
	r.mux.HandleFunc("GET /workflows/{id}", r.handleGetWorkflow)
	r.mux.HandleFunc("GET /workflows/{id}/jobs", r.handleListJobs)
	r.mux.HandleFunc("POST /workflows/{id}/cancel", r.handleCancelWorkflow)
	r.mux.HandleFunc("GET /workflows/{id}/ws", r.handleWorkflowWS)
	r.mux.HandleFunc("GET /jobs/{id}/result", r.handleJobResult)
	r.mux.HandleFunc("GET /status", r.handleStatus)
	if metricsHandler != nil {
		r.mux.Handle("GET /metrics", metricsHandler)
	}

	var verifier *auth.Verifier
	if cfg.Auth.Enabled {
		keyPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		verifier, err = auth.NewVerifier(keyPEM)
		if err != nil {
			return nil, err
		}
	}

	var limiter *rateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = newRateLimiter(RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
	}

	var handler http.Handler = r.mux
	handler = rateLimitMiddleware(limiter)(handler)
	handler = authMiddleware(verifier)(handler)
	handler = log.NewHTTPMiddleware(logger).Wrap(handler)
	return handler, nil
}
