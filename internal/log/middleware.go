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

package log

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestLog describes an inbound HTTP request for logging purposes.
type RequestLog struct {
	// Method is the HTTP method.
	Method string

	// Path is the request path.
	Path string

	// RequestID is the unique ID for this specific request.
	RequestID string

	// RemoteAddr is the remote address of the client.
	RemoteAddr string
}

// ResponseLog describes the outcome of a handled HTTP request.
type ResponseLog struct {
	// StatusCode is the HTTP status code written to the client.
	StatusCode int

	// DurationMs is the duration of the request in milliseconds.
	DurationMs int64
}

// LogRequest logs an incoming HTTP request.
func LogRequest(logger *slog.Logger, req *RequestLog) {
	attrs := []any{
		"event", "http_request",
		"method", req.Method,
		"path", req.Path,
		"remote", req.RemoteAddr,
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	logger.Info("http request received", attrs...)
}

// LogResponse logs the outcome of an HTTP request.
func LogResponse(logger *slog.Logger, req *RequestLog, resp *ResponseLog) {
	attrs := []any{
		"event", "http_response",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", resp.DurationMs,
		"remote", req.RemoteAddr,
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	level := slog.LevelInfo
	message := "http request completed"

	if resp.StatusCode >= 500 {
		level = slog.LevelError
		message = "http request failed"
	} else if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}

	logger.Log(nil, level, message, attrs...)
}

// statusRecorder captures the status code written by a downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware wraps HTTP handlers with structured request/response logging.
type HTTPMiddleware struct {
	logger *slog.Logger
}

// NewHTTPMiddleware creates a new HTTP logging middleware.
func NewHTTPMiddleware(logger *slog.Logger) *HTTPMiddleware {
	return &HTTPMiddleware{logger: logger}
}

// Wrap returns next instrumented with request/response logging.
func (m *HTTPMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		req := &RequestLog{
			Method:     r.Method,
			Path:       r.URL.Path,
			RequestID:  r.Header.Get("X-Request-ID"),
			RemoteAddr: r.RemoteAddr,
		}
		LogRequest(m.logger, req)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		LogResponse(m.logger, req, &ResponseLog{
			StatusCode: rec.status,
			DurationMs: time.Since(start).Milliseconds(),
		})
	})
}
