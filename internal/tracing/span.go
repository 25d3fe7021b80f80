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

package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an OpenTelemetry span with scheduler-specific helpers. A nil
// *Span (returned when tracing is disabled, or after a panicking tracer
// call) makes every method a no-op.
type Span struct {
	span trace.Span
}

// StartWorkflowSpan opens the root span covering an entire workflow's
// execution, from submission to terminal aggregate status.
func StartWorkflowSpan(ctx context.Context, tracer trace.Tracer, workflowID, name string) (context.Context, *Span) {
	ctx, span := safeStart(ctx, tracer, fmt.Sprintf("workflow: %s", name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("workflow.name", name),
			attribute.String("span.type", "workflow"),
		),
	)
	return ctx, &Span{span: span}
}

// StartJobSpan opens a span covering one job runner invocation.
func StartJobSpan(ctx context.Context, tracer trace.Tracer, jobID, workflowID, branchID, jobType string) (context.Context, *Span) {
	ctx, span := safeStart(ctx, tracer, fmt.Sprintf("job: %s", jobType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.type", jobType),
			attribute.String("workflow.id", workflowID),
			attribute.String("branch.id", branchID),
			attribute.String("span.type", "job"),
		),
	)
	return ctx, &Span{span: span}
}

func safeStart(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (c context.Context, s trace.Span) {
	if tracer == nil {
		return ctx, nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic starting span", "error", r, "span_name", name)
			c, s = ctx, nil
		}
	}()
	return tracer.Start(ctx, name, opts...)
}

// SetAttributes attaches key-value attributes to the span.
func (s *Span) SetAttributes(kv map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv))
	for k, v := range kv {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	s.safely(func() { s.span.SetAttributes(attrs...) })
}

// RecordError records an error and marks the span's status as failed.
func (s *Span) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.safely(func() {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	})
}

// SetOK marks the span's status as successful.
func (s *Span) SetOK() {
	if s == nil || s.span == nil {
		return
	}
	s.safely(func() { s.span.SetStatus(codes.Ok, "") })
}

// End completes the span.
func (s *Span) End() {
	if s == nil || s.span == nil {
		return
	}
	s.safely(func() { s.span.End() })
}

func (s *Span) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic in span operation", "error", r)
		}
	}()
	fn()
}
