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

// Package tracing wires the scheduler's job and workflow execution into
// OpenTelemetry: one span per job run and one root span per workflow,
// exported either to stdout (for local operators) or an OTLP collector.
package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether and how the scheduler emits traces and metrics.
type Config struct {
	Enabled     bool
	Exporter    string // "stdout" or "otlp"
	Endpoint    string // OTLP collector address, required when Exporter == "otlp"
	ServiceName string
}

// Provider owns the SDK tracer and meter providers for the process lifetime.
// A nil *Provider is valid and every method on it is a no-op, so callers
// that construct a Provider from a disabled Config can wire it in
// unconditionally.
type Provider struct {
	tp           *sdktrace.TracerProvider
	mp           *metric.MeterProvider
	promExporter *prometheus.Exporter
}

// NewProvider builds a Provider from cfg. When cfg.Enabled is false it
// returns nil, nil — callers treat a nil Provider as "tracing disabled".
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	exporter, err := newSpanExporter(cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("tracing: build prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)

	return &Provider{tp: tp, mp: mp, promExporter: promExporter}, nil
}

func newSpanExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", "stdout":
		return stdouttrace.New(stdouttrace.WithoutTimestamps())
	case "otlp":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("tracing: otlp exporter requires an endpoint")
		}
		return otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("tracing: unknown exporter %q", cfg.Exporter)
	}
}

// Tracer returns the named tracer, or a no-op tracer if p is nil.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.Tracer(name) // global no-op provider until one is set
	}
	return p.tp.Tracer(name)
}

// Meter returns the process meter, used by internal/metrics to build its
// gauges and counters against the same Prometheus reader this Provider
// exposes via MetricsHandler.
func (p *Provider) Meter(name string) metric.Meter {
	if p == nil || p.mp == nil {
		return otel.GetMeterProvider().Meter(name)
	}
	return p.mp.Meter(name)
}

// MetricsHandler serves the process's metrics in Prometheus exposition
// format. Returns a handler reporting "tracing disabled" when p is nil.
func (p *Provider) MetricsHandler() http.Handler {
	if p == nil || p.promExporter == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "tracing disabled: no metrics exporter configured", http.StatusNotImplemented)
		})
	}
	return promhttp.Handler()
}

// Shutdown flushes pending spans and releases provider resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.Shutdown(ctx)
	}
	return nil
}
