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

// Package metrics exposes the scheduler's admission and throughput state as
// Prometheus metrics, built on top of the OpenTelemetry metrics SDK meter
// that internal/tracing already maintains (the same meter provider backs
// both the span exporter and the /metrics endpoint).
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchedulerStats is the read-only view of scheduler state the collector
// polls for its observable gauges. *sched.Scheduler satisfies this
// implicitly.
type SchedulerStats interface {
	RunningJobCount() int
	TenantCounts() (active, queued int)
}

// Collector holds the scheduler's counters and gauges. A nil *Collector is
// valid; every recording method becomes a no-op so callers can wire it in
// unconditionally when tracing is disabled.
type Collector struct {
	jobsTotal    metric.Int64Counter
	jobDuration  metric.Float64Histogram

	statsMu sync.RWMutex
	stats   SchedulerStats
}

// NewCollector builds a Collector against meter, registering the observable
// gauges immediately. SetStats must be called once the scheduler exists,
// since the scheduler itself depends on a Config that may embed this
// Collector's construction.
func NewCollector(meter metric.Meter) (*Collector, error) {
	c := &Collector{}

	var err error
	c.jobsTotal, err = meter.Int64Counter(
		"tissuesched_jobs_total",
		metric.WithDescription("Total number of jobs reaching a terminal status"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	c.jobDuration, err = meter.Float64Histogram(
		"tissuesched_job_duration_seconds",
		metric.WithDescription("Job runner execution duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"tissuesched_running_jobs",
		metric.WithDescription("Number of jobs currently RUNNING"),
		metric.WithUnit("{job}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if s := c.currentStats(); s != nil {
				o.Observe(int64(s.RunningJobCount()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"tissuesched_active_users",
		metric.WithDescription("Number of tenants currently holding an active admission slot"),
		metric.WithUnit("{user}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if s := c.currentStats(); s != nil {
				active, _ := s.TenantCounts()
				o.Observe(int64(active))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"tissuesched_queued_users",
		metric.WithDescription("Number of tenants waiting for an active admission slot"),
		metric.WithUnit("{user}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if s := c.currentStats(); s != nil {
				_, queued := s.TenantCounts()
				o.Observe(int64(queued))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// SetStats installs the scheduler the observable gauges poll.
func (c *Collector) SetStats(s SchedulerStats) {
	if c == nil {
		return
	}
	c.statsMu.Lock()
	c.stats = s
	c.statsMu.Unlock()
}

func (c *Collector) currentStats() SchedulerStats {
	if c == nil {
		return nil
	}
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// RecordJobTerminal records one job reaching status (SUCCEEDED, FAILED, or
// CANCELLED) and its total runner execution duration.
func (c *Collector) RecordJobTerminal(jobType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("type", jobType),
		attribute.String("status", status),
	)
	c.jobsTotal.Add(context.Background(), 1, attrs)
	c.jobDuration.Record(context.Background(), duration.Seconds(), attrs)
}
