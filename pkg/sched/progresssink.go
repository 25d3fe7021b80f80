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

import "sync"

// progressSink adapts ProgressSink.Update calls into Job Registry mutations,
// enforcing monotonicity/clamping (spec §4.2) and coalescing into bus events
// via the configured MinProgressDelta (spec §9 "progress event volume" — by
// default, publish on every >=1% change).
type progressSink struct {
	registry *JobRegistry
	jobID    string

	mu          sync.Mutex
	lastPercent int
	minDelta    int
}

// newProgressSink wires a progress sink to jobID. minDelta < 1 is treated as 1.
func newProgressSink(registry *JobRegistry, jobID string, minDelta int) *progressSink {
	if minDelta < 1 {
		minDelta = 1
	}
	return &progressSink{registry: registry, jobID: jobID, minDelta: minDelta, lastPercent: -1}
}

// Update implements ProgressSink. Out-of-range values are clamped to
// [0,100]; values below the last reported percent are ignored (monotonicity,
// spec §3). Runner double-reporting the same value does not generate a bus
// event.
func (s *progressSink) Update(percent int, tilesProcessed, tilesTotal int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	if percent < s.lastPercent {
		percent = s.lastPercent
	}
	delta := percent - s.lastPercent
	shouldPublish := s.lastPercent < 0 || delta >= s.minDelta || percent == 100
	s.lastPercent = percent
	s.mu.Unlock()

	s.registry.updateProgress(s.jobID, percent, tilesProcessed, tilesTotal, shouldPublish)
}
