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

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
)

type fakeStats struct {
	running, active, queued int
}

func (f fakeStats) RunningJobCount() int             { return f.running }
func (f fakeStats) TenantCounts() (int, int)          { return f.active, f.queued }

func TestNewCollectorRegistersInstruments(t *testing.T) {
	mp := metric.NewMeterProvider()
	c, err := NewCollector(mp.Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, c)

	c.SetStats(fakeStats{running: 2, active: 1, queued: 3})
	assert.NotPanics(t, func() {
		c.RecordJobTerminal("segment", "succeeded", 150*time.Millisecond)
	})
}

func TestNilCollectorMethodsAreNoops(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SetStats(fakeStats{})
		c.RecordJobTerminal("segment", "failed", time.Second)
	})
}
