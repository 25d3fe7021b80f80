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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartJobSpanWithNilTracerIsNoop(t *testing.T) {
	ctx, span := StartJobSpan(context.Background(), nil, "job-1", "wf-1", "branch-a", "segment")
	assert.Equal(t, context.Background(), ctx)
	assert.Nil(t, span.span)
	assert.NotPanics(t, func() {
		span.SetAttributes(map[string]any{"k": "v"})
		span.RecordError(errors.New("boom"))
		span.SetOK()
		span.End()
	})
}

func TestStartJobSpanWithRealTracerProducesUsableSpan(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "stdout", ServiceName: "test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := StartJobSpan(context.Background(), p.Tracer("test"), "job-1", "wf-1", "branch-a", "segment")
	require.NotNil(t, span)
	span.SetAttributes(map[string]any{"progress": 50})
	span.SetOK()
	span.End()
}

func TestStartWorkflowSpanRecordsError(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "stdout", ServiceName: "test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := StartWorkflowSpan(context.Background(), p.Tracer("test"), "wf-1", "demo")
	require.NotNil(t, span)
	span.RecordError(errors.New("a branch failed"))
	span.End()
}
