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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabledReturnsNil(t *testing.T) {
	p, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewProviderStdoutExporter(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "stdout", ServiceName: "test"})
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Shutdown(context.Background())

	tracer := p.Tracer("test")
	assert.NotNil(t, tracer)
}

func TestNewProviderOTLPRequiresEndpoint(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "otlp", ServiceName: "test"})
	require.Error(t, err)
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNilProviderMethodsAreNoops(t *testing.T) {
	var p *Provider
	assert.NotPanics(t, func() {
		_ = p.Tracer("x")
		_ = p.Meter("x")
		assert.NoError(t, p.Shutdown(context.Background()))
	})
}

func TestMetricsHandlerServesWhenEnabled(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "stdout", ServiceName: "test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestMetricsHandlerDisabledReturnsNotImplemented(t *testing.T) {
	var p *Provider
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, req)
	assert.Equal(t, 501, rec.Code)
}
