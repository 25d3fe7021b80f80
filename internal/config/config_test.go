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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, 2, cfg.Scheduler.MaxActiveUsers)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.False(t, cfg.API.Auth.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  max_workers: 16
  max_active_users: 5
log:
  level: debug
  format: text
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, 5, cfg.Scheduler.MaxActiveUsers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	// Fields left unset in the file still get a sensible default.
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
}

func TestLoadAppliesEnvOverridesAfterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  max_workers: 16\n"), 0600))

	t.Setenv("TISSUESCHED_MAX_WORKERS", "32")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Scheduler.MaxWorkers, "env must win over the file")
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsNonPositiveCaps(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.MaxWorkers = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_workers")
}

func TestValidateRequiresPublicKeyWhenAuthEnabled(t *testing.T) {
	cfg := Default()
	cfg.API.Auth.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public_key_path")
}

func TestValidateRejectsUnknownTracingExporter(t *testing.T) {
	cfg := Default()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "carrier-pigeon"
	require.Error(t, cfg.Validate())
}

func TestJWTPublicKeyPathEnvImpliesAuthEnabled(t *testing.T) {
	t.Setenv("TISSUESCHED_JWT_PUBLIC_KEY_PATH", "/etc/tissuesched/jwt.pub")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.API.Auth.Enabled)
	assert.Equal(t, "/etc/tissuesched/jwt.pub", cfg.API.Auth.PublicKeyPath)
}
