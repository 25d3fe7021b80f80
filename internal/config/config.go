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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	schederrors "github.com/tombarlow/tissuesched/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete tissuesched service configuration.
type Config struct {
	Log       LogConfig             `yaml:"log"`
	Scheduler SchedulerConfig       `yaml:"scheduler"`
	API       APIConfig             `yaml:"api"`
	Tracing   TracingConfig         `yaml:"tracing"`
	Runners   map[string]RunnerSpec `yaml:"runners,omitempty"`
}

// RunnerSpec configures the external command internal/runner.ExecRunner
// invokes for one job type tag (spec §6 runner_registry: "dynamic type
// dispatch for job types" maps onto one ExecRunner per configured entry).
type RunnerSpec struct {
	// Command is run as Command[0] with Command[1:] as arguments; the job
	// view is passed as JSON on stdin.
	Command []string `yaml:"command"`

	// TimeoutSeconds bounds a single job invocation; zero means unbounded.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// LogConfig configures structured logging (spec's ambient logging stack,
// mirroring internal/log.Config).
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	Level string `yaml:"level"`

	// Format is the output format (json, text).
	// Environment: LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource includes source file:line in log records.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source,omitempty"`
}

// SchedulerConfig configures the scheduling/tenancy core (spec §2, §4.5).
type SchedulerConfig struct {
	// MaxWorkers is the global cap on concurrently RUNNING jobs.
	// Environment: TISSUESCHED_MAX_WORKERS
	MaxWorkers int `yaml:"max_workers"`

	// MaxActiveUsers is the cap on concurrently ACTIVE tenants.
	// Environment: TISSUESCHED_MAX_ACTIVE_USERS
	MaxActiveUsers int `yaml:"max_active_users"`

	// EventQueueCapacity is the per-subscription bounded queue size on the
	// Event Bus before oldest-event eviction kicks in.
	EventQueueCapacity int `yaml:"event_queue_capacity,omitempty"`

	// MinProgressDelta is the minimum percent-point change a job's progress
	// must advance before a new progress event is published.
	MinProgressDelta int `yaml:"min_progress_delta,omitempty"`

	// AllowedInputPathPatterns is the doublestar glob allow-list checked
	// against every submitted input_image_path (pkg/sched.PathValidator).
	// An empty list permits any non-empty path.
	AllowedInputPathPatterns []string `yaml:"allowed_input_path_patterns,omitempty"`
}

// APIConfig configures the HTTP/WebSocket adapter (spec §4.7).
type APIConfig struct {
	// ListenAddr is the TCP address the HTTP server binds (e.g. ":8080").
	// Environment: TISSUESCHED_LISTEN_ADDR
	ListenAddr string `yaml:"listen_addr"`

	// Auth configures optional bearer-JWT authentication.
	Auth AuthConfig `yaml:"auth,omitempty"`

	// RateLimit configures per-user submission rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// AuthConfig configures JWT verification for incoming requests.
type AuthConfig struct {
	// Enabled turns on bearer-token verification. When false, the adapter
	// trusts the X-User-ID header directly (development/single-tenant use).
	Enabled bool `yaml:"enabled"`

	// PublicKeyPath is the path to a PEM-encoded public key used to verify
	// incoming JWTs (golang-jwt/jwt/v5).
	// Environment: TISSUESCHED_JWT_PUBLIC_KEY_PATH
	PublicKeyPath string `yaml:"public_key_path,omitempty"`
}

// RateLimitConfig configures the per-user token-bucket limiter applied to
// POST /workflows (golang.org/x/time/rate).
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained submission rate allowed per user.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	// Burst is the maximum burst size above the sustained rate.
	Burst int `yaml:"burst,omitempty"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled turns on span emission for job/workflow execution.
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span export transport ("stdout" or "otlp").
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector endpoint (ignored for "stdout").
	Endpoint string `yaml:"endpoint,omitempty"`

	// ServiceName is the resource attribute reported to the collector.
	ServiceName string `yaml:"service_name,omitempty"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			MaxWorkers:         4,
			MaxActiveUsers:     2,
			EventQueueCapacity: 64,
			MinProgressDelta:   1,
		},
		API: APIConfig{
			ListenAddr: ":8080",
			Auth: AuthConfig{
				Enabled: false,
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 1,
				Burst:             5,
			},
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "stdout",
			ServiceName: "tissuesched",
		},
	}
}

// Load loads configuration from a YAML file (if configPath is non-empty, or
// the default XDG location exists) and then applies environment variable
// overrides, following the teacher's layered-default pattern: defaults,
// then file, then environment, then validation.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if defaultPath, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				configPath = defaultPath
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &schederrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &schederrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields so a minimal config file (e.g. just
// max_workers) still produces a usable configuration.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Scheduler.MaxWorkers == 0 {
		c.Scheduler.MaxWorkers = defaults.Scheduler.MaxWorkers
	}
	if c.Scheduler.MaxActiveUsers == 0 {
		c.Scheduler.MaxActiveUsers = defaults.Scheduler.MaxActiveUsers
	}
	if c.Scheduler.EventQueueCapacity == 0 {
		c.Scheduler.EventQueueCapacity = defaults.Scheduler.EventQueueCapacity
	}
	if c.Scheduler.MinProgressDelta == 0 {
		c.Scheduler.MinProgressDelta = defaults.Scheduler.MinProgressDelta
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = defaults.API.ListenAddr
	}
	if c.API.RateLimit.RequestsPerSecond == 0 {
		c.API.RateLimit.RequestsPerSecond = defaults.API.RateLimit.RequestsPerSecond
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = defaults.API.RateLimit.Burst
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
}

// loadFromFile parses YAML at path into c, expanding a leading "~/".
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies environment variable overrides, taking precedence
// over file-based configuration.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("TISSUESCHED_MAX_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Scheduler.MaxWorkers = n
		}
	}
	if val := os.Getenv("TISSUESCHED_MAX_ACTIVE_USERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Scheduler.MaxActiveUsers = n
		}
	}
	if val := os.Getenv("TISSUESCHED_LISTEN_ADDR"); val != "" {
		c.API.ListenAddr = val
	}
	if val := os.Getenv("TISSUESCHED_JWT_PUBLIC_KEY_PATH"); val != "" {
		c.API.Auth.PublicKeyPath = val
		c.API.Auth.Enabled = true
	}
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Scheduler.MaxWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("scheduler.max_workers must be positive, got %d", c.Scheduler.MaxWorkers))
	}
	if c.Scheduler.MaxActiveUsers <= 0 {
		errs = append(errs, fmt.Sprintf("scheduler.max_active_users must be positive, got %d", c.Scheduler.MaxActiveUsers))
	}

	if c.API.Auth.Enabled && c.API.Auth.PublicKeyPath == "" {
		errs = append(errs, "api.auth.public_key_path is required when api.auth.enabled is true")
	}
	if c.API.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, "api.rate_limit.requests_per_second must be non-negative")
	}

	if c.Tracing.Enabled {
		validExporters := map[string]bool{"stdout": true, "otlp": true}
		if !validExporters[c.Tracing.Exporter] {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [stdout, otlp], got %q", c.Tracing.Exporter))
		}
		if c.Tracing.Exporter != "stdout" && c.Tracing.Endpoint == "" {
			errs = append(errs, "tracing.endpoint is required when tracing.exporter is not stdout")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
