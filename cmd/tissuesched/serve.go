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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombarlow/tissuesched/internal/api"
	"github.com/tombarlow/tissuesched/internal/config"
	"github.com/tombarlow/tissuesched/internal/log"
	"github.com/tombarlow/tissuesched/internal/metrics"
	"github.com/tombarlow/tissuesched/internal/runner"
	"github.com/tombarlow/tissuesched/internal/tracing"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tissuesched daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: XDG config location)")
	return cmd
}

// runServe wires the scheduling core, observability, runner registry, and
// HTTP/WebSocket adapter together and blocks until a shutdown signal,
// following cmd/conductord/main.go's config-load -> construct -> start ->
// signal-wait -> graceful-shutdown shape.
func runServe(configPath string) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return err
	}
	defer func() {
		if provider != nil {
			_ = provider.Shutdown(context.Background())
		}
	}()

	var collector *metrics.Collector
	if provider != nil {
		collector, err = metrics.NewCollector(provider.Meter("tissuesched/scheduler"))
		if err != nil {
			logger.Error("failed to initialize metrics", "error", err)
			return err
		}
	}

	scheduler := sched.NewScheduler(sched.Config{
		MaxWorkers:         cfg.Scheduler.MaxWorkers,
		MaxActiveUsers:     cfg.Scheduler.MaxActiveUsers,
		EventQueueCapacity: cfg.Scheduler.EventQueueCapacity,
		MinProgressDelta:   cfg.Scheduler.MinProgressDelta,
	}, logger)
	scheduler.SetObservability(provider, collector)

	for jobType, spec := range cfg.Runners {
		r, err := runner.NewExecRunner(runner.ExecConfig{
			Command: spec.Command,
			Timeout: time.Duration(spec.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Error("failed to configure runner", "job_type", jobType, "error", err)
			return err
		}
		scheduler.Runners.Register(jobType, r)
	}

	var metricsHandler http.Handler
	if provider != nil {
		metricsHandler = provider.MetricsHandler()
	}

	validator := sched.NewPathValidator(cfg.Scheduler.AllowedInputPathPatterns)
	handler, err := api.NewRouter(scheduler, cfg.API, validator.Validate, logger, metricsHandler)
	if err != nil {
		logger.Error("failed to build API router", "error", err)
		return err
	}

	server := &http.Server{Addr: cfg.API.ListenAddr, Handler: handler}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tissuesched daemon listening", "addr", cfg.API.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("received signal %v, shutting down...\n", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		logger.Error("server error", "error", err)
		return err
	}
}
