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

// Package runner provides a Job Runner Interface implementation that shells
// out to an external command per job type, so a deployed daemon has a
// concrete way to wire in real image-processing pipelines without the core
// ever knowing what they do internally (spec §1, §4.2).
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	scherrors "github.com/tombarlow/tissuesched/pkg/errors"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

// ExecConfig configures one job type's external command.
type ExecConfig struct {
	// Command is run as Command[0] with Command[1:] as arguments.
	Command []string

	// Timeout bounds a single job invocation; zero means no timeout beyond
	// the caller's context.
	Timeout time.Duration
}

// ExecRunner implements sched.JobRunner by invoking an external process per
// job, passing the job view as JSON on stdin and reading a JSON outcome
// envelope from stdout, following the teacher's internal/action/shell
// subprocess-execution pattern (os/exec, captured stdout/stderr, exit-code
// mapping) generalized to a fixed input/output contract instead of shell's
// free-form command/args inputs.
type ExecRunner struct {
	cfg ExecConfig
}

// NewExecRunner builds a runner that shells out to cfg.Command for every job
// handed to it.
func NewExecRunner(cfg ExecConfig) (*ExecRunner, error) {
	if len(cfg.Command) == 0 {
		return nil, &scherrors.ConfigError{Key: "runner.command", Reason: "must not be empty"}
	}
	return &ExecRunner{cfg: cfg}, nil
}

// execOutcome is the JSON envelope an external runner process writes to
// stdout on exit 0. A non-zero exit or malformed envelope is treated as
// OutcomeFailed with kind RUNNER_CRASH.
type execOutcome struct {
	ResultHandle string `json:"result_handle"`
}

func (r *ExecRunner) Run(ctx context.Context, job sched.RunnerJobView, sink sched.ProgressSink, cancel sched.CancelToken) sched.Outcome {
	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancelTimeout()
	}

	input, err := json.Marshal(job)
	if err != nil {
		return sched.Outcome{Kind: sched.OutcomeFailed, ErrorKind: string(scherrors.KindRunnerCrash), ErrorMessage: err.Error()}
	}

	cmd := exec.CommandContext(runCtx, r.cfg.Command[0], r.cfg.Command[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if runCtx.Err() == context.Canceled || cancel.Requested() {
		return sched.Outcome{Kind: sched.OutcomeCancelled}
	}
	if err != nil {
		return sched.Outcome{
			Kind:         sched.OutcomeFailed,
			ErrorKind:    string(scherrors.KindRunnerCrash),
			ErrorMessage: fmt.Sprintf("%s: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	var out execOutcome
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		return sched.Outcome{
			Kind:         sched.OutcomeFailed,
			ErrorKind:    string(scherrors.KindRunnerCrash),
			ErrorMessage: fmt.Sprintf("malformed runner output: %s", err),
		}
	}

	sink.Update(100, 0, 0)
	return sched.Outcome{Kind: sched.OutcomeSucceeded, ResultHandle: out.ResultHandle}
}
