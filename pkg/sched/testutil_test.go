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

import (
	"io"
	"log/slog"
)

// testLogger returns a slog.Logger that discards output, matching the
// teacher's preference for real loggers over nil checks in tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// singleJobSubmission builds the simplest possible DAG submission: one
// branch, one job.
func singleJobSubmission(jobType string) DAGSubmission {
	return DAGSubmission{
		Name: "single-job",
		DAG: DAGBranches{
			Branches: map[string][]DAGJob{
				"a": {{Type: jobType, InputImagePath: "/data/a.svs"}},
			},
		},
	}
}

// linearBranchSubmission builds one branch with n sequential jobs.
func linearBranchSubmission(jobType string, n int) DAGSubmission {
	jobs := make([]DAGJob, n)
	for i := range jobs {
		jobs[i] = DAGJob{Type: jobType, InputImagePath: "/data/a.svs"}
	}
	return DAGSubmission{
		Name: "linear",
		DAG:  DAGBranches{Branches: map[string][]DAGJob{"a": jobs}},
	}
}
