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

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

// PromptSubmission interactively builds a DAGSubmission, grounded on the
// teacher's internal/cli/prompt.SurveyPrompter (survey.Input/Select/Confirm
// with retry-on-invalid-answer validators), generalized here to a fixed
// branches-of-jobs shape instead of free-form workflow parameters.
func PromptSubmission() (name string, sub sched.DAGSubmission, err error) {
	if err := survey.AskOne(&survey.Input{Message: "Workflow name:"}, &name, survey.WithValidator(survey.Required)); err != nil {
		return "", sched.DAGSubmission{}, err
	}

	branches := make(map[string][]sched.DAGJob)
	for {
		var branchID string
		if err := survey.AskOne(&survey.Input{Message: fmt.Sprintf("Branch name (branch #%d, blank to finish):", len(branches)+1)}, &branchID); err != nil {
			return "", sched.DAGSubmission{}, err
		}
		if branchID == "" {
			break
		}
		if _, exists := branches[branchID]; exists {
			fmt.Printf("branch %q already defined, skipping\n", branchID)
			continue
		}

		jobs, err := promptBranchJobs(branchID)
		if err != nil {
			return "", sched.DAGSubmission{}, err
		}
		branches[branchID] = jobs
	}

	if len(branches) == 0 {
		return "", sched.DAGSubmission{}, fmt.Errorf("a workflow needs at least one branch")
	}

	return name, sched.DAGSubmission{Name: name, DAG: sched.DAGBranches{Branches: branches}}, nil
}

func promptBranchJobs(branchID string) ([]sched.DAGJob, error) {
	var jobs []sched.DAGJob
	for {
		var jobType string
		if err := survey.AskOne(&survey.Input{Message: fmt.Sprintf("  [%s] job type (blank to end branch):", branchID)}, &jobType); err != nil {
			return nil, err
		}
		if jobType == "" {
			break
		}

		var inputPath string
		if err := survey.AskOne(&survey.Input{Message: "  input_image_path:"}, &inputPath, survey.WithValidator(survey.Required)); err != nil {
			return nil, err
		}

		var paramsLine string
		if err := survey.AskOne(&survey.Input{Message: "  params (key=value, comma-separated; blank for none):"}, &paramsLine); err != nil {
			return nil, err
		}

		jobs = append(jobs, sched.DAGJob{
			Type:           jobType,
			InputImagePath: inputPath,
			Params:         parseParams(paramsLine),
		})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("branch %q needs at least one job", branchID)
	}
	return jobs, nil
}

func parseParams(line string) map[string]any {
	if line == "" {
		return nil
	}
	params := make(map[string]any)
	for _, pair := range strings.Split(line, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			params[k] = n
			continue
		}
		params[k] = v
	}
	return params
}
