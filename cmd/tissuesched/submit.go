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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombarlow/tissuesched/internal/cli"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

func newSubmitCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a workflow",
		Long: `Submit a workflow for scheduling. With --file, reads a DAGSubmission JSON
document; without it, prompts interactively for branches and jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a DAGSubmission JSON file (omit for interactive prompts)")
	return cmd
}

func runSubmit(cmd *cobra.Command, file string) error {
	c, err := clientFromFlags(cmd)
	if err != nil {
		return err
	}

	var sub sched.DAGSubmission
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if err := json.Unmarshal(data, &sub); err != nil {
			return fmt.Errorf("failed to parse %s: %w", file, err)
		}
	} else {
		_, built, err := cli.PromptSubmission()
		if err != nil {
			return err
		}
		sub = built
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.Post(ctx, "/workflows", sub)
	if err != nil {
		return fmt.Errorf("failed to submit workflow: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}
