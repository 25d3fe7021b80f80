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
)

func newStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler and tenant admission status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			resp, err := c.Get(ctx, "/status")
			if err != nil {
				return fmt.Errorf("failed to fetch status: %w", err)
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(resp)
			}

			status, _ := resp.(map[string]any)
			sched, _ := status["scheduler"].(map[string]any)
			tenant, _ := status["tenant_manager"].(map[string]any)
			fmt.Printf("running_jobs:  %v / %v\n", sched["running_jobs"], sched["max_workers"])
			fmt.Printf("active_users:  %v / %v\n", tenant["active_users"], tenant["max_active_users"])
			fmt.Printf("queued_users:  %v\n", tenant["queued_users"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output raw JSON")
	return cmd
}

func newListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			resp, err := c.Get(ctx, "/workflows")
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(resp)
			}
			fmt.Print(renderWorkflowListing(resp))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output raw JSON")
	return cmd
}

func renderWorkflowListing(resp any) string {
	items, ok := resp.([]any)
	if !ok {
		return ""
	}
	rows := make([]cli.WorkflowRow, 0, len(items))
	for _, item := range items {
		wf, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, cli.WorkflowRow{
			ID:       fmt.Sprintf("%v", wf["id"]),
			Name:     fmt.Sprintf("%v", wf["name"]),
			Status:   fmt.Sprintf("%v", wf["status"]),
			Progress: fmt.Sprintf("%.0f%%", toFloat(wf["progress_percent"])),
		})
	}
	return cli.RenderWorkflowTable(rows)
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
