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

func newResultCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Fetch a job's result handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			resp, err := c.Get(ctx, "/jobs/"+args[0]+"/result")
			if err != nil {
				return fmt.Errorf("failed to fetch result: %w", err)
			}

			out, err := cli.RunQuery(ctx, query, resp)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "jq expression applied to the result before printing")
	return cmd
}
