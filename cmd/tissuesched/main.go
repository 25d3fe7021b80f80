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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, injected via ldflags at build time, following
// cmd/conductor/main.go and cmd/conductord/main.go's convention.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tissuesched",
		Short: "tissuesched - multi-tenant scheduler for large-image inference workflows",
		Long: `tissuesched schedules branches of image-processing jobs across tenants,
enforcing a global worker cap and per-tenant active-user limits.

Run 'tissuesched serve' to start the daemon.
Run 'tissuesched submit' to submit a workflow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	cmd.PersistentFlags().String("server", "http://localhost:8080", "tissuesched daemon address")
	cmd.PersistentFlags().String("token", "", "bearer JWT for authenticated requests")
	cmd.PersistentFlags().String("user", "", "X-User-ID to send when --token is not set")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSubmitCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newResultCommand())
	return cmd
}
