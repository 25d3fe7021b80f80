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
	"github.com/spf13/cobra"
	"github.com/tombarlow/tissuesched/internal/cli"
)

func clientFromFlags(cmd *cobra.Command) (*cli.Client, error) {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, err
	}
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return nil, err
	}
	user, err := cmd.Flags().GetString("user")
	if err != nil {
		return nil, err
	}

	var opts []cli.Option
	if token != "" {
		opts = append(opts, cli.WithToken(token))
	}
	if user != "" {
		opts = append(opts, cli.WithUserID(user))
	}
	return cli.New(server, opts...), nil
}
