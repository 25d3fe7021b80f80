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
	"context"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultQueryTimeout bounds a single jq evaluation, mirroring the teacher's
// internal/jq.Executor.DefaultTimeout.
const DefaultQueryTimeout = 1 * time.Second

// RunQuery evaluates a jq expression against an already-decoded JSON value
// (the `result` map from `GET job_result(id)`), for the `--query` flag on
// `tissuesched result`. Grounded on internal/jq.Executor.Execute, trimmed to
// single-use CLI-side querying (no reusable Executor struct needed here).
func RunQuery(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return data, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	iter := code.Run(data)
	var results []any
	for {
		select {
		case <-runCtx.Done():
			return nil, fmt.Errorf("query timeout after %s", DefaultQueryTimeout)
		default:
		}
		v, ok := iter.Next()
		if !ok {
			break
		}
		if e, isErr := v.(error); isErr {
			return nil, e
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
