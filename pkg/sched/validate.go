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
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathValidator checks a submitted input_image_path against a configured
// allow-list of glob patterns before a workflow is admitted. It only
// validates that the reference is syntactically permitted; whether the path
// exists is not checked here or by the API adapter.
type PathValidator struct {
	allow []string
}

// NewPathValidator builds a validator from a list of doublestar glob
// patterns (e.g. "/data/uploads/**/*.svs"). An empty list permits any
// non-empty path — useful for tests and single-tenant deployments.
func NewPathValidator(allowPatterns []string) *PathValidator {
	return &PathValidator{allow: allowPatterns}
}

// Validate returns an error if path is empty or does not match any allowed
// pattern.
func (v *PathValidator) Validate(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("input_image_path must not be empty")
	}
	if len(v.allow) == 0 {
		return nil
	}

	normalized := normalizePath(path)
	for _, pattern := range v.allow {
		matched, err := doublestar.Match(normalizePath(pattern), normalized)
		if err != nil {
			continue // invalid pattern in config, skip rather than reject every submission
		}
		if matched {
			return nil
		}
	}
	return fmt.Errorf("input_image_path %q is not within an allowed path pattern", path)
}

// normalizePath converts backslashes to forward slashes and trims a leading
// "./", so paths and patterns are compared in the same glob form.
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimPrefix(path, "./")
}
