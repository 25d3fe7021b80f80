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

	"github.com/google/uuid"
)

// NewWorkflowID mints an opaque workflow identifier.
func NewWorkflowID() string {
	return "wf_" + uuid.NewString()
}

// newJobID derives a stable, human-debuggable job identifier from its
// position in the DAG. Job ids never leave the process boundary as anything
// but an opaque string (spec §3), so embedding the coordinates costs nothing
// and makes server logs readable.
func newJobID(workflowID, branchID string, position int) string {
	return fmt.Sprintf("%s_%s_%d", workflowID, branchID, position)
}
