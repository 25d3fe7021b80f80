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
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Status styles, grounded on the teacher's internal/commands/shared/styles.go
// palette (green/orange/red/blue/gray), reused here for workflow and job
// status instead of provider health checks.
var (
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// RenderWorkflowStatus colors a workflow/job status string (spec §3.1, §3.3).
func RenderWorkflowStatus(status string) string {
	switch status {
	case "SUCCEEDED":
		return statusOK.Render(status)
	case "FAILED", "CANCELLED":
		return statusError.Render(status)
	case "RUNNING", "ACTIVE":
		return statusInfo.Render(status)
	case "QUEUED", "PENDING":
		return statusWarn.Render(status)
	default:
		return muted.Render(status)
	}
}

// WorkflowRow is one line of the `tissuesched list` table.
type WorkflowRow struct {
	ID       string
	Name     string
	Status   string
	Progress string
}

// RenderWorkflowTable renders rows as a fixed-width table, following the
// teacher's internal/commands/management/history.go printf-table style.
func RenderWorkflowTable(rows []WorkflowRow) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-36s %-20s %-12s %s", "ID", "NAME", "STATUS", "PROGRESS")))
	b.WriteString("\n")
	b.WriteString(muted.Render(strings.Repeat("-", 80)))
	b.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-36s %-20s %-21s %s\n", r.ID, truncate(r.Name, 20), RenderWorkflowStatus(r.Status), r.Progress)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
