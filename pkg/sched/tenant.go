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
	"log/slog"
	"sync"
	"time"
)

// TenantSnapshot is the `tenant_manager` portion of the `/status` surface
// (spec §4.5, §6).
type TenantSnapshot struct {
	ActiveUsers    int
	QueuedUsers    int
	MaxActiveUsers int
}

// TenantManager tracks per-user admission state and enforces
// max_active_users with strict FIFO admission (spec §4.5). All mutation
// goes through register/onJobTerminal, serialized under mu exactly like the
// scheduler's other shared state (spec §5).
type TenantManager struct {
	mu             sync.Mutex
	tenants        map[string]*Tenant
	queue          []string // FIFO of QUEUED user ids
	maxActiveUsers int
	activeCount    int

	bus *EventBus
	log *slog.Logger

	// onAdmitted is invoked (outside the lock) whenever a user transitions
	// to ACTIVE, so the scheduler can re-survey ready work.
	onAdmitted func(userID string)
}

// NewTenantManager constructs a manager enforcing maxActiveUsers concurrent
// active tenants.
func NewTenantManager(maxActiveUsers int, bus *EventBus, log *slog.Logger) *TenantManager {
	return &TenantManager{
		tenants:        make(map[string]*Tenant),
		maxActiveUsers: maxActiveUsers,
		bus:            bus,
		log:            log,
	}
}

// SetOnAdmitted installs the scheduler's "a tenant just became ACTIVE" hook.
func (m *TenantManager) SetOnAdmitted(fn func(userID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAdmitted = fn
}

// Register records that userID now owns workflowID. If the tenant is IDLE
// and a slot is free it is admitted ACTIVE immediately; otherwise it is
// enqueued QUEUED (or, if already ACTIVE/QUEUED, just has its workflow set
// and non-terminal count updated — idempotent by (user_id, workflow_id) per
// spec §4.5, since workflow creation is itself idempotent-once).
func (m *TenantManager) Register(userID, workflowID string, jobCount int) {
	m.mu.Lock()

	t, exists := m.tenants[userID]
	if !exists {
		t = &Tenant{UserID: userID, WorkflowIDs: make(map[string]struct{}), State: TenantIdle}
		m.tenants[userID] = t
	}
	if _, seen := t.WorkflowIDs[workflowID]; !seen {
		t.WorkflowIDs[workflowID] = struct{}{}
		t.NonTerminalJobs += jobCount
	}

	var admittedID string
	switch t.State {
	case TenantIdle:
		if m.activeCount < m.maxActiveUsers {
			t.State = TenantActive
			m.activeCount++
			admittedID = userID
		} else {
			t.State = TenantQueued
			t.AdmittedAt = time.Now()
			m.queue = append(m.queue, userID)
		}
	case TenantActive, TenantQueued:
		// already holds or awaits a slot; nothing to do.
	}

	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.publishSystemSnapshot(snapshot)
	if admittedID != "" {
		m.notifyAdmitted(admittedID)
	}
}

// OnJobTerminal decrements userID's non-terminal job count; if it reaches
// zero the tenant releases its slot (if ACTIVE) and the next QUEUED user,
// if any, is admitted in FIFO order (spec §4.5).
func (m *TenantManager) OnJobTerminal(userID string) {
	m.mu.Lock()

	t, ok := m.tenants[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if t.NonTerminalJobs > 0 {
		t.NonTerminalJobs--
	}

	var admittedID string
	if t.NonTerminalJobs == 0 {
		if t.State == TenantActive {
			m.activeCount--
		}
		t.State = TenantIdle

		for len(m.queue) > 0 {
			next := m.queue[0]
			m.queue = m.queue[1:]
			nt, ok := m.tenants[next]
			if !ok || nt.State != TenantQueued {
				continue // stale entry, e.g. already released elsewhere
			}
			nt.State = TenantActive
			m.activeCount++
			admittedID = next
			break
		}
	}

	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.publishSystemSnapshot(snapshot)
	if admittedID != "" {
		m.notifyAdmitted(admittedID)
	}
}

// IsActive reports whether userID currently holds an active slot.
func (m *TenantManager) IsActive(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[userID]
	return ok && t.State == TenantActive
}

// ActiveUserIDs returns every currently ACTIVE user id, for the scheduler's
// ready-work survey.
func (m *TenantManager) ActiveUserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, m.activeCount)
	for id, t := range m.tenants {
		if t.State == TenantActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// AdmittedAt returns the FIFO admission timestamp used for deterministic
// ready-job ordering (spec §4.6 step 3). Zero value for a tenant that was
// admitted immediately (never queued) sorts before any queued tenant since
// it's the tenant's very first registration.
func (m *TenantManager) AdmittedAt(userID string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[userID]; ok {
		return t.AdmittedAt
	}
	return time.Time{}
}

// Snapshot returns the current active/queued counts (spec §4.5, §6).
func (m *TenantManager) Snapshot() TenantSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *TenantManager) snapshotLocked() TenantSnapshot {
	return TenantSnapshot{
		ActiveUsers:    m.activeCount,
		QueuedUsers:    len(m.queue),
		MaxActiveUsers: m.maxActiveUsers,
	}
}

func (m *TenantManager) publishSystemSnapshot(snap TenantSnapshot) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(SystemTopic, Event{Type: EventSystemSnapshot, Data: snap})
}

func (m *TenantManager) notifyAdmitted(userID string) {
	m.mu.Lock()
	fn := m.onAdmitted
	m.mu.Unlock()
	if fn != nil {
		fn(userID)
	}
}
