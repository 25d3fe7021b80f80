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
	"sync"
	"time"
)

// EventType distinguishes the WebSocket-facing event shapes (spec §6).
type EventType string

const (
	EventWorkflowProgress EventType = "workflow_progress"
	EventJobProgress      EventType = "progress"
	EventSystemSnapshot   EventType = "system_snapshot"
)

// Well-known topics. job.<id> and workflow.<id> are formatted with JobTopic
// and WorkflowTopic; "system" is used as-is.
const SystemTopic = "system"

// JobTopic returns the per-job topic name.
func JobTopic(jobID string) string { return fmt.Sprintf("job.%s", jobID) }

// WorkflowTopic returns the per-workflow topic name.
func WorkflowTopic(workflowID string) string { return fmt.Sprintf("workflow.%s", workflowID) }

// Event is a single published record. Data carries the type-specific payload
// (a JobView, WorkflowView, or TenantSnapshot depending on Type); Overflow is
// set on the synthetic marker event a subscription receives after the bus
// has had to drop events for it.
type Event struct {
	Type      EventType
	Topic     string
	Timestamp time.Time
	Data      any
	Overflow  bool
}

// Subscription is a bounded, FIFO, single-topic live feed of events.
type Subscription struct {
	id    uint64
	topic string
	ch    chan Event
	bus   *EventBus

	closeOnce sync.Once
}

// Events returns the channel of delivered events. It is closed when the
// subscription is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close releases the subscription. Publishes after Close are no-ops for it.
// Idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
		close(s.ch)
	})
}

// EventBus is a process-wide, topic-based pub/sub. Publish never blocks: a
// subscription whose queue is full has its oldest event dropped and receives
// an overflow marker instead, following the teacher's log-aggregator
// subscriber-channel pattern (bounded channel, select-default-drop).
type EventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]map[uint64]*Subscription // topic -> id -> sub
	nextID        uint64
	queueCapacity int
}

// NewEventBus constructs an EventBus whose subscriptions each buffer up to
// queueCapacity events before dropping the oldest.
func NewEventBus(queueCapacity int) *EventBus {
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	return &EventBus{
		subscriptions: make(map[string]map[uint64]*Subscription),
		queueCapacity: queueCapacity,
	}
}

// Subscribe returns a live feed of events published to topic from this point
// on.
func (b *EventBus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		topic: topic,
		ch:    make(chan Event, b.queueCapacity),
		bus:   b,
	}

	if b.subscriptions[topic] == nil {
		b.subscriptions[topic] = make(map[uint64]*Subscription)
	}
	b.subscriptions[topic][sub.id] = sub
	return sub
}

func (b *EventBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs := b.subscriptions[sub.topic]; subs != nil {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.subscriptions, sub.topic)
		}
	}
}

// Publish delivers event to every live subscription on topic. Non-blocking:
// a subscriber that can't keep up has its oldest buffered events evicted to
// make room, and the delivered event is preceded by an overflow marker.
func (b *EventBus) Publish(topic string, event Event) {
	event.Topic = topic
	event.Timestamp = time.Now()

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subscriptions[topic]))
	for _, s := range b.subscriptions[topic] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(s.ch, event)
	}
}

// deliver sends event to ch without blocking, evicting the oldest buffered
// event (and flagging an overflow marker) if the channel is full.
func deliver(ch chan Event, event Event) {
	select {
	case ch <- event:
		return
	default:
	}

	// Full: drop the oldest events until there is room for an overflow
	// marker followed by the event itself, then deliver both. A queue of
	// capacity 1 has room for the marker only.
	room := 2
	if cap(ch) < room {
		room = cap(ch)
	}
	for len(ch) > cap(ch)-room {
		select {
		case <-ch:
		default:
		}
	}
	select {
	case ch <- Event{Overflow: true, Timestamp: time.Now()}:
	default:
	}
	select {
	case ch <- event:
	default:
	}
}

// SubscriberCount returns the number of live subscriptions on topic, for
// tests and diagnostics.
func (b *EventBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions[topic])
}
