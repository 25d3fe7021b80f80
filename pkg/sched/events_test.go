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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToSubscriber(t *testing.T) {
	bus := NewEventBus(4)
	sub := bus.Subscribe("job.1")
	defer sub.Close()

	bus.Publish("job.1", Event{Type: EventJobProgress, Data: "payload"})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "job.1", ev.Topic)
		assert.Equal(t, "payload", ev.Data)
		assert.False(t, ev.Overflow)
	default:
		t.Fatal("expected an event to be delivered")
	}
}

func TestEventBusTopicsAreIsolated(t *testing.T) {
	bus := NewEventBus(4)
	subA := bus.Subscribe("job.a")
	subB := bus.Subscribe("job.b")
	defer subA.Close()
	defer subB.Close()

	bus.Publish("job.a", Event{Type: EventJobProgress})

	select {
	case <-subA.Events():
	default:
		t.Fatal("subA should have received its topic's event")
	}
	assert.Len(t, subB.Events(), 0, "subB subscribed to a different topic")
}

func TestEventBusOverflowDropsOldestAndMarks(t *testing.T) {
	bus := NewEventBus(2)
	sub := bus.Subscribe("job.1")
	defer sub.Close()

	bus.Publish("job.1", Event{Data: "first"})
	bus.Publish("job.1", Event{Data: "second"})
	bus.Publish("job.1", Event{Data: "third"}) // overflow: evicts "first" and "second"

	ev1 := <-sub.Events()
	assert.True(t, ev1.Overflow, "first delivered event after overflow must be the marker")

	ev2 := <-sub.Events()
	assert.Equal(t, "third", ev2.Data, "the newest event must follow the marker, oldest evicted")
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe("system")

	sub.Close()
	require.NotPanics(t, func() { sub.Close() })
	assert.Equal(t, 0, bus.SubscriberCount("system"))
}

func TestEventBusPublishAfterUnsubscribeIsNoop(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe("job.1")
	sub.Close()

	assert.NotPanics(t, func() {
		bus.Publish("job.1", Event{Data: "irrelevant"})
	})
}

func TestJobAndWorkflowTopicFormatting(t *testing.T) {
	assert.Equal(t, "job.abc", JobTopic("abc"))
	assert.Equal(t, "workflow.xyz", WorkflowTopic("xyz"))
}
