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

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// handleWorkflowWS implements `WS subscribe(workflow_id)` (spec §4.7): on
// connect, sends the current workflow snapshot, then bridges the Event Bus
// topic `workflow.<id>` as live JSON frames. If the client falls behind, the
// Event Bus's own bounded per-subscription queue drops the oldest events
// and delivers an overflow marker (spec §4.1); if the underlying TCP write
// itself stalls past wsWriteTimeout, this bridge drops the subscription and
// logs, per spec §4.7's WebSocket backpressure clause.
func (r *Router) handleWorkflowWS(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	wf, ok := r.scheduler.Workflows.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown workflow")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", "workflow_id", id, "error", err)
		return
	}
	defer conn.Close()

	sub := r.scheduler.Bus.Subscribe(sched.WorkflowTopic(id))
	defer sub.Close()

	if err := r.writeWS(conn, wf.View()); err != nil {
		r.log.Info("dropping websocket subscription: initial snapshot write failed", "workflow_id", id, "error", err)
		return
	}

	for event := range sub.Events() {
		if err := r.writeWS(conn, event); err != nil {
			r.log.Info("dropping websocket subscription: client fell behind", "workflow_id", id, "error", err)
			return
		}
	}
}

func (r *Router) writeWS(conn *websocket.Conn, payload any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}
