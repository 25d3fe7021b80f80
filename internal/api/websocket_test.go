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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	schedconfig "github.com/tombarlow/tissuesched/internal/config"
	"github.com/tombarlow/tissuesched/pkg/sched"
)

func TestHandleWorkflowWSSendsSnapshotThenEvents(t *testing.T) {
	s := sched.NewScheduler(sched.Config{
		MaxWorkers:         4,
		MaxActiveUsers:     4,
		EventQueueCapacity: 16,
		MinProgressDelta:   1,
	}, testLogger())
	s.Runners.Register("seg", &instantRunner{resultHandle: "result-1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	handler, err := NewRouter(s, schedconfig.APIConfig{}, nil, testLogger(), nil)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	body, _ := json.Marshal(singleJobSubmission("seg"))
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/workflows", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var view sched.WorkflowView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/workflows/" + view.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snapshot sched.WorkflowView
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, view.ID, snapshot.ID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var progress sched.Event
	require.NoError(t, conn.ReadJSON(&progress))
}

func TestHandleWorkflowWSUnknownWorkflow(t *testing.T) {
	s := sched.NewScheduler(sched.Config{
		MaxWorkers:         4,
		MaxActiveUsers:     4,
		EventQueueCapacity: 16,
		MinProgressDelta:   1,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	handler, err := NewRouter(s, schedconfig.APIConfig{}, nil, testLogger(), nil)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/workflows/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
