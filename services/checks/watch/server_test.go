// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *History, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	history := NewHistory(10)
	hub := NewHub(nil)
	return NewServer(history, hub, nil), history, hub
}

func TestHealthz(t *testing.T) {
	srv, history, _ := newTestServer(t)
	history.Add(Run{ID: "r1", Passed: true})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if body["runs"].(float64) != 1 {
		t.Errorf("runs = %v", body["runs"])
	}
}

func TestRunsEndpoint(t *testing.T) {
	srv, history, _ := newTestServer(t)
	history.Add(Run{ID: "old", Passed: true})
	history.Add(Run{ID: "new", Passed: false, Failures: []string{"lint"}})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/runs?limit=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Runs []Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ID != "new" {
		t.Errorf("runs = %+v", body.Runs)
	}
}

func TestRunsEndpointBadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/runs?limit=zero", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRunsEndpointEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// Empty history serializes as an empty array, not null.
	if !strings.Contains(rec.Body.String(), `"runs":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLatestRun(t *testing.T) {
	srv, history, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/runs/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty history status = %d", rec.Code)
	}

	history.Add(Run{ID: "r1"})
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/runs/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var run Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.ID != "r1" {
		t.Errorf("run = %+v", run)
	}
}

func TestWebsocketBroadcast(t *testing.T) {
	srv, _, hub := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration is synchronous with the upgrade; give the handler a
	// moment to record the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d", hub.ClientCount())
	}

	hub.Broadcast(Run{ID: "live", Passed: true})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var run Run
	if err := conn.ReadJSON(&run); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if run.ID != "live" || !run.Passed {
		t.Errorf("run = %+v", run)
	}
}
