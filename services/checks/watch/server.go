// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/harborworks/breakwater/services/checks/telemetry"
)

// =============================================================================
// WEBSOCKET HUB
// =============================================================================

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Localhost status server; origin checks add nothing here.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub broadcasts run results to connected websocket clients.
//
// Thread Safety: Safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

// Broadcast sends a run to every connected client. Clients that fail to
// receive are dropped.
func (h *Hub) Broadcast(run Run) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(run); err != nil {
			h.logger.Debug("dropping websocket client", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// =============================================================================
// STATUS SERVER
// =============================================================================

// Server exposes watch-session state over HTTP.
//
// Endpoints:
//
//	GET /healthz - liveness probe
//	GET /api/v1/runs - recorded runs, newest first (?limit=N)
//	GET /api/v1/runs/latest - most recent run
//	GET /ws - websocket stream of completed runs
//	GET /metrics - Prometheus metrics, when the exporter is enabled
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	history *History
	hub     *Hub
	logger  *slog.Logger
	http    *http.Server
}

// NewServer builds the status server for one watch session.
func NewServer(history *History, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{history: history, hub: hub, logger: logger}
}

// Router builds the gin engine. Exposed for tests.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("breakwater-watch"))

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api/v1")
	{
		api.GET("/runs", s.handleRuns)
		api.GET("/runs/latest", s.handleLatestRun)
	}

	router.GET("/ws", s.handleWebsocket)

	if handler := telemetry.MetricsHandler(); handler != nil {
		router.GET("/metrics", gin.WrapH(handler))
	}

	return router
}

// Serve listens on addr until the context is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"runs":    s.history.Len(),
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs := s.history.Last(limit)
	if runs == nil {
		runs = []Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleLatestRun(c *gin.Context) {
	runs := s.history.Last(1)
	if len(runs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs recorded"})
		return
	}
	c.JSON(http.StatusOK, runs[0])
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.add(conn)
	s.logger.Debug("websocket client connected")

	// Reader loop exists only to observe close; the hub writes.
	go func() {
		defer func() {
			s.hub.remove(conn)
			_ = conn.Close()
			s.logger.Debug("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
