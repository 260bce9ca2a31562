// Package server is the HTTP/WebSocket edge: it upgrades sockets, applies
// connection-level limits and hands admitted connections to their room
// coordinator.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emily-flambe/games-sub001/internal/config"
	"github.com/emily-flambe/games-sub001/internal/logger"
	"github.com/emily-flambe/games-sub001/internal/room"
)

// Server hosts the WebSocket endpoint and the small HTTP surface around it.
type Server struct {
	cfg      *config.Config
	registry *room.Registry

	upgrader       websocket.Upgrader
	upgradeLimiter *UpgradeLimiter
	originChecker  *OriginChecker

	httpServer *http.Server
}

// New creates a server over an existing room registry.
func New(cfg *config.Config, registry *room.Registry) *Server {
	s := &Server{
		cfg:            cfg,
		registry:       registry,
		upgradeLimiter: NewUpgradeLimiter(cfg.Limits.UpgradesPerSecond, time.Minute),
		originChecker:  NewOriginChecker(cfg.Server.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}
	return s
}

// Routes builds the HTTP mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /rooms", s.handleListRooms)
	mux.HandleFunc("GET /rooms/{code}", s.handleGetRoomState)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logger.LogInfo("server listening on ws://%s/ws", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and flushes every room.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(ctx)
	}
	s.registry.Close()
	logger.LogInfo("server stopped")
}

// handleWebSocket upgrades a socket and attaches it to its room. The room
// itself enforces the per-room connection cap after admission.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := GetClientIP(r)

	if !s.upgradeLimiter.Allow(clientIP) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	code := r.URL.Query().Get("room")
	rm := s.registry.Get(code)
	if rm == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.LogError("websocket upgrade failed for %s: %v", clientIP, err)
		return
	}

	conn := NewConn(ws, rm, NewMessageLimiter(s.cfg.Limits.MessagesPerSecond), clientIP, s.cfg.Limits.MaxMessageBytes)
	rm.Attach(conn)

	go conn.ReadPump()
	go conn.WritePump()
}

type createRoomRequest struct {
	GameType string `json:"game_type"`
}

type createRoomResponse struct {
	RoomCode string `json:"room_code"`
	GameType string `json:"game_type"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rm, err := s.registry.Create(req.GameType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomCode: rm.Code(),
		GameType: rm.GameType(),
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetRoomState(w http.ResponseWriter, r *http.Request) {
	rm := s.registry.Get(r.PathValue("code"))
	if rm == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rm.View())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogError("write response: %v", err)
	}
}
