// Package web is the HTTP control surface: a thin I/O layer over the
// registry, the activity log, the sync engine and the artifact file.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	appLog "github.com/Omihmed/CalDAV2iCal/internal/log"
	"github.com/Omihmed/CalDAV2iCal/internal/metrics"
	"github.com/Omihmed/CalDAV2iCal/internal/store"
)

// defaultLogLimit matches the number of entries shown on the status view.
const defaultLogLimit = 20

// Dispatcher accepts manual sync jobs without waiting for completion.
type Dispatcher interface {
	Dispatch(serverID string) bool
}

// Server exposes the control surface endpoints.
type Server struct {
	store        *store.Store
	dispatcher   Dispatcher
	artifactPath string
	mux          *http.ServeMux
}

// NewServer constructs the control surface over the shared store.
func NewServer(st *store.Store, d Dispatcher, artifactPath string) *Server {
	s := &Server{
		store:        st,
		dispatcher:   d,
		artifactPath: artifactPath,
		mux:          http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/servers", s.handleListServers)
	s.mux.HandleFunc("POST /api/servers", s.handleCreateServer)
	s.mux.HandleFunc("GET /api/servers/{id}", s.handleGetServer)
	s.mux.HandleFunc("PUT /api/servers/{id}", s.handleUpdateServer)
	s.mux.HandleFunc("POST /api/servers/{id}/sync", s.handleSyncNow)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
	s.mux.HandleFunc("GET /download/calendar.ics", s.handleDownload)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.store.Servers()})
}

// serverRequest is the JSON body for creating or updating a server.
// Absent fields leave the current value untouched on update.
type serverRequest struct {
	Endpoint        *string `json:"endpoint"`
	Username        *string `json:"username"`
	Password        *string `json:"password"`
	CalendarPath    *string `json:"calendar_path"`
	IntervalMinutes *int    `json:"interval_minutes"`
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Endpoint == nil || *req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if req.IntervalMinutes == nil || *req.IntervalMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "interval must be a positive number of minutes")
		return
	}

	srv := store.Server{
		Endpoint:        *req.Endpoint,
		IntervalMinutes: *req.IntervalMinutes,
	}
	if req.Username != nil {
		srv.Username = *req.Username
	}
	if req.Password != nil {
		srv.Password = *req.Password
	}
	if req.CalendarPath != nil {
		srv.CalendarPath = *req.CalendarPath
	}

	id := s.store.AddServer(srv)
	created, _ := s.store.Server(id)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.store.Server(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	err := s.store.UpdateServer(id, store.ServerUpdate{
		Endpoint:        req.Endpoint,
		Username:        req.Username,
		Password:        req.Password,
		CalendarPath:    req.CalendarPath,
		IntervalMinutes: req.IntervalMinutes,
	})
	if err != nil {
		if errors.Is(err, store.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	srv, _ := s.store.Server(id)
	writeJSON(w, http.StatusOK, srv)
}

// handleSyncNow dispatches a sync job exactly as the scheduler would,
// without waiting for it to complete.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Server(id); !ok {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if !s.dispatcher.Dispatch(id) {
		writeError(w, http.StatusServiceUnavailable, "sync queue is full, try again later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), defaultLogLimit)
	if limit <= 0 {
		limit = defaultLogLimit
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.store.RecentLogs(limit)})
}

// handleDownload serves the current combined calendar artifact. Because
// the sync engine replaces the file atomically, a download never observes
// a partial document.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.artifactPath); err != nil {
		writeError(w, http.StatusNotFound, "no combined calendar has been produced yet")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	http.ServeFile(w, r, s.artifactPath)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
