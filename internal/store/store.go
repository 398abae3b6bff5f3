// Package store holds the process-scoped mutable state shared between the
// sync engine and the control surface: the registry of configured CalDAV
// servers and the ordered activity log.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the last known sync outcome for a server.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusOK      Status = "OK"
	StatusError   Status = "ERROR"
)

// Server is one registered remote calendar server. Readers always receive
// copies; only the Store mutates the canonical records.
type Server struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Password string `json:"-"`
	// CalendarPath is the calendar collection path on the server; empty
	// means "discover the first calendar of the principal's home set".
	CalendarPath    string    `json:"calendar_path"`
	IntervalMinutes int       `json:"interval_minutes"`
	LastSync        time.Time `json:"last_sync"`
	Status          Status    `json:"status"`
}

// ServerUpdate carries the fields the control surface may edit. Nil
// pointers leave the current value untouched.
type ServerUpdate struct {
	Endpoint        *string
	Username        *string
	Password        *string
	CalendarPath    *string
	IntervalMinutes *int
}

// LogEntry is one timestamped line of the activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// ErrServerNotFound is returned for operations on unknown server IDs.
var ErrServerNotFound = errors.New("server not found")

// Store is the registry and log store. All methods are safe for
// concurrent use; field updates happen whole under the lock so concurrent
// sync jobs never see torn records.
type Store struct {
	mu      sync.RWMutex
	servers []*Server
	byID    map[string]*Server

	logs     []LogEntry
	logStart int // ring start index once the cap is reached
	logCap   int
}

// New creates a Store whose activity log keeps at most logCap entries.
func New(logCap int) *Store {
	if logCap <= 0 {
		logCap = 1000
	}
	return &Store{
		byID:   make(map[string]*Server),
		logCap: logCap,
	}
}

// AddServer registers a server and returns its ID. An empty ID gets a
// generated UUID; an empty status starts as UNKNOWN.
func (s *Store) AddServer(srv Server) string {
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	if srv.Status == "" {
		srv.Status = StatusUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := srv
	s.servers = append(s.servers, &cp)
	s.byID[cp.ID] = &cp
	return cp.ID
}

// Servers returns copies of all registered servers in registration order.
func (s *Store) Servers() []Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, *srv)
	}
	return out
}

// Server returns a copy of the server with the given ID.
func (s *Store) Server(id string) (Server, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.byID[id]
	if !ok {
		return Server{}, false
	}
	return *srv, true
}

// UpdateServer applies the non-nil fields of upd to the server.
func (s *Store) UpdateServer(id string, upd ServerUpdate) error {
	if upd.IntervalMinutes != nil && *upd.IntervalMinutes <= 0 {
		return errors.New("interval must be a positive number of minutes")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.byID[id]
	if !ok {
		return ErrServerNotFound
	}
	if upd.Endpoint != nil {
		srv.Endpoint = *upd.Endpoint
	}
	if upd.Username != nil {
		srv.Username = *upd.Username
	}
	if upd.Password != nil {
		srv.Password = *upd.Password
	}
	if upd.CalendarPath != nil {
		srv.CalendarPath = *upd.CalendarPath
	}
	if upd.IntervalMinutes != nil {
		srv.IntervalMinutes = *upd.IntervalMinutes
	}
	return nil
}

// SetStatus records the outcome of the latest sync job for a server.
func (s *Store) SetStatus(id string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv, ok := s.byID[id]; ok {
		srv.Status = st
	}
}

// SetLastSync stamps the latest dispatch time for a server.
func (s *Store) SetLastSync(id string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv, ok := s.byID[id]; ok {
		srv.LastSync = t
	}
}

// Appendf appends a timestamped entry to the activity log. When the cap
// is reached the oldest entry is dropped.
func (s *Store) Appendf(format string, args ...any) {
	entry := LogEntry{Time: time.Now(), Message: fmt.Sprintf(format, args...)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) < s.logCap {
		s.logs = append(s.logs, entry)
		return
	}
	s.logs[s.logStart] = entry
	s.logStart = (s.logStart + 1) % s.logCap
}

// RecentLogs returns up to n log entries, most recent first.
func (s *Store) RecentLogs(n int) []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.logs)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]LogEntry, 0, n)
	for i := 0; i < n; i++ {
		// Walk backwards from the newest entry in the ring.
		idx := (s.logStart + total - 1 - i) % total
		out = append(out, s.logs[idx])
	}
	return out
}

// LogCount reports the number of retained log entries.
func (s *Store) LogCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}
