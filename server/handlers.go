// Package server exposes the HTTP surface: health, readiness, service status,
// and Prometheus metrics. It injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onnwee/voice-archiver/db"
	"github.com/onnwee/voice-archiver/ipc"
)

// StatusReader reads the recorder's reported status. Implemented by
// *ipc.Channel.
type StatusReader interface {
	ReadStatus() (ipc.Status, bool)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db            *sql.DB
	recorder      StatusReader
	watchedUserID string
	commandPath   string
	started       time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(dbc *sql.DB, recorder StatusReader, watchedUserID, commandPath string) *Handlers {
	return &Handlers{
		db:            dbc,
		recorder:      recorder,
		watchedUserID: watchedUserID,
		commandPath:   commandPath,
		started:       time.Now(),
	}
}

// HandleHealthz responds to liveness probe requests by checking database
// connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests: the service is ready when
// the database answers and the command store location is writable.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"command_store", func() error {
			probe := filepath.Join(filepath.Dir(h.commandPath), ".readyz-probe")
			if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
				return err
			}
			return os.Remove(probe)
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type statusResponse struct {
	WatchedUserID  string          `json:"watched_user_id"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	ActiveSessions []db.SessionRow `json:"active_sessions"`
	Recorder       *recorderStatus `json:"recorder,omitempty"`
}

type recorderStatus struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// HandleStatus reports the watcher's view of the world: the watched user,
// active sessions from the audit table, and the recorder's last reported
// status if one is available.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		WatchedUserID: h.watchedUserID,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}

	sessions, err := db.ListOpenSessions(r.Context(), h.db)
	if err != nil {
		http.Error(w, "failed to load sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []db.SessionRow{}
	}
	resp.ActiveSessions = sessions

	if st, ok := h.recorder.ReadStatus(); ok {
		resp.Recorder = &recorderStatus{
			Status:    st.Status,
			Message:   st.Message,
			Timestamp: st.Timestamp,
			Fields:    st.Fields,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleSessions lists recent sessions, open or closed.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := db.ListRecentSessions(r.Context(), h.db, 50)
	if err != nil {
		http.Error(w, "failed to load sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []db.SessionRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessions)
}
