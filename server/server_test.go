package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/onnwee/voice-archiver/db"
	"github.com/onnwee/voice-archiver/ipc"
	"github.com/onnwee/voice-archiver/testutil"
)

type fakeRecorder struct {
	st ipc.Status
	ok bool
}

func (f *fakeRecorder) ReadStatus() (ipc.Status, bool) { return f.st, f.ok }

func TestMetricsRouteServed(t *testing.T) {
	// /metrics never touches the database or the recorder.
	h := NewHandlers(nil, &fakeRecorder{}, "333", filepath.Join(t.TempDir(), "voice_commands.json"))
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	h := NewHandlers(nil, &fakeRecorder{}, "333", filepath.Join(t.TempDir(), "voice_commands.json"))
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("correlation id = %q, want corr-123", got)
	}

	// Absent header: one is generated.
	resp2, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.Header.Get("X-Correlation-ID") == "" {
		t.Error("expected generated correlation id")
	}
}

func TestHealthzWithDatabase(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	h := NewHandlers(dbc, &fakeRecorder{}, "333", filepath.Join(t.TempDir(), "voice_commands.json"))
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyzReportsUnwritableCommandStore(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	h := NewHandlers(dbc, &fakeRecorder{}, "333", "/proc/nonexistent/voice_commands.json")
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["failed_check"] != "command_store" {
		t.Errorf("failed_check = %q, want command_store", body["failed_check"])
	}
}

func TestStatusIncludesSessionsAndRecorder(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = dbc.ExecContext(context.Background(), `DELETE FROM recording_sessions WHERE guild_id='srv-test'`)
	})

	store := &db.SessionStore{DB: dbc}
	if err := store.RecordStart(ctx, "srv-test", "222", "General", "333"); err != nil {
		t.Fatalf("record start: %v", err)
	}

	rec := &fakeRecorder{st: ipc.Status{Status: ipc.StatusRecording, Message: "capturing"}, ok: true}
	h := NewHandlers(dbc, rec, "333", filepath.Join(t.TempDir(), "voice_commands.json"))
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.WatchedUserID != "333" {
		t.Errorf("watched_user_id = %q", body.WatchedUserID)
	}
	found := false
	for _, s := range body.ActiveSessions {
		if s.GuildID == "srv-test" && s.ChannelID == "222" {
			found = true
		}
	}
	if !found {
		t.Errorf("active session for srv-test missing: %+v", body.ActiveSessions)
	}
	if body.Recorder == nil || body.Recorder.Status != ipc.StatusRecording {
		t.Errorf("recorder block = %+v, want recording", body.Recorder)
	}
}

func TestStatusOmitsRecorderWhenAbsent(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	h := NewHandlers(dbc, &fakeRecorder{}, "333", filepath.Join(t.TempDir(), "voice_commands.json"))
	srv := httptest.NewServer(NewMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Recorder != nil {
		t.Errorf("recorder block = %+v, want omitted", body.Recorder)
	}
}
