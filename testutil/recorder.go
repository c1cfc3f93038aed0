package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/voice-archiver/ipc"
)

// FakeRecorder simulates the external recorder process in tests: it reads the
// command file the way the recorder would and publishes status records.
type FakeRecorder struct {
	Channel *ipc.Channel
}

// NewFakeRecorder returns a recorder backed by IPC files in a temp directory,
// along with the channel the code under test should use.
func NewFakeRecorder(t *testing.T) *FakeRecorder {
	t.Helper()
	dir := t.TempDir()
	ch := ipc.NewChannel(filepath.Join(dir, ipc.DefaultCommandFile), filepath.Join(dir, ipc.DefaultStatusFile))
	return &FakeRecorder{Channel: ch}
}

// PublishStatus writes a status record the way the recorder does.
func (f *FakeRecorder) PublishStatus(t *testing.T, status, message string, fields map[string]string) {
	t.Helper()
	record := map[string]string{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		record[k] = v
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}
	if err := os.WriteFile(f.Channel.StatusPath, data, 0o644); err != nil {
		t.Fatalf("write status: %v", err)
	}
}

// CorruptStatus overwrites the status file with junk, simulating a partial
// write by the recorder.
func (f *FakeRecorder) CorruptStatus(t *testing.T) {
	t.Helper()
	if err := os.WriteFile(f.Channel.StatusPath, []byte("not json"), 0o644); err != nil {
		t.Fatalf("corrupt status: %v", err)
	}
}

// LastCommand parses the current command file contents.
func (f *FakeRecorder) LastCommand(t *testing.T) map[string]string {
	t.Helper()
	data, err := os.ReadFile(f.Channel.CommandPath)
	if err != nil {
		t.Fatalf("read command file: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("command file is not a flat JSON object: %v", err)
	}
	return m
}

// HasCommand reports whether a command file exists at all.
func (f *FakeRecorder) HasCommand() bool {
	_, err := os.Stat(f.Channel.CommandPath)
	return err == nil
}
