package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testChannel(t *testing.T) *Channel {
	t.Helper()
	dir := t.TempDir()
	return NewChannel(filepath.Join(dir, DefaultCommandFile), filepath.Join(dir, DefaultStatusFile))
}

func readCommandFile(t *testing.T, path string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read command file: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("command file is not a flat JSON object: %v", err)
	}
	return m
}

func TestSendStartRecordingWritesExactFields(t *testing.T) {
	ch := testChannel(t)
	ok := ch.Send(StartRecording{GuildID: "111", ChannelID: "222", TargetUserID: "333"})
	if !ok {
		t.Fatal("Send returned false")
	}
	m := readCommandFile(t, ch.CommandPath)
	if m["action"] != ActionStartRecording {
		t.Errorf("action = %q, want %q", m["action"], ActionStartRecording)
	}
	if m["guildId"] != "111" || m["channelId"] != "222" || m["targetUserId"] != "333" {
		t.Errorf("unexpected id fields: %v", m)
	}
	if _, err := time.Parse(time.RFC3339Nano, m["timestamp"]); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", m["timestamp"], err)
	}
	if len(m) != 5 {
		t.Errorf("command has %d fields, want exactly 5: %v", len(m), m)
	}
}

func TestSendOverwritesPreviousCommand(t *testing.T) {
	ch := testChannel(t)
	if !ch.Send(StartRecording{GuildID: "111", ChannelID: "222", TargetUserID: "333"}) {
		t.Fatal("start send failed")
	}
	if !ch.Send(StopRecording{GuildID: "111"}) {
		t.Fatal("stop send failed")
	}
	m := readCommandFile(t, ch.CommandPath)
	if m["action"] != ActionStopRecording {
		t.Errorf("action = %q, want %q", m["action"], ActionStopRecording)
	}
	if m["guildId"] != "111" {
		t.Errorf("guildId = %q, want 111", m["guildId"])
	}
	// Full overwrite, not a merge: no fields from the earlier start survive.
	if _, present := m["channelId"]; present {
		t.Error("channelId leaked from previous command")
	}
	if _, present := m["targetUserId"]; present {
		t.Error("targetUserId leaked from previous command")
	}
	if len(m) != 3 {
		t.Errorf("stop command has %d fields, want exactly 3: %v", len(m), m)
	}
}

func TestSendRawCommand(t *testing.T) {
	ch := testChannel(t)
	ok := ch.Send(Raw{Name: "flush_buffers", Fields: map[string]string{"guildId": "42"}})
	if !ok {
		t.Fatal("Send returned false")
	}
	m := readCommandFile(t, ch.CommandPath)
	if m["action"] != "flush_buffers" || m["guildId"] != "42" {
		t.Errorf("unexpected raw command contents: %v", m)
	}
}

func TestSendRawCannotOverrideStamps(t *testing.T) {
	ch := testChannel(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ch.now = func() time.Time { return fixed }
	if !ch.Send(Raw{Name: "probe", Fields: map[string]string{"action": "spoofed", "timestamp": "spoofed"}}) {
		t.Fatal("Send returned false")
	}
	m := readCommandFile(t, ch.CommandPath)
	if m["action"] != "probe" {
		t.Errorf("action = %q, want probe", m["action"])
	}
	if m["timestamp"] != fixed.Format(time.RFC3339Nano) {
		t.Errorf("timestamp = %q, want stamped value", m["timestamp"])
	}
}

func TestSendFailureReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	ch := NewChannel(filepath.Join(dir, "missing", "sub", "voice_commands.json"), filepath.Join(dir, DefaultStatusFile))
	if ch.Send(StopRecording{GuildID: "1"}) {
		t.Error("Send into nonexistent directory should return false")
	}
}

func TestReadStatusMissingFile(t *testing.T) {
	ch := testChannel(t)
	if _, ok := ch.ReadStatus(); ok {
		t.Error("ReadStatus on missing file should report absent")
	}
}

func TestReadStatusMalformed(t *testing.T) {
	ch := testChannel(t)
	for _, content := range []string{"not json", `"not an object"`, `{"status": "ready"`, ""} {
		if err := os.WriteFile(ch.StatusPath, []byte(content), 0o644); err != nil {
			t.Fatalf("write status: %v", err)
		}
		if _, ok := ch.ReadStatus(); ok {
			t.Errorf("ReadStatus(%q) should report absent", content)
		}
	}
}

func TestReadStatusParsesKnownAndExtraFields(t *testing.T) {
	ch := testChannel(t)
	body := `{"status":"recording","message":"capturing user","timestamp":"2024-05-01T12:00:00Z","guildId":"111","retries":3}`
	if err := os.WriteFile(ch.StatusPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write status: %v", err)
	}
	st, ok := ch.ReadStatus()
	if !ok {
		t.Fatal("ReadStatus reported absent for a valid record")
	}
	if st.Status != StatusRecording {
		t.Errorf("status = %q, want %q", st.Status, StatusRecording)
	}
	if st.Message != "capturing user" {
		t.Errorf("message = %q", st.Message)
	}
	if st.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("timestamp = %q", st.Timestamp)
	}
	if st.Fields["guildId"] != "111" {
		t.Errorf("guildId context field = %q, want 111", st.Fields["guildId"])
	}
	if st.Fields["retries"] != "3" {
		t.Errorf("non-string context field = %q, want raw text 3", st.Fields["retries"])
	}
}

func TestRapidSendsLastWriteWins(t *testing.T) {
	ch := testChannel(t)
	for i := 0; i < 20; i++ {
		if !ch.Send(StartRecording{GuildID: "9", ChannelID: "100", TargetUserID: "7"}) {
			t.Fatal("send failed")
		}
	}
	if !ch.Send(StopRecording{GuildID: "9"}) {
		t.Fatal("final send failed")
	}
	m := readCommandFile(t, ch.CommandPath)
	if m["action"] != ActionStopRecording {
		t.Errorf("surviving command = %q, want the last one", m["action"])
	}
}

func TestConcurrentSendsLeaveParseableFile(t *testing.T) {
	// The store is single-writer in production; this guards against a
	// torn file if two sends ever race.
	ch := testChannel(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch.Send(StartRecording{GuildID: "9", ChannelID: "100", TargetUserID: "7"})
		}()
	}
	wg.Wait()
	m := readCommandFile(t, ch.CommandPath)
	if m["action"] != ActionStartRecording {
		t.Errorf("action = %q after concurrent sends", m["action"])
	}
}

func TestNewChannelDefaults(t *testing.T) {
	ch := NewChannel("", "")
	if ch.CommandPath != DefaultCommandFile {
		t.Errorf("CommandPath = %q, want %q", ch.CommandPath, DefaultCommandFile)
	}
	if ch.StatusPath != DefaultStatusFile {
		t.Errorf("StatusPath = %q, want %q", ch.StatusPath, DefaultStatusFile)
	}
}
