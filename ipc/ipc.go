// Package ipc implements the file-based command/status protocol shared with the
// external voice recorder process. Commands are written to a fixed-location JSON
// file (full overwrite, last write wins) and the recorder reports back through a
// second JSON file that is read opportunistically and never assumed to be
// present or well-formed.
package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/onnwee/voice-archiver/telemetry"
)

// Command actions understood by the recorder.
const (
	ActionStartRecording = "start_recording"
	ActionStopRecording  = "stop_recording"
)

// Well-known recorder status values. The recorder may report other strings;
// callers treat anything unknown as informational.
const (
	StatusReady     = "ready"
	StatusRecording = "recording"
	StatusStopped   = "stopped"
)

// Default file locations, relative to the working directory. The names are part
// of the contract with the recorder process.
const (
	DefaultCommandFile = "voice_commands.json"
	DefaultStatusFile  = "voice_status.json"
)

// Command is a single recorder instruction. The set of variants is closed and
// each carries a fixed field set; Raw is the escape hatch for actions the
// orchestrator does not know about.
type Command interface {
	Action() string
	fields() map[string]string
}

// StartRecording asks the recorder to join a channel and capture the target
// user. All IDs travel as decimal strings: guild and channel snowflakes exceed
// 2^53 and must never be serialized as native JSON numbers.
type StartRecording struct {
	GuildID      string
	ChannelID    string
	TargetUserID string
}

func (c StartRecording) Action() string { return ActionStartRecording }

func (c StartRecording) fields() map[string]string {
	return map[string]string{
		"guildId":      c.GuildID,
		"channelId":    c.ChannelID,
		"targetUserId": c.TargetUserID,
	}
}

// StopRecording asks the recorder to stop capturing and disconnect in a guild.
type StopRecording struct {
	GuildID string
}

func (c StopRecording) Action() string { return ActionStopRecording }

func (c StopRecording) fields() map[string]string {
	return map[string]string{"guildId": c.GuildID}
}

// Raw is a forward-compatible command with caller-provided fields.
type Raw struct {
	Name   string
	Fields map[string]string
}

func (c Raw) Action() string { return c.Name }

func (c Raw) fields() map[string]string { return c.Fields }

// Status is the recorder's last reported state. Fields carries any extra
// string-keyed context the recorder included (e.g. guildId).
type Status struct {
	Status    string
	Message   string
	Timestamp string
	Fields    map[string]string
}

// Channel is the orchestrator's end of the two-file IPC link. Construct with
// NewChannel; the zero value has no paths.
type Channel struct {
	CommandPath string
	StatusPath  string

	now func() time.Time
}

// NewChannel returns a Channel using the given file locations, falling back to
// the defaults for empty paths.
func NewChannel(commandPath, statusPath string) *Channel {
	if commandPath == "" {
		commandPath = DefaultCommandFile
	}
	if statusPath == "" {
		statusPath = DefaultStatusFile
	}
	return &Channel{CommandPath: commandPath, StatusPath: statusPath, now: time.Now}
}

// Send persists cmd to the command file, stamping the current instant. The
// previous command is fully overwritten: there is no queue, and a rapid burst
// of sends can legitimately leave only the last one for the recorder to
// observe. Failure is reported through the return value and a log line only;
// Send never surfaces an error to the caller.
func (c *Channel) Send(cmd Command) bool {
	record := map[string]string{
		"action":    cmd.Action(),
		"timestamp": c.clock().Format(time.RFC3339Nano),
	}
	for k, v := range cmd.fields() {
		if k == "action" || k == "timestamp" {
			continue
		}
		record[k] = v
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		slog.Error("ipc: marshal command failed", slog.String("action", cmd.Action()), slog.Any("err", err))
		telemetry.IncCommandSendFailure(cmd.Action())
		return false
	}
	// Stage in the same directory and rename so the recorder can never
	// observe a half-written command.
	tmp, err := os.CreateTemp(filepath.Dir(c.CommandPath), ".voice_commands-*")
	if err != nil {
		slog.Error("ipc: stage command failed", slog.String("action", cmd.Action()), slog.String("path", c.CommandPath), slog.Any("err", err))
		telemetry.IncCommandSendFailure(cmd.Action())
		return false
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		slog.Error("ipc: write command failed", slog.String("action", cmd.Action()), slog.String("path", c.CommandPath), slog.Any("err", err))
		telemetry.IncCommandSendFailure(cmd.Action())
		return false
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		slog.Error("ipc: close staged command failed", slog.String("action", cmd.Action()), slog.Any("err", err))
		telemetry.IncCommandSendFailure(cmd.Action())
		return false
	}
	if err := os.Rename(tmp.Name(), c.CommandPath); err != nil {
		_ = os.Remove(tmp.Name())
		slog.Error("ipc: publish command failed", slog.String("action", cmd.Action()), slog.String("path", c.CommandPath), slog.Any("err", err))
		telemetry.IncCommandSendFailure(cmd.Action())
		return false
	}
	telemetry.IncCommandSent(cmd.Action())
	slog.Info("ipc: command sent", slog.String("action", cmd.Action()))
	return true
}

// ReadStatus returns the recorder's current status record, if one can be had.
// A missing file, an unreadable file, and malformed JSON all mean the same
// thing to callers: no definitive status is available right now. The collapse
// is deliberate; the status file is written asynchronously by another process
// and may be mid-write at any moment.
func (c *Channel) ReadStatus() (Status, bool) {
	data, err := os.ReadFile(c.StatusPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("ipc: status read failed", slog.String("path", c.StatusPath), slog.Any("err", err))
		}
		telemetry.IncStatusRead(false)
		return Status{}, false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Debug("ipc: malformed status treated as absent", slog.String("path", c.StatusPath), slog.Any("err", err))
		telemetry.IncStatusRead(false)
		return Status{}, false
	}
	st := Status{Fields: make(map[string]string)}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			// Non-string context values keep their raw JSON text.
			s = string(v)
		}
		switch k {
		case "status":
			st.Status = s
		case "message":
			st.Message = s
		case "timestamp":
			st.Timestamp = s
		default:
			st.Fields[k] = s
		}
	}
	telemetry.IncStatusRead(true)
	return st, true
}

func (c *Channel) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
