// Package session turns voice-presence transitions for the watched user into
// an ordered sequence of recorder commands, tracking at most one active
// recording session per guild.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/voice-archiver/ipc"
	"github.com/onnwee/voice-archiver/telemetry"
)

// Event is one voice-state change as delivered by the gateway. Channel IDs are
// empty when the user is not in a voice channel on that side of the
// transition.
type Event struct {
	UserID          string
	GuildID         string
	BeforeChannelID string
	AfterChannelID  string
	ChannelName     string
}

// Sender emits commands to the recorder. Implemented by *ipc.Channel.
type Sender interface {
	Send(cmd ipc.Command) bool
}

// StatusReader reads the recorder's reported status. Implemented by
// *ipc.Channel.
type StatusReader interface {
	ReadStatus() (ipc.Status, bool)
}

// Store persists session history for auditing. Errors are logged and never
// affect command emission.
type Store interface {
	RecordStart(ctx context.Context, guildID, channelID, channelName, userID string) error
	RecordStop(ctx context.Context, guildID string) error
}

// Delays are the fixed confirmation pauses after command emission. Stop waits
// longer than start because recorder teardown (voice disconnect) takes longer
// than connect.
type Delays struct {
	StartConfirm time.Duration
	StopConfirm  time.Duration
	MoveRestart  time.Duration
}

// DefaultDelays returns the recorder-compatible defaults.
func DefaultDelays() Delays {
	return Delays{
		StartConfirm: 2 * time.Second,
		StopConfirm:  5 * time.Second,
		MoveRestart:  time.Second,
	}
}

type active struct {
	channelID   string
	channelName string
	startedAt   time.Time
}

// Orchestrator consumes presence events for exactly one watched user and
// drives the recorder through the IPC channel. Transitions are processed
// strictly one at a time; the transition lock is held across command emission
// and the confirmation delay so a channel move can never interleave its stop
// and start with another transition.
type Orchestrator struct {
	watchedUserID string
	sender        Sender
	status        StatusReader
	store         Store // optional, nil disables auditing
	delays        Delays

	transMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]active // guild id -> current session
}

// SessionInfo is a read-only view of one active session.
type SessionInfo struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	StartedAt   time.Time
}

// NewOrchestrator builds an orchestrator for one watched user. store may be
// nil when auditing is disabled.
func NewOrchestrator(watchedUserID string, sender Sender, status StatusReader, store Store, delays Delays) *Orchestrator {
	return &Orchestrator{
		watchedUserID: watchedUserID,
		sender:        sender,
		status:        status,
		store:         store,
		delays:        delays,
		sessions:      make(map[string]active),
	}
}

// WatchedUserID returns the configured watched user.
func (o *Orchestrator) WatchedUserID() string { return o.watchedUserID }

// HandleVoiceState consumes one presence transition. Events for any other
// user are ignored entirely. Every failure below this point is non-fatal: the
// orchestrator logs and returns to waiting for the next event.
func (o *Orchestrator) HandleVoiceState(ctx context.Context, ev Event) {
	if ev.UserID != o.watchedUserID {
		return
	}
	telemetry.IncPresenceEvent()

	o.transMu.Lock()
	defer o.transMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "session", "presence-transition",
		telemetry.GuildAttr(ev.GuildID),
	)
	defer span.End()

	telemetry.TimeFunc(telemetry.TransitionDuration, func() {
		switch {
		case ev.BeforeChannelID == "" && ev.AfterChannelID != "":
			o.handleJoin(ctx, ev)
		case ev.BeforeChannelID != "" && ev.AfterChannelID == "":
			o.handleLeave(ctx, ev)
		case ev.BeforeChannelID != "" && ev.AfterChannelID != "" && ev.BeforeChannelID != ev.AfterChannelID:
			o.handleMove(ctx, ev)
		default:
			// Mute/deafen toggles arrive with the same channel on both
			// sides; nothing to do.
		}
	})
}

func (o *Orchestrator) handleJoin(ctx context.Context, ev Event) {
	slog.Info("watched user joined voice channel",
		slog.String("guild_id", ev.GuildID),
		slog.String("channel_id", ev.AfterChannelID),
		slog.String("channel", ev.ChannelName))

	if !o.sender.Send(ipc.StartRecording{GuildID: ev.GuildID, ChannelID: ev.AfterChannelID, TargetUserID: o.watchedUserID}) {
		slog.Error("failed to send recording request", slog.String("guild_id", ev.GuildID))
		return
	}
	o.setSession(ev.GuildID, active{channelID: ev.AfterChannelID, channelName: ev.ChannelName, startedAt: time.Now()})
	o.recordStart(ctx, ev.GuildID, ev.AfterChannelID, ev.ChannelName)

	if st, ok := o.confirm(ctx, o.delays.StartConfirm); ok {
		slog.Info("recorder response", slog.String("status", st.Status), slog.String("message", st.Message))
	}
}

func (o *Orchestrator) handleLeave(ctx context.Context, ev Event) {
	slog.Info("watched user left voice channel",
		slog.String("guild_id", ev.GuildID),
		slog.String("channel_id", ev.BeforeChannelID))

	sent := o.sender.Send(ipc.StopRecording{GuildID: ev.GuildID})
	if !sent {
		slog.Error("failed to send stop request", slog.String("guild_id", ev.GuildID))
	}
	// The user is gone either way; session tracking follows presence, not
	// recorder state.
	o.clearSession(ev.GuildID)
	o.recordStop(ctx, ev.GuildID)
	if !sent {
		return
	}

	if st, ok := o.confirm(ctx, o.delays.StopConfirm); ok {
		slog.Info("final recorder status", slog.String("status", st.Status), slog.String("message", st.Message))
		if st.Status != ipc.StatusStopped && st.Status != ipc.StatusReady {
			slog.Warn("recorder may still be connected", slog.String("status", st.Status), slog.String("guild_id", ev.GuildID))
		}
	}
}

// handleMove sequences stop-then-start; the recorder has no atomic move
// primitive, so a brief gap with no recording is accepted.
func (o *Orchestrator) handleMove(ctx context.Context, ev Event) {
	slog.Info("watched user moved voice channel",
		slog.String("guild_id", ev.GuildID),
		slog.String("from_channel_id", ev.BeforeChannelID),
		slog.String("to_channel_id", ev.AfterChannelID),
		slog.String("channel", ev.ChannelName))

	if !o.sender.Send(ipc.StopRecording{GuildID: ev.GuildID}) {
		slog.Error("failed to send stop request for move", slog.String("guild_id", ev.GuildID))
	}
	o.clearSession(ev.GuildID)
	o.recordStop(ctx, ev.GuildID)
	if !o.wait(ctx, o.delays.MoveRestart) {
		return
	}

	if !o.sender.Send(ipc.StartRecording{GuildID: ev.GuildID, ChannelID: ev.AfterChannelID, TargetUserID: o.watchedUserID}) {
		slog.Error("failed to restart recording in new channel", slog.String("guild_id", ev.GuildID))
		return
	}
	o.setSession(ev.GuildID, active{channelID: ev.AfterChannelID, channelName: ev.ChannelName, startedAt: time.Now()})
	o.recordStart(ctx, ev.GuildID, ev.AfterChannelID, ev.ChannelName)
	slog.Info("recording moved to new channel", slog.String("guild_id", ev.GuildID), slog.String("channel_id", ev.AfterChannelID))
}

// confirm waits the fixed delay, then polls the recorder status once, purely
// for logging. The wait is cooperative; shutdown cancels it.
func (o *Orchestrator) confirm(ctx context.Context, delay time.Duration) (ipc.Status, bool) {
	if !o.wait(ctx, delay) {
		return ipc.Status{}, false
	}
	st, ok := o.status.ReadStatus()
	if !ok {
		slog.Warn("no status available from recorder")
		return ipc.Status{}, false
	}
	return st, true
}

func (o *Orchestrator) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Sessions returns the currently tracked active sessions.
func (o *Orchestrator) Sessions() []SessionInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SessionInfo, 0, len(o.sessions))
	for guildID, s := range o.sessions {
		out = append(out, SessionInfo{GuildID: guildID, ChannelID: s.channelID, ChannelName: s.channelName, StartedAt: s.startedAt})
	}
	return out
}

func (o *Orchestrator) setSession(guildID string, s active) {
	o.mu.Lock()
	o.sessions[guildID] = s
	n := len(o.sessions)
	o.mu.Unlock()
	telemetry.SetActiveSessions(n)
}

func (o *Orchestrator) clearSession(guildID string) {
	o.mu.Lock()
	delete(o.sessions, guildID)
	n := len(o.sessions)
	o.mu.Unlock()
	telemetry.SetActiveSessions(n)
}

func (o *Orchestrator) recordStart(ctx context.Context, guildID, channelID, channelName string) {
	if o.store == nil {
		return
	}
	if err := o.store.RecordStart(ctx, guildID, channelID, channelName, o.watchedUserID); err != nil {
		slog.Warn("failed to record session start", slog.String("guild_id", guildID), slog.Any("err", err))
	}
}

func (o *Orchestrator) recordStop(ctx context.Context, guildID string) {
	if o.store == nil {
		return
	}
	if err := o.store.RecordStop(ctx, guildID); err != nil {
		slog.Warn("failed to record session stop", slog.String("guild_id", guildID), slog.Any("err", err))
	}
}
