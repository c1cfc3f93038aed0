// Package discord adapts the Discord gateway to the session orchestrator: it
// subscribes to voice-state events for the configured intents and forwards
// them as presence transitions.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/voice-archiver/session"
)

// Gateway owns the discordgo session and feeds presence transitions to the
// orchestrator.
type Gateway struct {
	dg     *discordgo.Session
	orch   *session.Orchestrator
	status session.StatusReader

	ctx context.Context
}

// NewGateway builds a gateway for the given bot token. Only the guild and
// voice-state intents are requested; everything else stays disabled to keep
// the connection cheap. Event dispatch is synchronous so voice-state
// transitions reach the orchestrator in arrival order.
func NewGateway(token string, orch *session.Orchestrator, status session.StatusReader) (*Gateway, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	dg.SyncEvents = true
	dg.StateEnabled = true

	g := &Gateway{dg: dg, orch: orch, status: status}
	dg.AddHandler(g.onReady)
	dg.AddHandler(g.onVoiceStateUpdate)
	return g, nil
}

// Open connects to the gateway. ctx governs in-flight transition handling and
// is consulted by the orchestrator's cooperative waits.
func (g *Gateway) Open(ctx context.Context) error {
	g.ctx = ctx
	if err := g.dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (g *Gateway) Close() error {
	return g.dg.Close()
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	slog.Info("discord gateway ready",
		slog.String("user", r.User.Username),
		slog.String("target_user_id", g.orch.WatchedUserID()),
		slog.Int("guilds", len(r.Guilds)))

	// One-shot recorder probe; the recorder runs out of process and may
	// simply not be up yet.
	if st, ok := g.status.ReadStatus(); ok {
		slog.Info("recorder status", slog.String("status", st.Status), slog.String("message", st.Message))
	} else {
		slog.Warn("no status from recorder; ensure the recorder process is running")
	}
	slog.Info("monitoring voice state changes")
}

func (g *Gateway) onVoiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	var before string
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	ev := session.Event{
		UserID:          vs.UserID,
		GuildID:         vs.GuildID,
		BeforeChannelID: before,
		AfterChannelID:  vs.ChannelID,
		ChannelName:     g.channelName(vs.ChannelID),
	}
	ctx := g.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	g.orch.HandleVoiceState(ctx, ev)
}

// channelName resolves a display name from gateway state, best effort; the
// channel id stands in when state has no entry yet.
func (g *Gateway) channelName(channelID string) string {
	if channelID == "" {
		return ""
	}
	if ch, err := g.dg.State.Channel(channelID); err == nil && ch.Name != "" {
		return ch.Name
	}
	return channelID
}
