package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/pinvote/telemetry"
)

type sessionView struct {
	ChannelID   string   `json:"channel_id"`
	TriggerID   string   `json:"trigger_id"`
	TargetID    string   `json:"target_id"`
	RequesterID string   `json:"requester_id"`
	Votes       int      `json:"votes"`
	Voters      []string `json:"voters"`
	AgeSeconds  float64  `json:"age_seconds"`
}

type pinView struct {
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// HandleStatus reports the effective settings and every open voting session, oldest first.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	now := h.deps.Now()
	snap := h.deps.Store.Snapshot()
	sessions := make([]sessionView, 0, len(snap))
	for _, s := range snap {
		sessions = append(sessions, sessionView{
			ChannelID:   s.Trigger.ChannelID,
			TriggerID:   s.Trigger.MessageID,
			TargetID:    s.Target.Ref.MessageID,
			RequesterID: s.RequesterID,
			Votes:       s.Count(),
			Voters:      s.Voters(),
			AgeSeconds:  s.Age(now).Seconds(),
		})
	}

	connected := h.deps.Connected == nil || h.deps.Connected()
	settings := h.deps.Settings
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(now.Sub(h.started).Seconds()),
		"connected":      connected,
		"settings": map[string]any{
			"confirm_cap":          settings.ConfirmCap,
			"pin_cooldown_seconds": settings.PinCooldown.Seconds(),
			"session_max_age":      settings.SessionMaxAge.String(),
			"sweep_interval":       settings.SweepInterval.String(),
			"approve_emoji":        settings.ApproveEmoji,
			"reject_emoji":         settings.RejectEmoji,
			"notify_pin_failure":   settings.NotifyPinFailure,
			"history_enabled":      h.deps.History != nil,
		},
		"active_sessions": len(sessions),
		"sessions":        sessions,
	})
}

// HandlePins lists recent pin outcomes, newest first. ?limit=N defaults to 50.
func (h *Handlers) HandlePins(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		http.Error(w, "pin history disabled", http.StatusNotFound)
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	if limit <= 0 {
		http.Error(w, "limit must be positive", http.StatusBadRequest)
		return
	}
	events, err := h.deps.History.Recent(r.Context(), limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("failed to list pin history", slog.String("component", "http"), slog.Any("err", err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]pinView, 0, len(events))
	for _, ev := range events {
		out = append(out, pinView{
			ChannelID: ev.Ref.ChannelID,
			MessageID: ev.Ref.MessageID,
			Outcome:   ev.Outcome,
			Detail:    ev.Detail,
			At:        ev.At.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
