package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/core/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: only for dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

type trackDTO struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type stateDTO struct {
	Event          string     `json:"event"`
	Phase          string     `json:"phase"`
	SessionID      string     `json:"session_id,omitempty"`
	RemoteID       string     `json:"remote_id,omitempty"`
	RemoteName     string     `json:"remote_name,omitempty"`
	RemoteRole     string     `json:"remote_role,omitempty"`
	Muted          bool       `json:"muted"`
	CameraOff      bool       `json:"camera_off"`
	AudioOnly      bool       `json:"audio_only"`
	Speaking       bool       `json:"speaking"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	LocalTracks    []trackDTO `json:"local_tracks,omitempty"`
	RemoteTracks   []trackDTO `json:"remote_tracks,omitempty"`
}

type incomingDTO struct {
	Event      string `json:"event"`
	SessionID  string `json:"session_id"`
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name"`
	CallerRole string `json:"caller_role"`
}

func projectionDTO(p service.CallStateProjection) stateDTO {
	dto := stateDTO{
		Event:          "call_state",
		Phase:          string(p.Phase),
		SessionID:      p.SessionID.String(),
		RemoteID:       p.RemoteID.String(),
		RemoteName:     p.RemotePeer.Name,
		RemoteRole:     string(p.RemotePeer.Role),
		Muted:          p.Flags.Muted,
		CameraOff:      p.Flags.CameraOff,
		AudioOnly:      p.Flags.AudioOnly,
		Speaking:       p.Flags.Speaking,
		ElapsedSeconds: int(p.Elapsed / time.Second),
	}
	if p.LocalMedia != nil {
		for _, t := range p.LocalMedia.Tracks() {
			dto.LocalTracks = append(dto.LocalTracks, trackDTO{ID: t.ID(), Kind: string(t.Kind()), Enabled: t.Enabled()})
		}
	}
	for _, t := range p.RemoteMedia {
		dto.RemoteTracks = append(dto.RemoteTracks, trackDTO{ID: t.ID(), Kind: string(t.Kind()), Enabled: t.Enabled()})
	}
	return dto
}

func noticeDTO(n service.IncomingCallNotice) incomingDTO {
	return incomingDTO{
		Event:      "incoming_call",
		SessionID:  n.SessionID.String(),
		CallerID:   n.CallerID.String(),
		CallerName: n.Caller.Name,
		CallerRole: string(n.Caller.Role),
	}
}

// ServeWS streams call state snapshots and incoming-call notices to one UI
// client. The stream opens with the current snapshot.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	l := log.With().Str("remote_addr", r.RemoteAddr).Logger()
	l.Info().Msg("UI client connected")

	states, cancelStates := h.Engine.SubscribeProjection()
	notices, cancelNotices := h.Engine.SubscribeIncoming()
	done := make(chan struct{})

	defer func() {
		cancelStates()
		cancelNotices()
		conn.Close()
		l.Info().Msg("UI client disconnected")
	}()

	// The read side only watches for the client going away.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					l.Error().Err(err).Msg("Unexpected close error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case p, ok := <-states:
			if !ok {
				return
			}
			if err := conn.WriteJSON(projectionDTO(p)); err != nil {
				l.Error().Err(err).Msg("Failed to push call state")
				return
			}
		case n, ok := <-notices:
			if !ok {
				return
			}
			if err := conn.WriteJSON(noticeDTO(n)); err != nil {
				l.Error().Err(err).Msg("Failed to push incoming-call notice")
				return
			}
		}
	}
}
