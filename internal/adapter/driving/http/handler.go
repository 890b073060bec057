// Package http exposes the local control surface: REST endpoints for call
// commands and a websocket stream that mirrors the call state projection to
// the UI.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/service"
)

type Handler struct {
	Engine *service.Engine
}

func NewHandler(engine *service.Engine) *Handler {
	return &Handler{Engine: engine}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/ws", h.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/participants", h.ListParticipants)
		r.Get("/call", h.CallState)
		r.Post("/call/{target}", h.StartCall)
		r.Post("/call/accept", h.AcceptCall)
		r.Post("/call/reject", h.RejectCall)
		r.Post("/call/end", h.EndCall)
		r.Post("/call/mute", h.ToggleMute)
		r.Post("/call/camera", h.ToggleCamera)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	roster, err := h.Engine.AvailableParticipants(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (h *Handler) CallState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, projectionDTO(h.Engine.Projection()))
}

func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	target := domain.ParticipantID(chi.URLParam(r, "target"))
	if target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing target"})
		return
	}
	if err := h.Engine.StartCall(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, projectionDTO(h.Engine.Projection()))
}

func (h *Handler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means "the ringing call"
	}
	if err := h.Engine.AcceptCall(r.Context(), domain.SessionID(req.SessionID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectionDTO(h.Engine.Projection()))
}

func (h *Handler) RejectCall(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RejectCall(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectionDTO(h.Engine.Projection()))
}

func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.EndCall(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectionDTO(h.Engine.Projection()))
}

func (h *Handler) ToggleMute(w http.ResponseWriter, r *http.Request) {
	muted, err := h.Engine.ToggleMute(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

func (h *Handler) ToggleCamera(w http.ResponseWriter, r *http.Request) {
	cameraOff, err := h.Engine.ToggleCamera(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"camera_off": cameraOff})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Writing response failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrStateConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrTargetUnavailable):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrDeviceUnavailable):
		status = http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrSignalingDelivery):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
