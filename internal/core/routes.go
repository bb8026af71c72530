package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/e7canasta/latent-explorer/internal/session"
)

// Router builds the HTTP surface
func (x *Explorer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", x.LivenessHandler)
	r.Get("/readiness", x.ReadinessHandler)
	r.Get("/metrics", x.MetricsHandler)
	r.Handle("/ws", x.ws)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", x.handleListSessions)
		r.Get("/{id}", x.handleGetSession)
		r.Get("/{id}/scene.png", x.handleScenePNG)
		r.Post("/{id}/reset", x.handleResetSession)
	})

	r.Get("/gate", x.handleGetGate)
	r.Post("/gate", x.handleSetGate)

	return r
}

type gateBody struct {
	Enabled *bool `json:"enabled"`
}

func (x *Explorer) handleGetGate(w http.ResponseWriter, r *http.Request) {
	enabled := x.gate.Enabled()
	writeJSON(w, http.StatusOK, gateBody{Enabled: &enabled})
}

func (x *Explorer) handleSetGate(w http.ResponseWriter, r *http.Request) {
	var body gateBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing 'enabled'")
		return
	}

	changed := x.gate.Set(*body.Enabled)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": *body.Enabled,
		"changed": changed,
	})
}

func (x *Explorer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": x.registry.List(),
	})
}

func (x *Explorer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := x.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (x *Explorer) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := x.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ResetView())
}

// handleScenePNG serves the latest rendered frame of a session's 3D view
func (x *Explorer) handleScenePNG(w http.ResponseWriter, r *http.Request) {
	s, ok := x.lookupSession(w, r)
	if !ok {
		return
	}

	scene, err := s.Scene()
	if err != nil {
		writeError(w, http.StatusConflict, "not_in_3d_mode", err.Error())
		return
	}
	frame := scene.Frame()
	if len(frame) == 0 {
		writeError(w, http.StatusServiceUnavailable, "no_frame", "scene has not rendered yet")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

func (x *Explorer) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid session id")
		return nil, false
	}
	s, err := x.registry.Get(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return nil, false
	}
	return s, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
