package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"vidmill/internal/auth"
	"vidmill/internal/storage"
	"vidmill/internal/thumbnail"
)

type Handler struct {
	Store      storage.Repository
	Sessions   *auth.SessionManager
	Thumbnails *thumbnail.Service
	Logger     *slog.Logger
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(auth.DefaultSessionTTL)
	}
	return &Handler{Store: store, Sessions: sessions}
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(auth.DefaultSessionTTL)
	}
	return h.Sessions
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed(r.Method))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	checks := map[string]string{}
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			checks["datastore"] = err.Error()
			status = "degraded"
		} else {
			checks["datastore"] = "ok"
		}
	}
	if err := h.sessionManager().Ping(ctx); err != nil {
		checks["sessions"] = err.Error()
		status = "degraded"
	} else {
		checks["sessions"] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
