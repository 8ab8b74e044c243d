package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vidmill/internal/observability/metrics"
	"vidmill/internal/storage"
)

type uploadVideoRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
	Category     string `json:"category"`
}

type uploadVideoResponse struct {
	OK      bool   `json:"ok"`
	VideoID string `json:"video_id"`
}

// Stats returns the author dashboard: channel summary, earnings grouped by
// source, the trailing six-calendar-month series, the ten most recent videos,
// and the trailing-30-day subscriber count.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed(r.Method))
		return
	}

	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	channel, exists := h.Store.GetChannelByOwner(user.ID)
	if !exists {
		writeError(w, http.StatusNotFound, storage.ErrChannelNotFound)
		return
	}

	stats, err := h.Store.ChannelStats(channel.ID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrChannelNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UploadVideo records video metadata against the caller's channel. The media
// itself is hosted elsewhere; only the row is created here.
func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed(r.Method))
		return
	}

	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	channel, exists := h.Store.GetChannelByOwner(user.ID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("create a channel first"))
		return
	}

	var req uploadVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}

	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		ChannelID:    channel.ID,
		Title:        req.Title,
		Description:  req.Description,
		ThumbnailURL: req.ThumbnailURL,
		Category:     req.Category,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.ObserveVideoUpload(video.Category)
	writeJSON(w, http.StatusOK, uploadVideoResponse{OK: true, VideoID: video.ID})
}
