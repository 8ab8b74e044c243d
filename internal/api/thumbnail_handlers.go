package api

import (
	"fmt"
	"net/http"
	"strings"

	"vidmill/internal/observability/metrics"
)

type generateThumbnailRequest struct {
	Prompt string `json:"prompt"`
}

type generateThumbnailResponse struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// GenerateThumbnail proxies the prompt to the image-generation upstream and
// re-hosts the result in object storage. A blank prompt is rejected before
// any upstream call is made; upstream and storage failures surface directly
// as a 500 with no retry.
func (h *Handler) GenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed(r.Method))
		return
	}
	if h.Thumbnails == nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("thumbnail generation is not configured"))
		return
	}

	var req generateThumbnailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}

	url, err := h.Thumbnails.CreateThumbnail(r.Context(), prompt)
	if err != nil {
		metrics.ObserveThumbnailEvent("failed")
		h.logger().Error("thumbnail generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	metrics.ObserveThumbnailEvent("generated")
	writeJSON(w, http.StatusOK, generateThumbnailResponse{URL: url, Prompt: prompt})
}
