package api

import (
	"fmt"
	"net/http"
	"strings"

	"vidmill/internal/observability/metrics"
	"vidmill/internal/storage"
)

type becomeAuthorRequest struct {
	ChannelName string `json:"channel_name"`
	Description string `json:"description"`
}

type becomeAuthorResponse struct {
	OK        bool   `json:"ok"`
	ChannelID string `json:"channel_id"`
}

// BecomeAuthor creates the caller's channel and flips the author flag. The
// channel insert, the flag update, and the demonstration earnings rows commit
// atomically; a second call for the same user conflicts.
func (h *Handler) BecomeAuthor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed(r.Method))
		return
	}

	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	var req becomeAuthorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ChannelName) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("channel_name is required"))
		return
	}

	channel, err := h.Store.CreateChannel(storage.CreateChannelParams{
		OwnerID:     user.ID,
		Name:        req.ChannelName,
		Description: req.Description,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.ObserveChannelEvent("created")
	h.logger().Info("channel created", "channel_id", channel.ID, "user_id", user.ID)
	writeJSON(w, http.StatusOK, becomeAuthorResponse{OK: true, ChannelID: channel.ID})
}
