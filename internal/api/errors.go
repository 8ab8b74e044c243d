package api

import (
	"errors"
	"net/http"

	"vidmill/internal/storage"
)

// storeErrorStatus maps datastore errors onto HTTP statuses. Anything the
// store rejects that is not a sentinel is treated as malformed input.
func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrEmailTaken),
		errors.Is(err, storage.ErrUsernameTaken),
		errors.Is(err, storage.ErrChannelExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrChannelNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, storeErrorStatus(err), err)
}
