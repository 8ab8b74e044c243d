package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vidmill/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// TokenHeader carries the session token on API requests. Header lookup is
// case-insensitive.
const TokenHeader = "X-Auth-Token"

var (
	errMissingToken   = errors.New("authentication required")
	errSessionExpired = errors.New("session expired")
)

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken pulls the session token off the request. The X-Auth-Token
// header is canonical; an Authorization bearer header is accepted as well.
func ExtractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// AuthenticateRequest validates the session token on the request and returns
// the acting user. Expired and unknown tokens are indistinguishable: both
// fail with the session-expired error. The lookup never refreshes expiry.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, errMissingToken
	}
	userID, _, ok, err := h.sessionManager().Validate(token)
	if err != nil {
		return models.User{}, fmt.Errorf("validate session: %w", err)
	}
	if !ok {
		return models.User{}, errSessionExpired
	}
	user, exists := h.Store.GetUser(userID)
	if !exists {
		return models.User{}, errSessionExpired
	}
	return user, nil
}

// RequireUser wraps a handler with the shared session check. Every protected
// endpoint goes through this exact path so authentication cannot drift
// between handlers.
func (h *Handler) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.AuthenticateRequest(r)
		if err != nil {
			if errors.Is(err, errMissingToken) || errors.Is(err, errSessionExpired) {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		next(w, r.WithContext(ContextWithUser(r.Context(), user)))
	}
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingToken)
		return models.User{}, false
	}
	return user, true
}
