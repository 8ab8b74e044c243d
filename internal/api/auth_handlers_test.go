package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidmill/internal/auth"
	"vidmill/internal/storage"
	"vidmill/internal/testsupport"
)

func newTestHandler(t *testing.T, sessionOpts ...auth.SessionOption) *Handler {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	sessions := auth.NewSessionManager(auth.DefaultSessionTTL, sessionOpts...)
	return NewHandler(store, sessions)
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, recorder.Body.String())
	}
	return payload
}

func registerUser(t *testing.T, h *Handler, email, username string) string {
	t.Helper()
	body := `{"email":"` + email + `","password":"sup3rsecret","username":"` + username + `"}`
	recorder := doJSON(t, h.Register, http.MethodPost, "/register", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("register returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatalf("register returned empty token")
	}
	return token
}

func TestRegisterCreatesUserAndSession(t *testing.T) {
	h := newTestHandler(t)
	body := `{"email":"  Alice@Example.COM ","password":"sup3rsecret","username":"alice","display_name":"Alice"}`
	recorder := doJSON(t, h.Register, http.MethodPost, "/register", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if token, _ := payload["token"].(string); token == "" {
		t.Fatalf("expected non-empty token")
	}
	user, ok := payload["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected user object, got %v", payload["user"])
	}
	if user["email"] != "alice@example.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}
	if user["is_author"] != false {
		t.Fatalf("expected is_author=false, got %v", user["is_author"])
	}
	if user["display_name"] != "Alice" {
		t.Fatalf("unexpected display name %v", user["display_name"])
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestHandler(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing email", `{"password":"sup3rsecret","username":"alice"}`},
		{"missing password", `{"email":"a@x.com","username":"alice"}`},
		{"missing username", `{"email":"a@x.com","password":"sup3rsecret"}`},
		{"short password", `{"email":"a@x.com","password":"abc","username":"alice"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := doJSON(t, h.Register, http.MethodPost, "/register", "", tc.body)
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", recorder.Code)
			}
		})
	}
	// None of the rejected registrations may have created a user.
	if _, exists := h.Store.FindUserByEmail("a@x.com"); exists {
		t.Fatalf("user created despite validation failure")
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	h := newTestHandler(t)
	registerUser(t, h, "a@x.com", "alice")
	recorder := doJSON(t, h.Register, http.MethodPost, "/register", "", `{"email":"a@x.com","password":"sup3rsecret","username":"bob"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestLoginIssuesFreshSession(t *testing.T) {
	h := newTestHandler(t)
	first := registerUser(t, h, "a@x.com", "alice")
	recorder := doJSON(t, h.Login, http.MethodPost, "/login", "", `{"email":"A@X.com","password":"sup3rsecret"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	token, _ := payload["token"].(string)
	if token == "" || token == first {
		t.Fatalf("expected fresh token, got %q", token)
	}
}

func TestLoginUniformFailure(t *testing.T) {
	h := newTestHandler(t)
	registerUser(t, h, "a@x.com", "alice")

	unknown := doJSON(t, h.Login, http.MethodPost, "/login", "", `{"email":"nobody@x.com","password":"sup3rsecret"}`)
	wrong := doJSON(t, h.Login, http.MethodPost, "/login", "", `{"email":"a@x.com","password":"wrongpass"}`)
	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("login failure responses differ: %q vs %q", unknown.Body.String(), wrong.Body.String())
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	h := newTestHandler(t)
	token := registerUser(t, h, "a@x.com", "alice")

	me := doJSON(t, h.RequireUser(h.Me), http.MethodGet, "/me", token, "")
	if me.Code != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", me.Code)
	}

	logout := doJSON(t, h.Logout, http.MethodPost, "/logout", token, "")
	if logout.Code != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", logout.Code)
	}
	payload := decodeBody(t, logout)
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload)
	}

	me = doJSON(t, h.RequireUser(h.Me), http.MethodGet, "/me", token, "")
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", me.Code)
	}
}

func TestLogoutWithoutTokenSucceeds(t *testing.T) {
	h := newTestHandler(t)
	recorder := doJSON(t, h.Logout, http.MethodPost, "/logout", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestMeReturnsProfile(t *testing.T) {
	h := newTestHandler(t)
	token := registerUser(t, h, "a@x.com", "alice")
	recorder := doJSON(t, h.RequireUser(h.Me), http.MethodGet, "/me", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	user, ok := payload["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected user object, got %v", payload)
	}
	if user["username"] != "alice" || user["email"] != "a@x.com" {
		t.Fatalf("unexpected profile %v", user)
	}
}

func TestExpiredSessionMatchesMissingToken(t *testing.T) {
	current := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHandler(t, auth.WithClock(func() time.Time { return current }))
	token := registerUser(t, h, "a@x.com", "alice")

	current = current.Add(auth.DefaultSessionTTL + time.Hour)
	expired := doJSON(t, h.RequireUser(h.Me), http.MethodGet, "/me", token, "")
	missing := doJSON(t, h.RequireUser(h.Me), http.MethodGet, "/me", "", "")
	if expired.Code != http.StatusUnauthorized || missing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", expired.Code, missing.Code)
	}
}

func TestExtractTokenSources(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("x-auth-token", "abc")
	if got := ExtractToken(req); got != "abc" {
		t.Fatalf("expected header token, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer xyz")
	if got := ExtractToken(req); got != "xyz" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	if got := ExtractToken(req); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	recorder := doJSON(t, h.Register, http.MethodGet, "/register", "", "")
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
	if allow := recorder.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("expected Allow: POST, got %q", allow)
	}
}

func TestLogoutExpiresStoredSession(t *testing.T) {
	sessionStore := testsupport.NewSessionStoreStub()
	h := newTestHandler(t, auth.WithStore(sessionStore))
	token := registerUser(t, h, "stub@example.com", "stubuser")

	if sessionStore.Len() != 1 {
		t.Fatalf("expected one stored session, got %d", sessionStore.Len())
	}
	recorder := doJSON(t, h.Logout, http.MethodPost, "/logout", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("logout returned %d: %s", recorder.Code, recorder.Body.String())
	}
	record, ok := sessionStore.Record(token)
	if !ok {
		t.Fatal("expected the record to remain in the store for the purge sweep")
	}
	if record.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected expiry rewritten into the past, got %s", record.ExpiresAt)
	}
}
