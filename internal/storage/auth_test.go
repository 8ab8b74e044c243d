package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hashed, err := hashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hashed, "pbkdf2$sha256$") {
		t.Fatalf("unexpected hash format: %q", hashed)
	}
	if err := verifyPassword(hashed, "correct horse battery staple"); err != nil {
		t.Fatalf("verify password: %v", err)
	}
	if err := verifyPassword(hashed, "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plaintext",
		"pbkdf2$md5$1000$c2FsdA$aGFzaA",
		"pbkdf2$sha256$zero$c2FsdA$aGFzaA",
	} {
		err := verifyPassword(hash, "whatever")
		if err == nil {
			t.Fatalf("expected malformed hash %q to fail", hash)
		}
		if errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("malformed hash %q should not look like a credential mismatch", hash)
		}
	}
}

func TestAuthenticateUserUniformFailure(t *testing.T) {
	store := newTestStorage(t)
	mustCreateUser(t, store, "creator@example.com", "creator")

	_, unknownErr := store.AuthenticateUser("nobody@example.com", "sup3rsecret")
	_, wrongErr := store.AuthenticateUser("creator@example.com", "not the password")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected identical credential errors, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error text must not distinguish unknown email from wrong password: %q vs %q", unknownErr, wrongErr)
	}
}

func TestAuthenticateUserSuccess(t *testing.T) {
	store := newTestStorage(t)
	created := mustCreateUser(t, store, "creator@example.com", "creator")

	user, err := store.AuthenticateUser("Creator@Example.com", "sup3rsecret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, user.ID)
	}
}

func TestAuthenticateUserEmptyPassword(t *testing.T) {
	store := newTestStorage(t)
	mustCreateUser(t, store, "creator@example.com", "creator")
	if _, err := store.AuthenticateUser("creator@example.com", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}
