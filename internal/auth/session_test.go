package auth

import (
	"testing"
	"time"
)

func TestSessionManagerCreateAndValidate(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	token, expiresAt, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %s", expiresAt)
	}
	userID, _, ok, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("validate session: %v", err)
	}
	if !ok {
		t.Fatal("expected token to validate")
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}
}

func TestSessionManagerValidateDoesNotExtendExpiry(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	token, expiresAt, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, observed, ok, err := manager.Validate(token)
		if err != nil || !ok {
			t.Fatalf("validate session: ok=%v err=%v", ok, err)
		}
		if !observed.Equal(expiresAt) {
			t.Fatalf("expiry moved from %s to %s", expiresAt, observed)
		}
	}
}

func TestSessionManagerRejectsEmptyUserID(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	if _, _, err := manager.Create("  "); err != ErrInvalidUserID {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestSessionManagerRevoke(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	token, _, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := manager.Revoke(token); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if _, _, ok, err := manager.Validate(token); err != nil || ok {
		t.Fatalf("expected revoked token to fail validation, ok=%v err=%v", ok, err)
	}
	// Revoking again or revoking nothing must not fail.
	if err := manager.Revoke(token); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := manager.Revoke(""); err != nil {
		t.Fatalf("revoke empty token: %v", err)
	}
}

func TestSessionManagerExpiredTokenBehavesLikeMissing(t *testing.T) {
	current := time.Unix(1_700_000_000, 0).UTC()
	manager := NewSessionManager(time.Minute, WithClock(func() time.Time { return current }))
	token, _, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	current = current.Add(2 * time.Minute)
	_, _, okExpired, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("validate expired: %v", err)
	}
	_, _, okMissing, err := manager.Validate("does-not-exist")
	if err != nil {
		t.Fatalf("validate missing: %v", err)
	}
	if okExpired || okMissing {
		t.Fatalf("expected both lookups to fail, expired=%v missing=%v", okExpired, okMissing)
	}
}

func TestSessionManagerPurgeExpired(t *testing.T) {
	current := time.Unix(1_700_000_000, 0).UTC()
	store := NewMemorySessionStore()
	manager := NewSessionManager(time.Minute, WithStore(store), WithClock(func() time.Time { return current }))
	stale, _, err := manager.Create("user-1")
	if err != nil {
		t.Fatalf("create stale session: %v", err)
	}
	current = current.Add(2 * time.Minute)
	fresh, _, err := manager.Create("user-2")
	if err != nil {
		t.Fatalf("create fresh session: %v", err)
	}
	if err := manager.PurgeExpired(); err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if _, ok, _ := store.Get(stale); ok {
		t.Fatal("expected stale session to be purged")
	}
	if _, ok, _ := store.Get(fresh); !ok {
		t.Fatal("expected fresh session to survive purge")
	}
}
