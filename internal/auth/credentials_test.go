package auth

import (
	"path/filepath"
	"testing"

	"github.com/medchat-dev/medchat/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSetTokensUpdatesIndependently(t *testing.T) {
	st := openTestStore(t)
	creds, err := LoadCredentials(st)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}

	if err := creds.SetTokens("acc-1", "ref-1"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	// Empty access leaves the access token untouched.
	if err := creds.SetTokens("", "ref-2"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	if creds.Access() != "acc-1" {
		t.Errorf("access: got %q, want %q", creds.Access(), "acc-1")
	}
	if creds.RefreshToken() != "ref-2" {
		t.Errorf("refresh: got %q, want %q", creds.RefreshToken(), "ref-2")
	}

	// Empty refresh leaves the refresh token untouched.
	if err := creds.SetTokens("acc-2", ""); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	if creds.RefreshToken() != "ref-2" {
		t.Errorf("refresh after access-only update: got %q, want %q", creds.RefreshToken(), "ref-2")
	}
}

func TestCredentialsHydrateFromStore(t *testing.T) {
	st := openTestStore(t)

	first, err := LoadCredentials(st)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if err := first.SetTokens("acc", "ref"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	// A second load over the same store sees the persisted pair.
	second, err := LoadCredentials(st)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if second.Access() != "acc" || second.RefreshToken() != "ref" {
		t.Errorf("hydrated pair: got (%q, %q), want (acc, ref)", second.Access(), second.RefreshToken())
	}
}

func TestIsAuthenticated(t *testing.T) {
	st := openTestStore(t)
	creds, err := LoadCredentials(st)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}

	if creds.IsAuthenticated() {
		t.Error("fresh credentials should not be authenticated")
	}

	// A refresh token alone does not make the client authenticated.
	if err := creds.SetTokens("", "ref"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	if creds.IsAuthenticated() {
		t.Error("refresh-only credentials should not be authenticated")
	}

	if err := creds.SetTokens("acc", ""); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	if !creds.IsAuthenticated() {
		t.Error("credentials with access token should be authenticated")
	}
}

func TestClearDestroysBothTokens(t *testing.T) {
	st := openTestStore(t)
	creds, err := LoadCredentials(st)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if err := creds.SetTokens("acc", "ref"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	if err := creds.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if creds.Access() != "" || creds.RefreshToken() != "" {
		t.Errorf("after Clear: got (%q, %q), want empty pair", creds.Access(), creds.RefreshToken())
	}

	// The persisted mirror is gone too.
	reloaded, err := LoadCredentials(st)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if reloaded.Access() != "" || reloaded.RefreshToken() != "" {
		t.Errorf("persisted pair after Clear: got (%q, %q), want empty", reloaded.Access(), reloaded.RefreshToken())
	}
}
