// Package auth manages the credential pair and the session lifecycle.
// This file holds the credential store: the in-memory token pair plus its
// persisted mirror in the local state database.
package auth

import (
	"fmt"
	"sync"

	"github.com/medchat-dev/medchat/internal/store"
)

// Credentials holds the current access/refresh token pair. Every mutation is
// written through to the local state store; construction hydrates from it.
// Implements api.CredentialStore.
type Credentials struct {
	store *store.Store

	mu      sync.Mutex
	access  string
	refresh string
}

// LoadCredentials hydrates the token pair from the local state store.
func LoadCredentials(st *store.Store) (*Credentials, error) {
	access, err := st.Get(store.KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("load access token: %w", err)
	}
	refresh, err := st.Get(store.KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	return &Credentials{store: st, access: access, refresh: refresh}, nil
}

// Access returns the current access token, or "" when unauthenticated.
func (c *Credentials) Access() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

// RefreshToken returns the current refresh token, or "".
func (c *Credentials) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh
}

// IsAuthenticated reports whether an access token is present. A missing
// access token with a remaining refresh token still allows a silent resume.
func (c *Credentials) IsAuthenticated() bool {
	return c.Access() != ""
}

// SetTokens updates each token independently; an empty argument leaves the
// corresponding token unchanged. Updated tokens are persisted immediately.
func (c *Credentials) SetTokens(access, refresh string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if access != "" {
		if err := c.store.Set(store.KeyAccessToken, access); err != nil {
			return fmt.Errorf("persist access token: %w", err)
		}
		c.access = access
	}
	if refresh != "" {
		if err := c.store.Set(store.KeyRefreshToken, refresh); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
		c.refresh = refresh
	}

	return nil
}

// Clear destroys both tokens, in memory and persisted.
func (c *Credentials) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.access = ""
	c.refresh = ""

	if err := c.store.Delete(store.KeyAccessToken); err != nil {
		return fmt.Errorf("clear access token: %w", err)
	}
	if err := c.store.Delete(store.KeyRefreshToken); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}
