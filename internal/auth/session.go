// session.go implements the session lifecycle: login, registration,
// resume-on-start, and the instant logout with its fire-and-forget backend
// notification.
package auth

import (
	"context"
	"time"

	"github.com/medchat-dev/medchat/internal/api"
	"github.com/medchat-dev/medchat/internal/log"
)

// DefaultLogoutTimeout bounds the background logout notification. It is short
// on purpose: the local teardown never waits for it.
const DefaultLogoutTimeout = 400 * time.Millisecond

// Session ties the credential store to the backend client.
type Session struct {
	creds  *Credentials
	client *api.Client
	logger *log.Logger

	// LogoutTimeout overrides DefaultLogoutTimeout when non-zero.
	LogoutTimeout time.Duration
}

// NewSession constructs a session over the given credentials and client.
func NewSession(creds *Credentials, client *api.Client, logger *log.Logger) *Session {
	return &Session{creds: creds, client: client, logger: logger}
}

// Credentials exposes the underlying credential store.
func (s *Session) Credentials() *Credentials {
	return s.creds
}

// Login exchanges credentials for tokens and stores them.
func (s *Session) Login(ctx context.Context, username, password string) error {
	pair, err := s.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := s.creds.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return err
	}

	s.logEvent(log.LogEvent{Event: log.EventLogin})
	return nil
}

// Register creates an account and stores its first token pair.
func (s *Session) Register(ctx context.Context, username, password string) error {
	pair, err := s.client.Register(ctx, username, password)
	if err != nil {
		return err
	}
	if err := s.creds.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return err
	}

	s.logEvent(log.LogEvent{Event: log.EventRegister})
	return nil
}

// Resume reports whether a live session exists at startup. An access token
// means yes without a network call; a lone refresh token triggers one silent
// refresh attempt; neither means unauthenticated.
func (s *Session) Resume(ctx context.Context) bool {
	if s.creds.Access() != "" {
		s.logEvent(log.LogEvent{Event: log.EventSessionResumed})
		return true
	}
	if s.creds.RefreshToken() == "" {
		return false
	}
	if s.client.RefreshAccess(ctx) {
		s.logEvent(log.LogEvent{Event: log.EventSessionResumed})
		return true
	}
	return false
}

// Logout tears the session down immediately. The backend is notified from a
// detached goroutine with its own short deadline; its outcome is discarded
// and the local token wipe does not wait for it. Logout never fails from the
// caller's perspective.
func (s *Session) Logout() {
	refresh := s.creds.RefreshToken()

	timeout := s.LogoutTimeout
	if timeout <= 0 {
		timeout = DefaultLogoutTimeout
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = s.client.Logout(ctx, refresh)
	}()

	if err := s.creds.Clear(); err != nil {
		s.logEvent(log.LogEvent{Event: log.EventLogout, Error: err.Error()})
		return
	}
	s.logEvent(log.LogEvent{Event: log.EventLogout})
}

func (s *Session) logEvent(event log.LogEvent) {
	if s.logger != nil {
		_ = s.logger.Append(event)
	}
}
