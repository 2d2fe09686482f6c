// bootstrap.go wires the shared runtime pieces every command needs:
// config, local state store, logger, credentials, API client, session,
// and the chat service.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/medchat-dev/medchat/internal/api"
	"github.com/medchat-dev/medchat/internal/auth"
	"github.com/medchat-dev/medchat/internal/chat"
	"github.com/medchat-dev/medchat/internal/config"
	"github.com/medchat-dev/medchat/internal/log"
	"github.com/medchat-dev/medchat/internal/store"
)

// env holds the wired runtime for one command invocation.
type env struct {
	cfg     *config.Config
	store   *store.Store
	logger  *log.Logger
	creds   *auth.Credentials
	client  *api.Client
	session *auth.Session
	service *chat.Service
}

// bootstrap builds the runtime from ~/.medchat. A missing config file
// falls back to defaults; a missing state directory is created.
func bootstrap() (*env, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	cfg, err := config.ReadConfig(home)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if apiBaseFlag != "" {
		cfg.APIBase = apiBaseFlag
	}

	stateDir, err := config.StateDir(home)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(stateDir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	// Persisted preferences win over the config file.
	if v, getErr := st.Get(store.KeyLang); getErr == nil && v != "" {
		cfg.Chat.Lang = v
	}
	if v, getErr := st.Get(store.KeyTheme); getErr == nil && v != "" {
		cfg.UI.Theme = v
	}

	logger, err := log.NewLogger(home)
	if err != nil {
		st.Close()
		return nil, err
	}

	creds, err := auth.LoadCredentials(st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	client := api.NewClient(cfg.APIBase, creds)
	client.Timeout = time.Duration(cfg.Request.TimeoutMS) * time.Millisecond
	client.Logger = logger

	session := auth.NewSession(creds, client, logger)
	session.LogoutTimeout = time.Duration(cfg.Request.LogoutTimeoutMS) * time.Millisecond

	service := chat.NewService(client, st, logger, chat.Options{
		TopK:          cfg.Chat.TopK,
		Lang:          cfg.Chat.Lang,
		Trace:         cfg.Chat.Trace,
		TTS:           cfg.UI.TTS,
		BackfillLimit: cfg.Chat.BackfillLimit,
	})

	return &env{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		creds:   creds,
		client:  client,
		session: session,
		service: service,
	}, nil
}

// close releases the state store.
func (e *env) close() {
	e.store.Close()
}

// requireAuth ensures the stored session is usable, refreshing the
// access token if needed.
func (e *env) requireAuth(cmdName string) error {
	if !e.session.Resume(context.Background()) {
		return fmt.Errorf("not signed in. Run 'medchat login' before '%s'", cmdName)
	}
	return nil
}
