// Package app provides the main TUI application that wires all views together.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/medchat-dev/medchat/internal/auth"
	"github.com/medchat-dev/medchat/internal/chat"
	"github.com/medchat-dev/medchat/internal/config"
	"github.com/medchat-dev/medchat/internal/store"
	"github.com/medchat-dev/medchat/internal/tui"
	"github.com/medchat-dev/medchat/internal/tui/views"
)

// ViewState represents the current screen of the TUI.
type ViewState int

const (
	StateAuth ViewState = iota
	StateChat
)

// App is the main TUI application. It routes between the sign-in screen
// and the chat screen, and runs all network work as Bubble Tea commands.
type App struct {
	cfg     *config.Config
	st      *store.Store
	session *auth.Session
	service *chat.Service

	state    ViewState
	theme    string
	authView views.AuthModel
	chatView views.ChatModel

	width  int
	height int
}

// New creates the App. If the stored session is still usable the app
// opens directly on the chat screen, otherwise on sign-in.
func New(cfg *config.Config, st *store.Store, session *auth.Session, service *chat.Service) *App {
	tui.SetTheme(cfg.UI.Theme)

	a := &App{
		cfg:      cfg,
		st:       st,
		session:  session,
		service:  service,
		theme:    cfg.UI.Theme,
		state:    StateAuth,
		authView: views.NewAuthModel(),
		width:    80,
		height:   24,
	}
	if session.Resume(context.Background()) {
		a.state = StateChat
		a.chatView = views.NewChatModel(a.width, a.height)
	}
	return a
}

// Init returns the initial command for the TUI.
func (a *App) Init() tea.Cmd {
	if a.state == StateChat {
		return tea.Batch(a.chatView.Init(), a.bootstrapCmd())
	}
	return a.authView.Init()
}

// Update handles messages and updates the application state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		var cmd tea.Cmd
		if a.state == StateAuth {
			a.authView, cmd = a.authView.Update(msg)
		} else {
			a.chatView, cmd = a.chatView.Update(msg)
		}
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case tui.KeyCtrlC:
			return a, tea.Quit
		case tui.KeyCtrlT:
			a.toggleTheme()
			return a, nil
		}
	}

	if a.state == StateAuth {
		return a.updateAuth(msg)
	}
	return a.updateChat(msg)
}

// View renders the active screen.
func (a *App) View() string {
	if a.state == StateAuth {
		return a.authView.View()
	}
	return a.chatView.View()
}

// ============================================================================
// Auth screen
// ============================================================================

func (a *App) updateAuth(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case views.AuthSubmitMsg:
		return a, a.authCmd(msg)

	case tui.AuthResultMsg:
		if msg.Err != nil {
			a.authView.SetError(msg.Err.Error())
			return a, nil
		}
		a.state = StateChat
		a.chatView = views.NewChatModel(a.width, a.height)
		return a, tea.Batch(a.chatView.Init(), a.bootstrapCmd())
	}

	var cmd tea.Cmd
	a.authView, cmd = a.authView.Update(msg)
	return a, cmd
}

func (a *App) authCmd(msg views.AuthSubmitMsg) tea.Cmd {
	return func() tea.Msg {
		var err error
		if msg.Register {
			err = a.session.Register(context.Background(), msg.Username, msg.Password)
		} else {
			err = a.session.Login(context.Background(), msg.Username, msg.Password)
		}
		return tui.AuthResultMsg{Err: err}
	}
}

// ============================================================================
// Chat screen
// ============================================================================

func (a *App) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case views.SendMsg:
		// The second command re-syncs shortly after dispatch so the
		// optimistic user bubble shows before the answer arrives.
		return a, tea.Batch(a.sendCmd(msg.Content), pollCmd())

	case views.SelectConvoMsg:
		return a, a.selectCmd(msg.ID)

	case views.NewConvoMsg:
		return a, func() tea.Msg {
			if _, err := a.service.NewConversation(context.Background()); err != nil {
				return tui.ErrorMsg{Err: err}
			}
			return tui.StateRefreshedMsg{}
		}

	case views.DeleteConvoMsg:
		id := msg.ID
		return a, func() tea.Msg {
			if err := a.service.DeleteConversation(context.Background(), id); err != nil {
				return tui.ErrorMsg{Err: err}
			}
			return tui.StateRefreshedMsg{}
		}

	case views.AttachImageMsg:
		return a, a.attachCmd(msg.Path)

	case views.LogoutMsg:
		a.session.Logout()
		a.service.Reset()
		a.state = StateAuth
		a.authView = views.NewAuthModel()
		return a, a.authView.Init()

	case tui.StateRefreshedMsg:
		a.syncChat()
		return a, nil

	case tui.TurnDoneMsg:
		a.chatView.SetLoading(false)
		a.chatView.SetAttachment("")
		if msg.Err != nil {
			a.chatView.SetStatus(msg.Err.Error())
		}
		a.syncChat()
		return a, nil

	case tui.ImageAttachedMsg:
		if msg.Err != nil {
			a.chatView.SetStatus(fmt.Sprintf("attach failed: %v", msg.Err))
			return a, nil
		}
		a.chatView.SetAttachment(msg.Name)
		a.syncChat()
		return a, nil

	case tui.BackfillDoneMsg:
		if msg.Renamed > 0 {
			a.chatView.SetStatus(fmt.Sprintf("renamed %d conversation(s)", msg.Renamed))
		}
		a.syncChat()
		return a, nil

	case tui.ErrorMsg:
		a.chatView.SetStatus(msg.Err.Error())
		a.syncChat()
		return a, nil
	}

	var cmd tea.Cmd
	a.chatView, cmd = a.chatView.Update(msg)
	return a, cmd
}

// toggleTheme flips between dark and light and persists the choice.
func (a *App) toggleTheme() {
	if a.theme == "light" {
		a.theme = "dark"
	} else {
		a.theme = "light"
	}
	tui.SetTheme(a.theme)
	// Best effort: the toggle still applies for this run if the write fails.
	_ = a.st.Set(store.KeyTheme, a.theme)
	if a.state == StateChat {
		a.syncChat()
	}
}

// syncChat pushes the service cache into the chat view.
func (a *App) syncChat() {
	a.chatView.SetState(
		a.service.Conversations(),
		a.service.Messages(),
		a.service.CurrentID(),
		a.service.Offline(),
	)
}

// bootstrapCmd loads conversations, backfills titles, and restores the
// last active conversation after sign-in or resume.
func (a *App) bootstrapCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if err := a.service.RefreshConversations(ctx); err != nil {
			return tui.ErrorMsg{Err: fmt.Errorf("loading conversations: %w", err)}
		}
		renamed := a.service.BackfillTitles(ctx, a.cfg.Chat.BackfillLimit)
		// Best effort: a stale saved id just leaves no active conversation.
		_ = a.service.RestoreLast(ctx)
		return tui.BackfillDoneMsg{Renamed: renamed}
	}
}

// pollCmd emits a single delayed re-sync.
func pollCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return tui.StateRefreshedMsg{}
	})
}

func (a *App) sendCmd(content string) tea.Cmd {
	return func() tea.Msg {
		// Typed input is never voice-originated, so answers are not spoken.
		_, err := a.service.SendTurn(context.Background(), content, false)
		return tui.TurnDoneMsg{Err: err}
	}
}

func (a *App) selectCmd(id string) tea.Cmd {
	return func() tea.Msg {
		if err := a.service.SelectConversation(context.Background(), id); err != nil {
			return tui.ErrorMsg{Err: err}
		}
		return tui.StateRefreshedMsg{}
	}
}

func (a *App) attachCmd(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return tui.ImageAttachedMsg{Err: err}
		}
		name := filepath.Base(path)
		a.service.AttachImage(name, data)
		return tui.ImageAttachedMsg{Name: name}
	}
}
