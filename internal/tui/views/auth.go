// Package views provides TUI view components for the medchat application.
package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/medchat-dev/medchat/internal/tui"
)

// AuthSubmitMsg is sent when the user submits the sign-in form.
type AuthSubmitMsg struct {
	Username string
	Password string
	Register bool
}

// AuthModel is the view model for the sign-in / registration screen.
type AuthModel struct {
	username textinput.Model
	password textinput.Model
	focus    int // 0 = username, 1 = password
	register bool
	busy     bool
	errText  string
	width    int
	height   int
}

// NewAuthModel creates the sign-in form with the username field focused.
func NewAuthModel() AuthModel {
	user := textinput.New()
	user.Placeholder = "username"
	user.CharLimit = 128
	user.Width = 32
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.CharLimit = 128
	pass.Width = 32
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	return AuthModel{
		username: user,
		password: pass,
	}
}

// Init returns the initial command for the auth view.
func (m AuthModel) Init() tea.Cmd {
	return textinput.Blink
}

// SetError shows an error line under the form and re-enables input.
func (m *AuthModel) SetError(text string) {
	m.errText = text
	m.busy = false
}

// Update handles messages for the auth view.
func (m AuthModel) Update(msg tea.Msg) (AuthModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case tui.KeyTab, tui.KeyDown, tui.KeyUp, "shift+tab":
			m.focus = 1 - m.focus
			if m.focus == 0 {
				m.password.Blur()
				return m, m.username.Focus()
			}
			m.username.Blur()
			return m, m.password.Focus()

		case tui.KeyCtrlR:
			m.register = !m.register
			m.errText = ""
			return m, nil

		case tui.KeyEnter:
			username := strings.TrimSpace(m.username.Value())
			password := m.password.Value()
			if username == "" || password == "" {
				m.errText = "Enter a username and password."
				return m, nil
			}
			m.busy = true
			m.errText = ""
			register := m.register
			return m, func() tea.Msg {
				return AuthSubmitMsg{Username: username, Password: password, Register: register}
			}
		}
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

// View renders the auth view.
func (m AuthModel) View() string {
	var b strings.Builder

	title := "Sign in to MedChat"
	if m.register {
		title = "Create a MedChat account"
	}
	b.WriteString(tui.TitleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(m.username.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")

	if m.busy {
		b.WriteString(tui.DimStyle.Render("Signing in..."))
	} else if m.errText != "" {
		b.WriteString(tui.ErrorStyle.Render(m.errText))
	}
	b.WriteString("\n\n")

	action := "sign in"
	toggle := "register instead"
	if m.register {
		action = "register"
		toggle = "sign in instead"
	}
	footer := tui.DimStyle.Render("Enter: " + action + " · Tab: switch field · Ctrl+R: " + toggle + " · Ctrl+C: quit")
	b.WriteString(footer)

	boxed := tui.BoxStyle.Render(b.String())
	if m.height > 0 {
		padding := (m.height - strings.Count(boxed, "\n") - 1) / 3
		if padding > 0 {
			boxed = strings.Repeat("\n", padding) + boxed
		}
	}
	return boxed
}
