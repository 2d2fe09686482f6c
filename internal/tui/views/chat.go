package views

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/medchat-dev/medchat/internal/chat"
	"github.com/medchat-dev/medchat/internal/tui"
)

// ============================================================================
// Message Types
// ============================================================================

// SendMsg is sent when the user submits a chat turn.
type SendMsg struct {
	Content string
}

// SelectConvoMsg is sent when the user picks a conversation in the sidebar.
type SelectConvoMsg struct {
	ID string
}

// NewConvoMsg requests a fresh conversation.
type NewConvoMsg struct{}

// DeleteConvoMsg requests deletion of a conversation.
type DeleteConvoMsg struct {
	ID string
}

// AttachImageMsg stages a local image file for the next turn.
type AttachImageMsg struct {
	Path string
}

// LogoutMsg signals that the user wants to sign out.
type LogoutMsg struct{}

// ============================================================================
// ChatModel
// ============================================================================

const sidebarWidth = 28

// ChatModel is the view model for the main chat screen: a conversation
// sidebar, a message viewport, and a composer.
type ChatModel struct {
	convos     []chat.Conversation
	messages   []chat.Message
	currentID  string
	offline    bool
	selected   int
	focusSide  bool
	attachment string

	textarea   textarea.Model
	viewport   viewport.Model
	spinner    spinner.Model
	imageInput textinput.Model
	imageMode  bool

	isLoading bool
	status    string
	width     int
	height    int
}

// NewChatModel creates the chat screen sized to the given terminal.
func NewChatModel(width, height int) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Type your question... (Enter to send)"
	ta.CharLimit = 5000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	// Shift+Enter / Ctrl+J for newline, plain Enter submits.
	keyMap := ta.KeyMap
	keyMap.InsertNewline = key.NewBinding(
		key.WithKeys("shift+enter", "ctrl+j"),
		key.WithHelp("shift+enter", "new line"),
	)
	ta.KeyMap = keyMap

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = tui.TitleStyle

	ii := textinput.New()
	ii.Placeholder = "path to image file"
	ii.CharLimit = 512

	m := ChatModel{
		textarea:   ta,
		spinner:    sp,
		imageInput: ii,
		viewport:   viewport.New(80, 20),
		width:      width,
		height:     height,
	}
	m.resize(width, height)
	return m
}

// Init returns the initial command for the chat view.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// SetState replaces the rendered conversation list and history.
func (m *ChatModel) SetState(convos []chat.Conversation, messages []chat.Message, currentID string, offline bool) {
	m.convos = convos
	m.messages = messages
	m.currentID = currentID
	m.offline = offline
	if m.selected >= len(convos) {
		m.selected = 0
	}
	for i, c := range convos {
		if c.ID == currentID {
			m.selected = i
			break
		}
	}
	m.viewport.SetContent(m.formatHistory())
	m.viewport.GotoBottom()
}

// SetLoading toggles the thinking spinner and composer.
func (m *ChatModel) SetLoading(loading bool) {
	m.isLoading = loading
}

// SetStatus sets the transient status line.
func (m *ChatModel) SetStatus(text string) {
	m.status = text
}

// SetAttachment records the staged image name shown above the composer.
func (m *ChatModel) SetAttachment(name string) {
	m.attachment = name
}

// Update handles messages for the chat view.
func (m ChatModel) Update(msg tea.Msg) (ChatModel, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.viewport.SetContent(m.formatHistory())
		return m, nil

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.imageMode {
			return m.updateImageMode(msg)
		}

		switch msg.String() {
		case tui.KeyTab:
			m.focusSide = !m.focusSide
			if m.focusSide {
				m.textarea.Blur()
			} else {
				cmds = append(cmds, m.textarea.Focus())
			}
			return m, tea.Batch(cmds...)

		case tui.KeyCtrlN:
			return m, func() tea.Msg { return NewConvoMsg{} }

		case tui.KeyCtrlO:
			m.imageMode = true
			m.imageInput.Reset()
			return m, m.imageInput.Focus()

		case tui.KeyCtrlL:
			return m, func() tea.Msg { return LogoutMsg{} }
		}

		if m.focusSide {
			return m.updateSidebar(msg)
		}

		if msg.String() == tui.KeyEnter && !m.isLoading {
			content := strings.TrimSpace(m.textarea.Value())
			if content == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.isLoading = true
			m.status = ""
			return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
				return SendMsg{Content: content}
			})
		}
	}

	if !m.isLoading && !m.focusSide {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// updateSidebar handles keys while the conversation list has focus.
func (m ChatModel) updateSidebar(msg tea.KeyMsg) (ChatModel, tea.Cmd) {
	switch msg.String() {
	case tui.KeyUp:
		if m.selected > 0 {
			m.selected--
		}
	case tui.KeyDown:
		if m.selected < len(m.convos)-1 {
			m.selected++
		}
	case tui.KeyEnter:
		if m.selected < len(m.convos) {
			id := m.convos[m.selected].ID
			return m, func() tea.Msg { return SelectConvoMsg{ID: id} }
		}
	case tui.KeyCtrlX:
		if m.selected < len(m.convos) {
			id := m.convos[m.selected].ID
			return m, func() tea.Msg { return DeleteConvoMsg{ID: id} }
		}
	}
	return m, nil
}

// updateImageMode handles keys while the image path prompt is open.
func (m ChatModel) updateImageMode(msg tea.KeyMsg) (ChatModel, tea.Cmd) {
	switch msg.String() {
	case tui.KeyEsc:
		m.imageMode = false
		return m, nil
	case tui.KeyEnter:
		path := strings.TrimSpace(m.imageInput.Value())
		m.imageMode = false
		if path == "" {
			return m, nil
		}
		return m, func() tea.Msg { return AttachImageMsg{Path: path} }
	}
	var cmd tea.Cmd
	m.imageInput, cmd = m.imageInput.Update(msg)
	return m, cmd
}

// resize recomputes component dimensions from the terminal size.
func (m *ChatModel) resize(width, height int) {
	m.width = width
	m.height = height

	mainWidth := width - sidebarWidth - 6
	if mainWidth < 20 {
		mainWidth = 20
	}
	vpHeight := height - 10
	if vpHeight < 5 {
		vpHeight = 5
	}

	m.viewport.Width = mainWidth
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(mainWidth)
	m.imageInput.Width = mainWidth - 4
}

// View renders the chat view.
func (m ChatModel) View() string {
	sidebar := m.renderSidebar()

	var main strings.Builder
	main.WriteString(m.viewport.View())
	main.WriteString("\n")

	if m.attachment != "" {
		main.WriteString(tui.WarningStyle.Render("📎 " + m.attachment))
		main.WriteString("\n")
	}

	switch {
	case m.imageMode:
		main.WriteString(tui.TitleStyle.Render("Attach image"))
		main.WriteString("\n")
		main.WriteString(m.imageInput.View())
		main.WriteString("\n")
		main.WriteString(tui.DimStyle.Render("Enter: attach · Esc: cancel"))
	case m.isLoading:
		main.WriteString(fmt.Sprintf("%s Thinking...", m.spinner.View()))
		main.WriteString("\n")
		main.WriteString(tui.DimStyle.Render(m.textarea.View()))
	default:
		main.WriteString(m.textarea.View())
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, "  ", main.String())

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// renderSidebar renders the conversation list column.
func (m ChatModel) renderSidebar() string {
	var b strings.Builder
	b.WriteString(tui.TitleStyle.Render("Conversations"))
	b.WriteString("\n\n")

	if len(m.convos) == 0 {
		b.WriteString(tui.DimStyle.Render("(none yet)"))
	}
	for i, c := range m.convos {
		title := c.DisplayTitle()
		if runes := []rune(title); len(runes) > sidebarWidth-4 {
			title = string(runes[:sidebarWidth-4]) + "…"
		}
		line := "  " + title
		if c.ID == m.currentID {
			line = "• " + title
		}
		if m.focusSide && i == m.selected {
			b.WriteString(tui.SelectedStyle.Render("> " + title))
		} else if c.ID == m.currentID {
			b.WriteString(tui.SuccessStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().Width(sidebarWidth).Render(b.String())
}

// renderStatusBar renders the bottom hint line.
func (m ChatModel) renderStatusBar() string {
	left := "Enter: send · Tab: sidebar · Ctrl+N: new · Ctrl+O: image · Ctrl+X: delete · Ctrl+T: theme · Ctrl+L: sign out"
	if m.status != "" {
		left = m.status
	}
	if m.offline {
		left = "offline — showing cached history · " + left
	}
	if m.width > 0 {
		return tui.StatusBarStyle.Width(m.width).Render(left)
	}
	return tui.StatusBarStyle.Render(left)
}

// formatHistory formats the active conversation for the viewport.
func (m ChatModel) formatHistory() string {
	if len(m.messages) == 0 {
		return tui.DimStyle.Render("No messages yet. Ask something!")
	}

	var b strings.Builder
	for i, msg := range m.messages {
		var prefix string
		var style lipgloss.Style

		switch msg.Role {
		case chat.RoleUser:
			prefix = "You: "
			style = tui.UserStyle
		case chat.RoleBot:
			prefix = "MedChat: "
			style = tui.BotStyle
		default:
			prefix = msg.Role + ": "
			style = tui.DimStyle
		}

		b.WriteString(style.Render(prefix))

		if msg.MType == chat.TypeImage {
			name := filepath.Base(msg.ImagePath)
			b.WriteString(tui.DimStyle.Render("[image] " + name))
			if msg.Content != "" {
				b.WriteString("\n")
				b.WriteString(msg.Content)
			}
		} else {
			b.WriteString(msg.Content)
		}

		if msg.Pending {
			b.WriteString(" ")
			b.WriteString(tui.DimStyle.Render("(sending...)"))
		}
		if msg.Failed {
			b.WriteString(" ")
			b.WriteString(tui.WarningStyle.Render("(failed)"))
		}

		if i < len(m.messages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
