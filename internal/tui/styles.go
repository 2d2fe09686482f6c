package tui

import "github.com/charmbracelet/lipgloss"

// palette holds the colors for one UI theme.
type palette struct {
	primary   string
	secondary string
	warning   string
	errorC    string
	dim       string
	statusBG  string
	statusFG  string
}

var palettes = map[string]palette{
	"dark": {
		primary:   "#7C3AED", // Purple
		secondary: "#10B981", // Green
		warning:   "#F59E0B", // Amber
		errorC:    "#EF4444", // Red
		dim:       "#6B7280", // Gray
		statusBG:  "#1F2937",
		statusFG:  "#9CA3AF",
	},
	"light": {
		primary:   "#6D28D9",
		secondary: "#047857",
		warning:   "#B45309",
		errorC:    "#B91C1C",
		dim:       "#9CA3AF",
		statusBG:  "#E5E7EB",
		statusFG:  "#374151",
	},
}

// Style variables for consistent TUI rendering.
// Rebuilt by SetTheme; defaults to the dark palette.
var (
	// BoxStyle provides a rounded border box with primary color.
	BoxStyle lipgloss.Style

	// TitleStyle renders titles in primary color with bold.
	TitleStyle lipgloss.Style

	// SelectedStyle highlights selected items in primary color.
	SelectedStyle lipgloss.Style

	// DimStyle renders dim/muted text.
	DimStyle lipgloss.Style

	// SuccessStyle renders success messages.
	SuccessStyle lipgloss.Style

	// ErrorStyle renders error messages.
	ErrorStyle lipgloss.Style

	// WarningStyle renders warning messages.
	WarningStyle lipgloss.Style

	// StatusBarStyle provides styling for the status bar.
	StatusBarStyle lipgloss.Style

	// UserStyle renders the "You:" prefix of chat bubbles.
	UserStyle lipgloss.Style

	// BotStyle renders the assistant prefix of chat bubbles.
	BotStyle lipgloss.Style
)

func init() {
	SetTheme("dark")
}

// SetTheme rebuilds the shared style variables for the named theme.
// Unknown names fall back to dark.
func SetTheme(name string) {
	p, ok := palettes[name]
	if !ok {
		p = palettes["dark"]
	}

	BoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(p.primary)).
		Padding(1, 2)

	TitleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.primary)).
		Bold(true)

	SelectedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.primary)).
		Bold(true)

	DimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.dim))

	SuccessStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.secondary))

	ErrorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.errorC))

	WarningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.warning))

	StatusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color(p.statusBG)).
		Foreground(lipgloss.Color(p.statusFG)).
		Padding(0, 1)

	UserStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.secondary)).
		Bold(true)

	BotStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.primary)).
		Bold(true)
}
