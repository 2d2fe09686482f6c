// Package tui implements the terminal user interface using Bubble Tea.
package tui

// ============================================================================
// Auth Messages
// ============================================================================

// AuthResultMsg reports the outcome of a login or register attempt.
type AuthResultMsg struct {
	Err error
}

// LogoutDoneMsg signals that tokens were cleared and the app should
// return to the sign-in screen.
type LogoutDoneMsg struct{}

// ============================================================================
// Chat Messages
// ============================================================================

// StateRefreshedMsg signals that the conversation list or the active
// message history changed and the chat view should re-render.
type StateRefreshedMsg struct{}

// TurnDoneMsg reports the outcome of a sent chat turn. The resulting
// bubbles (including error bubbles) are already in the service cache.
type TurnDoneMsg struct {
	Err error
}

// ImageAttachedMsg reports the outcome of staging an image for the
// next turn.
type ImageAttachedMsg struct {
	Name string
	Err  error
}

// BackfillDoneMsg reports how many conversations were auto-renamed
// during startup title backfill.
type BackfillDoneMsg struct {
	Renamed int
}

// ============================================================================
// Utility Messages
// ============================================================================

// ErrorMsg is a generic error message for unrecoverable errors.
type ErrorMsg struct {
	Err error
}
