package chat

import (
	"strings"
	"testing"
)

func TestIsPlaceholderTitle(t *testing.T) {
	cases := []struct {
		title string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"conversation", true},
		{"Conversation", true},
		{"CONVERSATION", true},
		{"  conversation  ", true},
		{"hội thoại", true},
		{"Hội Thoại", true},
		{"Hello doctor", false},
		{"conversations", false},
		{"a", false},
	}
	for _, tc := range cases {
		if got := IsPlaceholderTitle(tc.title); got != tc.want {
			t.Errorf("IsPlaceholderTitle(%q): got %v, want %v", tc.title, got, tc.want)
		}
	}
}

func TestTitleFromTextTruncates(t *testing.T) {
	long := strings.Repeat("x", 75)
	got := TitleFromText(long)
	if len([]rune(got)) != TitleMaxRunes {
		t.Errorf("truncated length: got %d runes, want %d", len([]rune(got)), TitleMaxRunes)
	}

	// Truncation counts runes, not bytes.
	viet := strings.Repeat("ữ", 75)
	got = TitleFromText(viet)
	if len([]rune(got)) != TitleMaxRunes {
		t.Errorf("multibyte truncated length: got %d runes, want %d", len([]rune(got)), TitleMaxRunes)
	}

	if got := TitleFromText("  short  "); got != "short" {
		t.Errorf("short title: got %q, want %q", got, "short")
	}
	if got := TitleFromText("   "); got != "" {
		t.Errorf("blank title: got %q, want empty", got)
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := (Conversation{Title: "conversation"}).DisplayTitle(); got != "Conversation" {
		t.Errorf("placeholder display: got %q", got)
	}
	if got := (Conversation{Title: "Hello"}).DisplayTitle(); got != "Hello" {
		t.Errorf("real display: got %q", got)
	}
}
