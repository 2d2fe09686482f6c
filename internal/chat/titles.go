// titles.go implements placeholder-title detection and the auto-title rule:
// a conversation is named after the first 60 characters of its first real
// user turn, exactly once.
package chat

import "strings"

// TitleMaxRunes caps auto-generated conversation titles.
const TitleMaxRunes = 60

// placeholderTitles are the titles considered "not yet user-set", compared
// case-insensitively after trimming.
var placeholderTitles = map[string]bool{
	"":          true,
	"conversation": true,
	"hội thoại": true,
}

// IsPlaceholderTitle reports whether a title still counts as unset.
func IsPlaceholderTitle(s string) bool {
	return placeholderTitles[strings.ToLower(strings.TrimSpace(s))]
}

// TitleFromText derives a conversation title from user text: trimmed and
// truncated to TitleMaxRunes runes. Returns "" when the text is blank.
func TitleFromText(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > TitleMaxRunes {
		return string(runes[:TitleMaxRunes])
	}
	return s
}
