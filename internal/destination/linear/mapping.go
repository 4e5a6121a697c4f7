package linear

import (
	"strings"
	"unicode"

	"github.com/storyport/storyport/internal/model"
)

// maxNameLength is Linear's practical limit for team and issue names.
const maxNameLength = 50

// sanitizeName strips characters Linear rejects and truncates the result.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	return strings.TrimSpace(s)
}

// teamKey derives a short uppercase key from a workspace name.
func teamKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	key := b.String()
	if key == "" || !unicode.IsLetter(rune(key[0])) {
		key = "P" + key
	}
	if len(key) > 5 {
		key = key[:5]
	}
	return key
}

// stateName maps a source story state onto the Linear workflow state name.
func stateName(s model.StoryState) string {
	switch s {
	case model.StateStarted:
		return "In Progress"
	case model.StateFinished:
		return "In Review"
	case model.StateDelivered, model.StateAccepted:
		return "Done"
	default: // unstarted, rejected
		return "Todo"
	}
}

// priority maps a source priority onto Linear's 0-4 scale (0 = none).
func priority(p string) int {
	switch strings.ToLower(p) {
	case "p0":
		return 1 // Urgent
	case "p1":
		return 2 // High
	case "p2":
		return 3 // Medium
	case "p3":
		return 4 // Low
	default:
		return 0
	}
}
