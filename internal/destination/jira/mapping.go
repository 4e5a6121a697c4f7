package jira

import (
	"strings"
	"unicode"

	"github.com/storyport/storyport/internal/model"
)

// issueType maps a source story type onto a Jira issue type name.
func issueType(t model.StoryType) string {
	switch t {
	case model.StoryBug:
		return "Bug"
	case model.StoryChore:
		return "Task"
	default:
		return "Story"
	}
}

// statusName maps a source state onto the status names installed by the
// shared migration workflow.
func statusName(s model.StoryState) string {
	switch s {
	case model.StateStarted:
		return "Started"
	case model.StateFinished:
		return "Finished"
	case model.StateDelivered:
		return "Delivered"
	case model.StateAccepted:
		return "Accepted"
	case model.StateRejected:
		return "Rejected"
	default:
		return "Unstarted"
	}
}

// priorityID maps a source priority onto a Jira priority id.
func priorityID(p string) string {
	switch strings.ToLower(p) {
	case "p0", "p1":
		return "1"
	case "p2":
		return "2"
	case "p3":
		return "3"
	case "p4":
		return "4"
	default:
		return "3"
	}
}

// projectKey derives a valid Jira project key: alphanumeric, uppercase,
// starting with a letter, 2-10 characters.
func projectKey(name string) string {
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
	if len(key) > 10 {
		return key[:10]
	}
	for len(key) < 2 {
		key += "X"
	}
	return key
}

// issueLabels rewrites source label names into Jira's space-free form.
func issueLabels(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ReplaceAll(n, " ", "_")
	}
	return out
}

// adfDoc wraps plain text in the minimal Atlassian document structure the
// v3 API requires for description fields.
func adfDoc(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []map[string]any{
			{
				"type":    "paragraph",
				"content": []map[string]any{{"type": "text", "text": text}},
			},
		},
	}
}
