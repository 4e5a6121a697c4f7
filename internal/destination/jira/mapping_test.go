package jira

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storyport/storyport/internal/model"
)

func TestIssueType(t *testing.T) {
	assert.Equal(t, "Story", issueType(model.StoryFeature))
	assert.Equal(t, "Bug", issueType(model.StoryBug))
	assert.Equal(t, "Task", issueType(model.StoryChore))
}

func TestStatusName(t *testing.T) {
	tests := []struct {
		state model.StoryState
		want  string
	}{
		{model.StateUnstarted, "Unstarted"},
		{model.StateStarted, "Started"},
		{model.StateFinished, "Finished"},
		{model.StateDelivered, "Delivered"},
		{model.StateAccepted, "Accepted"},
		{model.StateRejected, "Rejected"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusName(tt.state))
	}
}

func TestPriorityID(t *testing.T) {
	assert.Equal(t, "1", priorityID("p0"))
	assert.Equal(t, "1", priorityID("p1"))
	assert.Equal(t, "2", priorityID("p2"))
	assert.Equal(t, "3", priorityID("p3"))
	assert.Equal(t, "4", priorityID("p4"))
	assert.Equal(t, "3", priorityID(""))
}

func TestProjectKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Apollo", "APOLLO"},
		{"Apollo Program Extended Mission", "APOLLOPROG"},
		{"99 problems", "P99PROBLEM"},
		{"x", "XX"},
		{"", "PX"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, projectKey(tt.in))
	}
}

func TestIssueLabels(t *testing.T) {
	assert.Equal(t, []string{"tech_debt", "ux"}, issueLabels([]string{"tech debt", "ux"}))
}

func TestADFDocWrapsText(t *testing.T) {
	doc := adfDoc("hello")
	assert.Equal(t, "doc", doc["type"])
	assert.Equal(t, 1, doc["version"])
	content := doc["content"].([]map[string]any)
	inner := content[0]["content"].([]map[string]any)
	assert.Equal(t, "hello", inner[0]["text"])
}
