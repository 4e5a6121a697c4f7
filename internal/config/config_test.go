package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORYPORT_LINEAR_API_KEY", "lin_key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "linear", cfg.Destination)
	assert.Equal(t, "lin_key", cfg.Linear.APIKey)
	assert.Equal(t, "https://api.linear.app/graphql", cfg.Linear.Endpoint)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, int64(4), cfg.MaxInFlight)
	assert.Equal(t, 8, cfg.StoryWorkers)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := `
destination: jira
snapshot-db: /data/snap.db
jira:
  base-url: https://example.atlassian.net
  email: ops@example.com
  api-token: tok
  workflow-scheme-id: "10200"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "storyport.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "jira", cfg.Destination)
	assert.Equal(t, "/data/snap.db", cfg.SnapshotDB)
	assert.Equal(t, "https://example.atlassian.net", cfg.Jira.BaseURL)
	assert.Equal(t, "10200", cfg.Jira.WorkflowSchemeID)
}

func TestLoadRejectsMissingDestinationSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORYPORT_DESTINATION", "jira")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jira.base-url")
}

func TestLoadRejectsUnknownDestination(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORYPORT_DESTINATION", "asana")

	_, err := Load()
	assert.ErrorContains(t, err, "unknown destination")
}

func TestProcessedFilePerDestination(t *testing.T) {
	cfg := Config{StateDir: "/var/lib/storyport", Destination: "jira"}
	assert.Equal(t, "/var/lib/storyport/processed_jira.txt", cfg.ProcessedFile())
}
