// Package config loads storyport's configuration with viper. Settings come
// from storyport.yaml (working directory first, then the user config dir)
// with STORYPORT_* environment variables taking precedence. Load returns a
// plain value struct; nothing reads viper after startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the immutable process configuration. It is built once by Load
// and passed by value into every component that needs it.
type Config struct {
	// SnapshotDB is the path to the sqlite cache holding extracted source data.
	SnapshotDB string
	// AttachmentDir is the content-store root for attachment blobs.
	AttachmentDir string
	// StateDir holds the per-destination processed-projects files.
	StateDir string
	// LogFile receives the rotating migration log; empty disables file logging.
	LogFile string

	Destination string // "linear" or "jira"

	Linear LinearConfig
	Jira   JiraConfig

	// Client reliability knobs shared by both destinations.
	MaxRetries     int
	RateLimitPause time.Duration
	MaxInFlight    int64
	// Token bucket: RateLimit tokens per RateInterval.
	RateLimit    float64
	RateInterval time.Duration

	// StoryWorkers bounds the per-project story fan-out.
	StoryWorkers int
}

// LinearConfig holds the GraphQL destination settings.
type LinearConfig struct {
	Endpoint string
	APIKey   string
}

// JiraConfig holds the REST destination settings.
type JiraConfig struct {
	BaseURL          string
	Email            string
	APIToken         string
	AccountID        string
	StoryPointsField string
	WorkflowSchemeID string
}

// Load reads configuration and validates the parts required for the selected
// destination.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("storyport")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "storyport"))
	}

	v.SetEnvPrefix("STORYPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("snapshot-db", "storyport.db")
	v.SetDefault("attachment-dir", "attachments")
	v.SetDefault("state-dir", ".")
	v.SetDefault("log-file", "storyport.log")
	v.SetDefault("destination", "linear")
	v.SetDefault("max-retries", 3)
	v.SetDefault("rate-limit-pause", "1s")
	v.SetDefault("max-in-flight", 4)
	v.SetDefault("rate-limit", 6)
	v.SetDefault("rate-interval", "5s")
	v.SetDefault("story-workers", 8)
	v.SetDefault("linear.endpoint", "https://api.linear.app/graphql")
	v.SetDefault("jira.story-points-field", "customfield_10036")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; env vars may carry everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		SnapshotDB:     v.GetString("snapshot-db"),
		AttachmentDir:  v.GetString("attachment-dir"),
		StateDir:       v.GetString("state-dir"),
		LogFile:        v.GetString("log-file"),
		Destination:    v.GetString("destination"),
		MaxRetries:     v.GetInt("max-retries"),
		RateLimitPause: v.GetDuration("rate-limit-pause"),
		MaxInFlight:    v.GetInt64("max-in-flight"),
		RateLimit:      v.GetFloat64("rate-limit"),
		RateInterval:   v.GetDuration("rate-interval"),
		StoryWorkers:   v.GetInt("story-workers"),
		Linear: LinearConfig{
			Endpoint: v.GetString("linear.endpoint"),
			APIKey:   v.GetString("linear.api-key"),
		},
		Jira: JiraConfig{
			BaseURL:          v.GetString("jira.base-url"),
			Email:            v.GetString("jira.email"),
			APIToken:         v.GetString("jira.api-token"),
			AccountID:        v.GetString("jira.account-id"),
			StoryPointsField: v.GetString("jira.story-points-field"),
			WorkflowSchemeID: v.GetString("jira.workflow-scheme-id"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the parts of the configuration required for the selected
// destination.
func (c Config) Validate() error {
	switch c.Destination {
	case "linear":
		if c.Linear.APIKey == "" {
			return fmt.Errorf("linear.api-key is required (STORYPORT_LINEAR_API_KEY)")
		}
	case "jira":
		var missing []string
		if c.Jira.BaseURL == "" {
			missing = append(missing, "jira.base-url")
		}
		if c.Jira.Email == "" {
			missing = append(missing, "jira.email")
		}
		if c.Jira.APIToken == "" {
			missing = append(missing, "jira.api-token")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("unknown destination %q (want linear or jira)", c.Destination)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be at least 1")
	}
	if c.StoryWorkers < 1 {
		return fmt.Errorf("story-workers must be at least 1")
	}
	return nil
}

// ProcessedFile returns the per-destination processed-projects file path.
func (c Config) ProcessedFile() string {
	return filepath.Join(c.StateDir, fmt.Sprintf("processed_%s.txt", c.Destination))
}
