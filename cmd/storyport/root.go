package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storyport/storyport/internal/config"
	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/destination/jira"
	"github.com/storyport/storyport/internal/destination/linear"
	"github.com/storyport/storyport/internal/logging"
	"github.com/storyport/storyport/internal/ratelimit"
	"github.com/storyport/storyport/internal/remote"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "storyport",
	Short: "Migrate project-tracker data from a source snapshot into Linear or Jira",
	Long: `storyport migrates projects, people, labels, epics, iterations, stories,
tasks, comments, attachments and blocker links from an extracted source
snapshot into a destination tracker through its remote API.

Configuration is read from storyport.yaml (working directory, then the user
config dir) and STORYPORT_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger from config plus the --verbose flag.
func newLogger(cfg config.Config) *zap.Logger {
	return logging.New(cfg.LogFile, verbose)
}

// newDestination wires the selected destination behind a bounded API client
// sharing one reliability policy.
func newDestination(cfg config.Config, log *zap.Logger) (destination.Destination, error) {
	policy := remote.Policy{
		MaxRetries:     cfg.MaxRetries,
		Backoff:        remote.ExponentialBackoff(time.Second),
		RateLimitPause: cfg.RateLimitPause,
	}
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateInterval)

	switch cfg.Destination {
	case "linear":
		rc := remote.New(cfg.Linear.Endpoint,
			remote.WithPolicy(policy),
			remote.WithLimiter(limiter),
			remote.WithMaxInFlight(cfg.MaxInFlight),
			remote.WithHeader("Authorization", cfg.Linear.APIKey),
			remote.WithLogger(log),
		)
		return linear.New(rc), nil
	case "jira":
		rc := remote.New(cfg.Jira.BaseURL,
			remote.WithPolicy(policy),
			remote.WithLimiter(limiter),
			remote.WithMaxInFlight(cfg.MaxInFlight),
			remote.WithBasicAuth(cfg.Jira.Email, cfg.Jira.APIToken),
			remote.WithLogger(log),
		)
		return jira.New(rc, jira.Config{
			AccountID:        cfg.Jira.AccountID,
			StoryPointsField: cfg.Jira.StoryPointsField,
			WorkflowSchemeID: cfg.Jira.WorkflowSchemeID,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown destination %q", cfg.Destination)
	}
}
