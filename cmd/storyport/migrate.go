package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storyport/storyport/internal/config"
	"github.com/storyport/storyport/internal/idmap"
	"github.com/storyport/storyport/internal/migrate"
	"github.com/storyport/storyport/internal/progress"
	"github.com/storyport/storyport/internal/snapshot"
)

var (
	migrateProjectIDs []int64
	migrateAll        bool
	migrateForce      bool
	migrateDest       string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate one or more projects from the snapshot into the destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !migrateAll && len(migrateProjectIDs) == 0 {
			return fmt.Errorf("either --project-ids or --all is required")
		}
		if migrateDest != "" {
			// Highest-precedence config source; picked up by Load.
			_ = os.Setenv("STORYPORT_DESTINATION", migrateDest)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := snapshot.Open(cfg.SnapshotDB)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ids := migrateProjectIDs
		if migrateAll {
			summaries, err := store.ListProjects(ctx)
			if err != nil {
				return err
			}
			ids = nil
			for _, ps := range summaries {
				ids = append(ids, ps.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Println("No projects to migrate.")
			return nil
		}

		dest, err := newDestination(cfg, log)
		if err != nil {
			return err
		}
		if err := dest.Setup(ctx); err != nil {
			return fmt.Errorf("destination setup failed: %w", err)
		}

		processed, err := idmap.LoadProcessed(cfg.ProcessedFile())
		if err != nil {
			return err
		}

		orch := migrate.New(migrate.Options{
			Dest:           dest,
			Processed:      processed,
			AttachmentRoot: cfg.AttachmentDir,
			StoryWorkers:   cfg.StoryWorkers,
			Force:          migrateForce,
			Log:            log,
			Reporter:       progress.New(),
		})

		// A failed project is reported and does not stop the rest.
		failures := 0
		for _, id := range ids {
			project, err := store.LoadProject(ctx, id)
			if err != nil {
				failures++
				log.Error("failed to load project", zap.Int64("project_id", id), zap.Error(err))
				fmt.Fprintf(os.Stderr, "project %d: %v\n", id, err)
				continue
			}

			fmt.Printf("Migrating %q (%d stories) to %s\n", project.Name, len(project.Stories), dest.Name())
			summary, err := orch.MigrateProject(ctx, project)
			if err != nil {
				failures++
				fmt.Fprintf(os.Stderr, "project %d: %v\n", id, err)
			}
			if s := summary.String(); s != "" {
				fmt.Print(s)
			}
		}

		if failures > 0 {
			return fmt.Errorf("%d of %d projects failed", failures, len(ids))
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().Int64SliceVar(&migrateProjectIDs, "project-ids", nil, "source project ids to migrate")
	migrateCmd.Flags().BoolVar(&migrateAll, "all", false, "migrate every project in the snapshot")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "re-migrate projects already marked processed")
	migrateCmd.Flags().StringVar(&migrateDest, "dest", "", "destination system (linear or jira), overrides config")
	rootCmd.AddCommand(migrateCmd)
}
