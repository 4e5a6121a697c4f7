package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyport/storyport/internal/config"
	"github.com/storyport/storyport/internal/idmap"
	"github.com/storyport/storyport/internal/snapshot"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects available in the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := snapshot.Open(cfg.SnapshotDB)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		summaries, err := store.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No projects in snapshot.")
			return nil
		}

		processed, err := idmap.LoadProcessed(cfg.ProcessedFile())
		if err != nil {
			return err
		}

		fmt.Printf("%-10s %-8s %-40s %s\n", "ID", "STORIES", "NAME", "STATUS")
		for _, ps := range summaries {
			status := ""
			if processed.Contains(ps.ID) {
				status = "migrated"
			}
			fmt.Printf("%-10d %-8d %-40s %s\n", ps.ID, ps.StoryCount, ps.Name, status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}
