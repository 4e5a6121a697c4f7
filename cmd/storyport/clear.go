package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storyport/storyport/internal/config"
	"github.com/storyport/storyport/internal/idmap"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the processed-projects bookkeeping for the configured destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		processed, err := idmap.LoadProcessed(cfg.ProcessedFile())
		if err != nil {
			return err
		}
		if err := processed.Clear(); err != nil {
			return err
		}
		fmt.Printf("Cleared processed projects for %s.\n", cfg.Destination)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
