package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidentia-hq/evidentia/internal/cache"
	"github.com/evidentia-hq/evidentia/internal/config"
	"github.com/evidentia-hq/evidentia/internal/logging"
	"github.com/evidentia-hq/evidentia/internal/pipeline"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show cached stage results for a paper",
	RunE: func(cmd *cobra.Command, args []string) error {
		paperID, _ := cmd.Flags().GetString("paper-id")

		cfg := config.Load()
		logger := logging.New(cfg.App.Environment)
		defer logger.Sync()

		store, err := cache.NewSQLiteStore(cfg.Cache.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		// No runner needed for a read-only view.
		coordinator := pipeline.NewCoordinator(nil, store, logger)
		coordinator.ActivatePaper(cmd.Context(), paperID, pipeline.TriggerInput{})

		out := map[string]pipeline.StageResult{}
		for name, res := range coordinator.Snapshot(paperID) {
			out[string(name)] = res
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	resultsCmd.Flags().String("paper-id", "", "stable identifier for the paper (storage path)")
	_ = resultsCmd.MarkFlagRequired("paper-id")

	rootCmd.AddCommand(resultsCmd)
}
