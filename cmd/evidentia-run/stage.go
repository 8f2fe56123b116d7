package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidentia-hq/evidentia/internal/cache"
	"github.com/evidentia-hq/evidentia/internal/config"
	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/logging"
	"github.com/evidentia-hq/evidentia/internal/modelclient"
	"github.com/evidentia-hq/evidentia/internal/pipeline"
	"github.com/evidentia-hq/evidentia/internal/stage"
)

var stageCmd = &cobra.Command{
	Use:   "stage <name>",
	Short: "Run one stage (and any missing upstream stages) for a paper",
	Long: `Stage runs the named pipeline stage for a paper. Cached upstream
results are loaded first; upstream stages that have never run are
executed in dependency order before the requested stage.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := evidence.StageName(args[0])
		if !name.Valid() {
			return fmt.Errorf("unknown stage %q", args[0])
		}

		paperID, _ := cmd.Flags().GetString("paper-id")
		textPath, _ := cmd.Flags().GetString("text")
		title, _ := cmd.Flags().GetString("title")
		doi, _ := cmd.Flags().GetString("doi")
		authors, _ := cmd.Flags().GetString("authors")
		abstract, _ := cmd.Flags().GetString("abstract")

		input := pipeline.TriggerInput{
			Paper: &evidence.PaperMetadata{
				Title:      title,
				DOI:        doi,
				AuthorsRaw: authors,
				Abstract:   abstract,
			},
		}
		if textPath != "" {
			blob, err := os.ReadFile(textPath)
			if err != nil {
				return fmt.Errorf("read paper text: %w", err)
			}
			input.ExtractedText = string(blob)
		}

		cfg := config.Load()
		logger := logging.New(cfg.App.Environment)
		defer logger.Sync()

		client, err := modelclient.New(modelclient.Config{
			APIKey:          cfg.Model.APIKey,
			Endpoint:        cfg.Model.Endpoint,
			Model:           cfg.Model.Model,
			ReasoningEffort: cfg.Model.Effort,
			Timeout:         cfg.Model.Timeout(),
		})
		if err != nil {
			return err
		}
		store, err := cache.NewSQLiteStore(cfg.Cache.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		coordinator := pipeline.NewCoordinator(stage.NewExecutor(client, logger), store, logger)
		ctx := cmd.Context()
		coordinator.ActivatePaper(ctx, paperID, input)

		for _, upstream := range upstreamOrder(name) {
			if res := coordinator.Result(paperID, upstream); res != nil && res.Status == pipeline.StatusSuccess {
				continue
			}
			fmt.Fprintf(os.Stderr, "running %s...\n", upstream)
			if _, err := coordinator.Trigger(ctx, paperID, upstream, input); err != nil {
				return fmt.Errorf("stage %s: %w", upstream, err)
			}
		}

		res, err := coordinator.Trigger(ctx, paperID, name, input)
		if err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
		coordinator.WaitPersist()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

// upstreamOrder returns the transitive dependencies of a stage in run
// order, excluding the stage itself.
func upstreamOrder(name evidence.StageName) []evidence.StageName {
	needed := map[evidence.StageName]bool{}
	var mark func(evidence.StageName)
	mark = func(s evidence.StageName) {
		for _, dep := range evidence.Dependencies[s] {
			if !needed[dep] {
				needed[dep] = true
				mark(dep)
			}
		}
	}
	mark(name)

	var order []evidence.StageName
	for _, s := range evidence.AllStages {
		if needed[s] {
			order = append(order, s)
		}
	}
	return order
}

func init() {
	stageCmd.Flags().String("paper-id", "", "stable identifier for the paper (storage path)")
	stageCmd.Flags().String("text", "", "path to the paper's extracted text file")
	stageCmd.Flags().String("title", "", "paper title")
	stageCmd.Flags().String("doi", "", "paper DOI")
	stageCmd.Flags().String("authors", "", "author list as a single string")
	stageCmd.Flags().String("abstract", "", "paper abstract")
	_ = stageCmd.MarkFlagRequired("paper-id")

	rootCmd.AddCommand(stageCmd)
}
