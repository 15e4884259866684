package main

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/drone-catalog/internal/batch"
	"github.com/franz/drone-catalog/internal/store"
	"github.com/franz/drone-catalog/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Regenerate the catalog outputs of a stored batch",
	Long: `Regenerate the dataset index, mission overviews, semantic CSVs,
classification CSVs and workbook of a batch from the SQLite catalog.

Records and assignments are read from the catalog; source videos are not
needed. Use --documents to rewrite the per-video markdown as well.

Without --batch the most recent batch is used.`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().String("batch", "", "batch ID or name (default: latest)")
	catalogCmd.Flags().Bool("documents", false, "also rewrite per-video documents")
	catalogCmd.Flags().Bool("no-workbook", false, "skip the semantic_model.xlsx workbook")
	catalogCmd.Flags().Bool("list", false, "list stored batches and exit")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	ctx := context.Background()

	dbPath := viper.GetString("db")
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer db.Close()

	if GetConfigBool("list") {
		return listBatches(db)
	}

	b, err := findBatch(db, viper.GetString("batch"))
	if err != nil {
		return err
	}

	semanticCfg, err := semanticConfig()
	if err != nil {
		return err
	}

	logger := openEventLogger()
	defer logger.Close()
	logger.SetBatchID(b.ID)

	util.InfoLog("=== Rebuilding catalog of %s ===", b.Name)
	util.InfoLog("Output: %s", b.OutputRoot)

	result, err := batch.Rebuild(ctx, b.ID, batch.RebuildConfig{
		Store:     db,
		Logger:    logger,
		Semantic:  semanticCfg,
		Documents: GetConfigBool("documents"),
		Workbook:  !GetConfigBool("no-workbook"),
		FSRetry:   util.FSRetryConfig(),
	})
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	util.SuccessLog("Rebuilt %d files from %d videos in %v",
		len(result.Outputs), len(result.Items), result.Duration.Round(time.Millisecond))
	if result.Skipped > 0 {
		util.WarnLog("  Left out of semantic model: %d", result.Skipped)
	}
	return nil
}

// findBatch resolves a batch by ID, then by name; empty means the latest
func findBatch(db *store.Store, ref string) (*store.Batch, error) {
	if ref == "" {
		b, err := db.LatestBatch()
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, fmt.Errorf("%w: no batches in catalog", util.ErrNotFound)
		}
		return b, nil
	}

	b, err := db.GetBatch(ref)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b, err = db.GetBatchByName(ref)
		if err != nil {
			return nil, err
		}
	}
	if b == nil {
		return nil, fmt.Errorf("%w: batch %q", util.ErrNotFound, ref)
	}
	return b, nil
}

func listBatches(db *store.Store) error {
	batches, err := db.ListBatches()
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		util.InfoLog("No batches in catalog")
		return nil
	}
	for _, b := range batches {
		fmt.Printf("%s  %-28s %-10s %s  %d/%d done, %d failed\n",
			b.ID, b.Name, b.Status, b.StartedAt.Local().Format("2006-01-02 15:04"),
			b.Processed, b.Total, b.Failed)
	}
	return nil
}
