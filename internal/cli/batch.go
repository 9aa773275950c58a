package cli

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/pipeline"
	"github.com/ppiankov/provenance/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Ingest many seed URLs from a file in parallel",
	Long: `Batch runs one independent crawl per URL in the input file (one per line,
# comments allowed). Runs share only the persistence gateway.

Each line of output is the URL, a tab, and the content id or null.

Example:
  provenance batch urls.txt
  provenance batch urls.txt --concurrency 8 --timeout 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent crawl runs")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", time.Hour, "total timeout for the batch")
	addCrawlFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	applyFlags(cmd, cfg)

	ctx, cancel := signalContext(batchTimeout)
	defer cancel()

	p, err := pipeline.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("Close failed", zap.Error(err))
		}
	}()

	processor := worker.NewBatchProcessor(p, concurrency, logger)
	results, err := processor.ProcessFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Error != nil {
			failed++
			fmt.Fprintf(out, "%s\tnull\n", r.URL)
			continue
		}
		fmt.Fprintf(out, "%s\t%d\n", r.URL, r.ContentID)
	}

	fmt.Fprintf(os.Stderr, "\n  Total:     %d URLs\n", len(results))
	fmt.Fprintf(os.Stderr, "  Ingested:  %d\n", len(results)-failed)
	fmt.Fprintf(os.Stderr, "  Failed:    %d\n\n", failed)
	return nil
}
