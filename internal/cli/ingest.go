package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/fetch"
	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/pipeline"
)

var (
	displayName string
	kindFlag    string
	maxDepth    int
	fanOut      int
	timeout     time.Duration
	llmProvider string
	llmModel    string
	noCache     bool
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <url>",
	Short: "Ingest a URL and the references reachable from it",
	Long: `Ingest resolves a single URL, extracts its metadata, topics and claims,
maps each claim to evidence found by web search, stores everything, and then
ingests the discovered references up to --max-depth.

The content id of the seed is printed on stdout, or null when the seed could
not be ingested.

Example:
  provenance ingest https://example.com/article
  provenance ingest https://example.com/article --name "My article" --max-depth 1
  provenance ingest https://example.com/paper.pdf --kind reference`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&displayName, "name", "", "display name hint used as the title")
	ingestCmd.Flags().StringVar(&kindFlag, "kind", string(model.KindTask), "content kind (task, reference)")
	addCrawlFlags(ingestCmd)
	ingestCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall timeout for the crawl")
}

// addCrawlFlags registers the flags shared by ingest and batch
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&maxDepth, "max-depth", 2, "maximum recursion depth")
	cmd.Flags().IntVar(&fanOut, "fan-out", 1, "references ingested concurrently per node")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, openrouter, anthropic, ollama, none)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
}

// applyFlags copies explicitly set flags over the loaded configuration
func applyFlags(cmd *cobra.Command, c *model.Config) {
	if cmd.Flags().Changed("max-depth") {
		c.Crawl.MaxDepth = maxDepth
	}
	if cmd.Flags().Changed("fan-out") {
		c.Crawl.FanOut = fanOut
	}
	if cmd.Flags().Changed("llm-provider") {
		c.LLM.Provider = llmProvider
	}
	if cmd.Flags().Changed("llm-model") {
		c.LLM.Model = llmModel
	}
	if noCache {
		c.Cache.Enabled = false
	}
}

// signalContext is cancelled on SIGINT/SIGTERM or after d
func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	kind, ok := model.ParseContentKind(kindFlag)
	if !ok {
		return fmt.Errorf("invalid --kind %q (expected task or reference)", kindFlag)
	}
	applyFlags(cmd, cfg)

	ctx, cancel := signalContext(timeout)
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

	id, err := p.Ingest(ctx, args[0], displayName, kind)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "null")
		logger.Error("Ingest failed", zap.String("url", args[0]), zap.Error(err))
		if errors.Is(err, fetch.ErrInvalidURL) || ctx.Err() != nil {
			return err
		}
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
