package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/store"
)

var thumbnailTimeout time.Duration

// thumbnailCmd records a thumbnail produced for a queued back-fill job
var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail <content-id> <thumbnail-ref>",
	Short: "Attach a generated thumbnail to a stored record",
	Long: `Thumbnail completes a back-fill job from the thumbnail queue: once an
external worker has produced the image for a job's contentId, this stores its
reference on the record.

Example:
  provenance thumbnail 42 thumbs/42.png`,
	Args: cobra.ExactArgs(2),
	RunE: runThumbnail,
}

func init() {
	rootCmd.AddCommand(thumbnailCmd)

	thumbnailCmd.Flags().DurationVar(&thumbnailTimeout, "timeout", 30*time.Second, "timeout for the update")
}

func runThumbnail(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(thumbnailTimeout)
	defer cancel()

	gateway, err := store.Open(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			logger.Warn("Close failed", zap.Error(err))
		}
	}()

	if err := setThumbnail(ctx, gateway, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", args[0])
	return nil
}

func setThumbnail(ctx context.Context, gateway store.Gateway, idArg, ref string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid content id %q", idArg)
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("thumbnail reference is required")
	}
	return gateway.SetThumbnail(ctx, id, ref)
}
