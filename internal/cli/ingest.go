package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

var (
	ingestVideoID   string
	ingestCreatorID string
	ingestTitle     string
	ingestURL       string
	ingestAsync     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <transcript-file>",
	Short: "Register a video and ingest its transcript",
	Long: `Register (or update) a video and turn its transcript into stored passages.

By default ingestion runs in this process and prints the chunk counts. With
--async the transcript is archived and queued for the worker instead.

Examples:
  replicactl ingest episode.srt --video-id dQw4w9WgXcQ --creator-id alice \
    --title "Pricing your first product" --url https://youtu.be/dQw4w9WgXcQ
  replicactl ingest episode.json --video-id abc123 --creator-id alice --async`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestVideoID, "video-id", "", "video id (required)")
	ingestCmd.Flags().StringVar(&ingestCreatorID, "creator-id", "", "owning creator id (required)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "video title")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "canonical video URL used for citation deep links")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "queue ingestion for the worker instead of running it here")
	_ = ingestCmd.MarkFlagRequired("video-id")
	_ = ingestCmd.MarkFlagRequired("creator-id")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := context.Background()

	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	video, err := a.Videos.RegisterVideo(ctx, domain.Video{
		ID:           ingestVideoID,
		CreatorID:    ingestCreatorID,
		Title:        ingestTitle,
		CanonicalURL: ingestURL,
	})
	if err != nil {
		return fmt.Errorf("register video: %w", err)
	}
	out := cmd.OutOrStdout()

	if ingestAsync {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open transcript: %w", err)
		}
		defer file.Close()
		queued, err := a.Videos.SubmitTranscript(ctx, video.ID, filepath.Base(path), file)
		if err != nil {
			return fmt.Errorf("submit transcript: %w", err)
		}
		fmt.Fprintf(out, "Queued %s (status %s)\n", queued.ID, queued.Status)
		return nil
	}

	segments, err := readTranscriptFile(path)
	if err != nil {
		return err
	}
	result, err := a.Ingest.IngestVideo(ctx, video.ID, segments)
	if err != nil {
		return fmt.Errorf("ingest video: %w", err)
	}
	fmt.Fprintf(out, "Ingested %s: %d passages stored, %d attempted, %d discarded\n",
		result.VideoID, result.ChunksCreated, result.ChunksAttempted, result.ChunksDiscarded)
	return nil
}
