package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danieledinun/aitreon-sub004/internal/config"
	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/chunking"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/transcript"
)

var (
	chunkVideoID    string
	chunkMode       string
	chunkHeuristics string
	chunkJSON       bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <transcript-file>",
	Short: "Preview how a transcript is split into passages",
	Long: `Parse a JSON, SRT or VTT transcript and print the semantic passages it
would produce, with their validity. Nothing is stored.

Examples:
  replicactl chunk episode.srt
  replicactl chunk episode.json --mode fine --json
  replicactl chunk episode.vtt --heuristics heuristics.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVar(&chunkVideoID, "video-id", "", "video id used for chunk ids (default: file name)")
	chunkCmd.Flags().StringVar(&chunkMode, "mode", "", "chunking mode: default or fine (default: CHUNK_MODE)")
	chunkCmd.Flags().StringVar(&chunkHeuristics, "heuristics", "", "heuristics YAML file (default: HEURISTICS_FILE)")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "print passages as JSON")
}

type chunkPreview struct {
	domain.SemanticChunk
	Valid bool `json:"valid"`
}

func runChunk(cmd *cobra.Command, args []string) error {
	path := args[0]
	segments, err := readTranscriptFile(path)
	if err != nil {
		return err
	}

	heuristicsPath := chunkHeuristics
	if heuristicsPath == "" {
		heuristicsPath = cfg.HeuristicsFile
	}
	heuristics, err := config.LoadHeuristics(heuristicsPath)
	if err != nil {
		return err
	}
	mode := chunkMode
	if mode == "" {
		mode = cfg.ChunkMode
	}
	videoID := chunkVideoID
	if videoID == "" {
		videoID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	chunker := chunking.NewSemanticChunker(heuristics.Chunking)
	chunks := chunker.Chunk(segments, videoID, heuristics.ChunkOptionsFor(mode))
	previews := make([]chunkPreview, 0, len(chunks))
	for _, chunk := range chunks {
		previews = append(previews, chunkPreview{SemanticChunk: chunk, Valid: chunker.ValidateChunk(chunk)})
	}

	out := cmd.OutOrStdout()
	if chunkJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(previews)
	}

	if len(previews) == 0 {
		fmt.Fprintln(out, "No passages produced.")
		return nil
	}
	valid := 0
	for _, p := range previews {
		if p.Valid {
			valid++
		}
	}
	fmt.Fprintf(out, "%d segments -> %d passages (%d valid)\n\n", len(segments), len(previews), valid)
	for _, p := range previews {
		marker := " "
		if !p.Valid {
			marker = "x"
		}
		fmt.Fprintf(out, "[%s] %s  %s-%s  %d words  confidence %.2f\n",
			marker, p.ChunkID, formatTimestamp(p.StartTime), formatTimestamp(p.EndTime), p.WordCount, p.ConfidenceScore)
		if verbose {
			fmt.Fprintf(out, "    %s\n", truncate(p.Content, 160))
		}
	}
	return nil
}

func readTranscriptFile(path string) ([]domain.TranscriptSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	segments, err := transcript.Parse(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return segments, nil
}

// formatTimestamp renders seconds as m:ss or h:mm:ss.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func truncate(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
