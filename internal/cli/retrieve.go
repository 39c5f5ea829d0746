package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	retrieveCreatorID string
	retrieveK         int
	retrieveJSON      bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <question>",
	Short: "Show the citations a creator's replica would answer with",
	Long: `Route the question, search the creator's passages and print the ranked,
time-stamped citations.

Examples:
  replicactl retrieve "how do you price a course" --creator-id alice
  replicactl retrieve "what did you say about pricing compared to marketing" --creator-id alice -k 8 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringVar(&retrieveCreatorID, "creator-id", "", "creator whose videos are searched (required)")
	retrieveCmd.Flags().IntVarP(&retrieveK, "limit", "k", 0, "number of citations (default: RETRIEVE_DEFAULT_K)")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "print the full result as JSON")
	_ = retrieveCmd.MarkFlagRequired("creator-id")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	result, err := a.Retriever.Retrieve(ctx, retrieveCreatorID, args[0], retrieveK)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	out := cmd.OutOrStdout()
	if retrieveJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if len(result.Citations) == 0 {
		fmt.Fprintln(out, "No citations found.")
		return nil
	}
	fallback := ""
	if result.GraphFallback {
		fallback = ", graph unavailable"
	}
	fmt.Fprintf(out, "Strategy %s%s, confidence %.2f\n\n", result.Strategy, fallback, result.Confidence)
	for i, c := range result.Citations {
		fmt.Fprintf(out, "%d. %s [%s-%s] score %.3f (%s)\n",
			i+1, c.VideoTitle, formatTimestamp(c.StartTime), formatTimestamp(c.EndTime), c.RelevanceScore, c.Source)
		if c.TimestampURL != "" {
			fmt.Fprintf(out, "   %s\n", c.TimestampURL)
		}
		fmt.Fprintf(out, "   %s\n", truncate(c.Content, 200))
	}
	return nil
}
