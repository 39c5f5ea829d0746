package cli

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpadapter "github.com/danieledinun/aitreon-sub004/internal/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve retrieval tools over MCP stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing
search_creator_content and get_video_status to agent runtimes.

Logs go to stderr (and --log-file) so the stdio transport stays clean.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := getApp(context.Background())
	if err != nil {
		return err
	}
	s := mcpadapter.NewServer("creator-replica", Version, mcpadapter.Dependencies{
		Retriever: a.Retriever,
		Videos:    a.Videos,
		Logger:    slog.Default(),
	})
	slog.Info("mcp_server_started", "transport", "stdio")
	return server.ServeStdio(s)
}
