// Package mcpadapter exposes creator content retrieval as Model Context Protocol tools,
// so chat and voice agents can fetch citations without going through the HTTP API.
package mcpadapter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

const (
	ToolSearchCreatorContent = "search_creator_content"
	ToolGetVideoStatus       = "get_video_status"

	maxToolK = 50
)

type Dependencies struct {
	Retriever ports.CitationRetriever
	Videos    ports.VideoAdmin
	Logger    *slog.Logger
}

// NewServer builds an MCP server with every retrieval tool registered.
func NewServer(name, version string, deps Dependencies) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	Register(s, deps)
	return s
}

func Register(s *server.MCPServer, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s.AddTool(mcp.NewTool(ToolSearchCreatorContent,
		mcp.WithDescription("Find time-stamped passages from a creator's videos that answer a question. "+
			"Returns citations with deep links; an empty list means the creator never covered the topic."),
		mcp.WithString("creator_id", mcp.Required(), mcp.Description("Creator whose videos are searched")),
		mcp.WithString("query", mcp.Required(), mcp.Description("The fan's question in natural language")),
		mcp.WithNumber("k", mcp.Description("Number of citations to return, 1-50, default 5")),
	), NewSearchHandler(deps))

	if deps.Videos != nil {
		s.AddTool(mcp.NewTool(ToolGetVideoStatus,
			mcp.WithDescription("Report the ingestion status and passage count of a video"),
			mcp.WithString("video_id", mcp.Required(), mcp.Description("Video identifier")),
		), NewVideoStatusHandler(deps))
	}
}

func NewSearchHandler(deps Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		creatorID, err := req.RequireString("creator_id")
		if err != nil || strings.TrimSpace(creatorID) == "" {
			return errorResult("creator_id is required", "Pass the creator identifier"), nil
		}
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return errorResult("query cannot be empty", "Provide the fan's question"), nil
		}
		k := req.GetInt("k", 0)
		if k < 0 || k > maxToolK {
			return errorResult("k must be 1-50", "Reduce k"), nil
		}

		result, err := deps.Retriever.Retrieve(ctx, creatorID, query, k)
		if err != nil {
			deps.Logger.Error("mcp_search_failed", "creator_id", creatorID, "error", err)
			if domain.IsKind(err, domain.ErrTemporary) {
				return errorResult("retrieval backend unavailable", "Retry shortly"), nil
			}
			return errorResult("search failed", ""), nil
		}
		deps.Logger.Info("mcp_search_completed",
			"creator_id", creatorID,
			"strategy", result.Strategy,
			"citations", len(result.Citations),
		)
		return jsonResult(result)
	}
}

func NewVideoStatusHandler(deps Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoID, err := req.RequireString("video_id")
		if err != nil || strings.TrimSpace(videoID) == "" {
			return errorResult("video_id is required", ""), nil
		}
		video, err := deps.Videos.GetVideo(ctx, videoID)
		if err != nil {
			if domain.IsKind(err, domain.ErrVideoNotFound) {
				return errorResult("video not found", "Register the video first"), nil
			}
			deps.Logger.Error("mcp_video_status_failed", "video_id", videoID, "error", err)
			return errorResult("video lookup failed", ""), nil
		}
		return jsonResult(map[string]any{
			"video_id":    video.ID,
			"creator_id":  video.CreatorID,
			"status":      video.Status,
			"chunk_count": video.ChunkCount,
			"error":       video.Error,
		})
	}
}
