package mcpadapter

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// errorResult reports a tool failure to the model with an optional recovery hint.
func errorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return mcp.NewToolResultError(text)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
