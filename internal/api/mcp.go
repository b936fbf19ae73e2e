package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/clipsign/clipsign/internal/jobs"
	"github.com/clipsign/clipsign/internal/signer"
	"github.com/clipsign/clipsign/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Jobs   *jobs.Orchestrator
	Health func() signer.Diagnostics
}

// NewMCPServer creates an MCP server exposing the signing pipeline as
// agent tools: submission, status lookup, listing, and dependency health.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"clipsign",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("clipsign — video signing service: submit video files for cryptographic signing and track each job until the signed artifact is ready."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_video",
			mcp.WithDescription("Submit a local video file for signing. Returns the job id to poll with video_status."),
			mcp.WithString("path", mcp.Description("Path to the video file"), mcp.Required()),
			mcp.WithString("device_info", mcp.Description("Optional JSON metadata about the capture device")),
		),
		mcpSubmitVideo(deps),
	)

	s.AddTool(
		mcp.NewTool("video_status",
			mcp.WithDescription("Look up a signing job's current status, content hash, and outcome."),
			mcp.WithString("id", mcp.Description("Job id returned by submit_video"), mcp.Required()),
		),
		mcpVideoStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_videos",
			mcp.WithDescription("List the most recent signing jobs, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListVideos(deps),
	)

	s.AddTool(
		mcp.NewTool("signing_health",
			mcp.WithDescription("Report whether the signing library, signer executable, and key material are present."),
		),
		mcpSigningHealth(deps),
	)

	return s
}

func mcpSubmitVideo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}
		deviceInfo := req.GetString("device_info", "")

		f, err := os.Open(path)
		if err != nil {
			return mcpError(fmt.Sprintf("could not open %s: %v", path, err)), nil
		}
		defer f.Close()

		v, err := deps.Jobs.Submit(ctx, filepath.Base(path), deviceInfo, f)
		if err != nil {
			var vErr *jobs.ValidationError
			if errors.As(err, &vErr) {
				return mcpError(vErr.Error()), nil
			}
			return mcpError(fmt.Sprintf("submission failed: %v", err)), nil
		}

		b, err := json.Marshal(toVideoResponse(v))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpVideoStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		v, err := deps.Jobs.Video(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("video %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(toVideoResponse(v))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListVideos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		videos, err := deps.Jobs.Videos(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing failed: %v", err)), nil
		}

		out := make([]videoResponse, len(videos))
		for i, v := range videos {
			out[i] = toVideoResponse(v)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSigningHealth(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Health())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal health: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
