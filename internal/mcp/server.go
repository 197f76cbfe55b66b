// Package mcp exposes the focus timer, block list and gate as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/focus/internal/blocklist"
	"github.com/joescharf/focus/internal/classifier"
	"github.com/joescharf/focus/internal/clock"
	"github.com/joescharf/focus/internal/gate"
	"github.com/joescharf/focus/internal/store"
)

// Server wraps the focus core and exposes it as MCP tools.
type Server struct {
	store   store.Store
	clock   *clock.Clock
	gate    *gate.Gate
	engine  *classifier.Engine
	version string
}

// NewServer creates the MCP server wrapper with all required dependencies.
// The engine may be nil.
func NewServer(s store.Store, c *clock.Clock, g *gate.Gate, e *classifier.Engine, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		store:   s,
		clock:   c,
		gate:    g,
		engine:  e,
		version: version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("focus", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.statusTool())
	srv.AddTool(s.startTool())
	srv.AddTool(s.pauseTool())
	srv.AddTool(s.resumeTool())
	srv.AddTool(s.stopTool())
	srv.AddTool(s.checkURLTool())
	srv.AddTool(s.classifyTool())
	srv.AddTool(s.blocklistTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// focus_status
func (s *Server) statusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_status",
		mcp.WithDescription("Get the focus timer: phase (idle, running, paused, break), remaining seconds, session and break length, total focused time and completed sessions."),
	)
	return tool, s.handleStatus
}

func (s *Server) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.clock.View(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read timer: %v", err)), nil
	}
	return jsonResult(v)
}

// focus_start
func (s *Server) startTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_start",
		mcp.WithDescription("Start a focus session. Optionally set its length in minutes when the timer is idle. Starting a paused timer resumes it."),
		mcp.WithNumber("minutes", mcp.Description("Session length in minutes (idle only)")),
	)
	return tool, s.handleStart
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minutes := request.GetInt("minutes", 0)
	if minutes < 0 {
		return mcp.NewToolResultError("minutes must not be negative"), nil
	}
	return s.transition(ctx, func() error {
		_, err := s.clock.Start(ctx, minutes*60)
		return err
	})
}

// focus_pause
func (s *Server) pauseTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_pause",
		mcp.WithDescription("Pause the running session or break."),
	)
	return tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.transition(ctx, func() error {
			_, err := s.clock.Pause(ctx)
			return err
		})
	}
}

// focus_resume
func (s *Server) resumeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_resume",
		mcp.WithDescription("Resume a paused session or break."),
	)
	return tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.transition(ctx, func() error {
			_, err := s.clock.Resume(ctx)
			return err
		})
	}
}

// focus_stop
func (s *Server) stopTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_stop",
		mcp.WithDescription("Stop the timer and reset it to idle. Total focused time is kept."),
	)
	return tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.transition(ctx, func() error {
			_, err := s.clock.Stop(ctx)
			return err
		})
	}
}

func (s *Server) transition(ctx context.Context, op func() error) (*mcp.CallToolResult, error) {
	if err := op(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.handleStatus(ctx, mcp.CallToolRequest{})
}

// focus_check_url
func (s *Server) checkURLTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_check_url",
		mcp.WithDescription("Check whether a URL would be allowed right now. Returns action, reason and the block page redirect if denied. Pass a title for video pages."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Destination URL")),
		mcp.WithString("title", mcp.Description("Page title, for video pages")),
		mcp.WithString("description", mcp.Description("Page description, for video pages")),
	)
	return tool, s.handleCheckURL
}

func (s *Server) handleCheckURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: url"), nil
	}
	title := request.GetString("title", "")
	v, err := s.gate.Decide(ctx, gate.Destination{
		URL:         u,
		IsTopLevel:  true,
		Title:       title,
		Description: request.GetString("description", ""),
		HasContent:  title != "",
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to decide: %v", err)), nil
	}
	return jsonResult(v)
}

// focus_classify
func (s *Server) classifyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_classify",
		mcp.WithDescription("Classify a video title and description as allow (educational) or deny (distraction) with the loaded model."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Video title")),
		mcp.WithString("description", mcp.Description("Video description")),
	)
	return tool, s.handleClassify
}

func (s *Server) handleClassify(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	type classifyOut struct {
		classifier.Result
		Version string `json:"version,omitempty"`
	}
	out := classifyOut{Result: s.engine.Predict(title, request.GetString("description", ""))}
	if b := s.engine.Bundle(); b != nil {
		out.Version = b.Version
	}
	return jsonResult(out)
}

// focus_blocklist
func (s *Server) blocklistTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("focus_blocklist",
		mcp.WithDescription("List, add or remove blocked domains. Returns the resulting list."),
		mcp.WithString("action", mcp.Enum("list", "add", "remove"), mcp.Description("Operation (default: list)")),
		mcp.WithString("domain", mcp.Description("Domain or URL for add/remove")),
	)
	return tool, s.handleBlocklist
}

func (s *Server) handleBlocklist(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := request.GetString("action", "list")
	domain := request.GetString("domain", "")

	var (
		list []string
		err  error
	)
	switch action {
	case "list":
		list, err = blocklist.Load(ctx, s.store)
	case "add":
		list, _, err = blocklist.AddDomain(ctx, s.store, domain)
	case "remove":
		var removed bool
		list, removed, err = blocklist.RemoveDomain(ctx, s.store, domain)
		if err == nil && !removed {
			return mcp.NewToolResultError(fmt.Sprintf("domain not in block list: %s", domain)), nil
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("blocklist %s: %v", action, err)), nil
	}
	if list == nil {
		list = []string{}
	}
	return jsonResult(list)
}
