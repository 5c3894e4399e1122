package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
	"github.com/kirillkom/campus-assistant/internal/core/ports"
)

const (
	serverName    = "mmutalk"
	serverVersion = "1.0.0"

	ToolAsk   = "ask_campus"
	ToolReset = "reset_session"
)

// Server exposes the chat service as MCP tools.
type Server struct {
	chat ports.ChatService
	mcp  *server.MCPServer
}

func NewServer(chat ports.ChatService) *Server {
	s := &Server{
		chat: chat,
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Ask the Mokpo National Maritime University portal assistant. "+
			"Pass session_id to continue a conversation; omit it to start a new one."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in Korean or English.")),
		mcp.WithString("session_id", mcp.Description("Session returned by a previous call.")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool(ToolReset,
		mcp.WithDescription("Clear a session's history and carried department contact."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to reset.")),
	), s.handleReset)

	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	if sessionID == "" {
		session, err := s.chat.Start(ctx)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("start session", err), nil
		}
		sessionID = session.ID
	}

	answer, err := s.chat.Ask(ctx, sessionID, question)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrSessionNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		slog.Warn("mcp_ask_fallback", "session_id", sessionID, "error", err)
		return mcp.NewToolResultText(withSession(domain.FallbackMessage, sessionID)), nil
	}
	return mcp.NewToolResultText(withSession(answer.Text, sessionID)), nil
}

func (s *Server) handleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session, err := s.chat.Reset(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("reset session", err), nil
	}
	return mcp.NewToolResultText(withSession(domain.GreetingMessage, session.ID)), nil
}

func withSession(text, sessionID string) string {
	return fmt.Sprintf("%s\n\nsession_id: %s", text, sessionID)
}
