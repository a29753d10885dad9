// Package mcp exposes compliance tools to MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"veritas/backend/internal/analysis"
	"veritas/backend/internal/auth"
	"veritas/backend/internal/authz"
	"veritas/backend/internal/workflow"
	"veritas/backend/pkg/models"
)

// Permissions answers authorization checks for a role.
type Permissions interface {
	Check(ctx context.Context, role, resource, action string) authz.Decision
}

// Executions loads execution reports on behalf of an actor.
type Executions interface {
	GetExecution(ctx context.Context, id string, actor models.Actor) (*workflow.ExecutionDetail, error)
}

// Server exposes compliance scoring, permission checks and execution reports as MCP tools.
type Server struct {
	mcpServer  *server.MCPServer
	perms      Permissions
	executions Executions
}

// NewServer creates a Server with its tools registered.
func NewServer(perms Permissions, executions Executions, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Veritas Compliance",
			version,
			server.WithToolCapabilities(true),
		),
		perms:      perms,
		executions: executions,
	}

	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for mounting.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"score_compliance_sections",
			mcp.WithDescription("Score detected policy sections against the GDPR/CCPA weight table"),
			mcp.WithArray("detected_sections", mcp.Required(),
				mcp.Description("Section labels found in the document"),
				mcp.WithStringItems()),
		),
		s.handleScore,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"check_permission",
			mcp.WithDescription("Check whether the caller's role may perform an action"),
			mcp.WithString("resource", mcp.Required(), mcp.Description("Resource name, e.g. documents")),
			mcp.WithString("action", mcp.Required(), mcp.Description("Action name, e.g. read_any")),
		),
		s.handleCheckPermission,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_execution",
			mcp.WithDescription("Fetch a workflow execution with its steps"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The execution ID")),
		),
		s.handleGetExecution,
	)
}

func (s *Server) handleScore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	raw, ok := args["detected_sections"].([]interface{})
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: detected_sections"), nil
	}
	labels := make([]string, 0, len(raw))
	for _, v := range raw {
		if label, ok := v.(string); ok {
			labels = append(labels, label)
		}
	}

	return jsonResult(analysis.Score(labels))
}

func (s *Server) handleCheckPermission(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := auth.ActorFrom(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	resource, _ := args["resource"].(string)
	action, _ := args["action"].(string)
	if resource == "" || action == "" {
		return mcp.NewToolResultError("Missing required parameters: resource, action"), nil
	}

	decision := s.perms.Check(ctx, actor.Role, resource, action)
	return jsonResult(map[string]any{
		"role":     actor.Role,
		"resource": resource,
		"action":   action,
		"allowed":  decision.Allowed,
		"source":   decision.Source,
	})
}

func (s *Server) handleGetExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := auth.ActorFrom(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	detail, err := s.executions.GetExecution(ctx, id, actor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get execution: %v", err)), nil
	}
	return jsonResult(detail)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// MountHTTPHandlers serves the SSE transport under g, which must be mounted at
// /mcp behind the authentication middleware.
func MountHTTPHandlers(g *echo.Group, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if a, ok := auth.ActorFrom(r.Context()); ok {
				return auth.WithActor(ctx, a)
			}
			return ctx
		}),
	)

	g.GET("/sse", echo.WrapHandler(sseServer.SSEHandler()))
	g.POST("/message", echo.WrapHandler(sseServer.MessageHandler()))
}
