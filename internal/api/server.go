// Package api contains the HTTP handlers for the compliance service
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"veritas/backend/internal/analysis"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/auth"
	"veritas/backend/internal/authz"
	"veritas/backend/internal/documents"
	"veritas/backend/internal/workflow"
	"veritas/backend/pkg/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies of the REST handlers.
type Server struct {
	Workflows  *workflow.Service
	Engine     *workflow.Engine
	Documents  *documents.Service
	Analysis   *analysis.Service
	Authorizer *authz.Authorizer
	RBAC       *authz.RBACService
	Audit      *audit.Writer
	DB         Pinger
	Logger     Logger
}

// RegisterHandlers mounts every authenticated route on g.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows", s.ListWorkflows)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.POST("/workflows/:id/execute", s.ExecuteWorkflow)
	g.GET("/workflows/:id/executions", s.ListExecutions)
	g.GET("/executions/:id", s.GetExecution)

	g.POST("/documents", s.UploadDocument)
	g.GET("/documents", s.ListDocuments)
	g.GET("/documents/:id", s.GetDocument)
	g.DELETE("/documents/:id", s.DeleteDocument)

	g.POST("/analyze", s.Analyze)
	g.GET("/analyze/results/:id", s.GetAnalysisResult)
	g.POST("/analyze-document", s.AnalyzeDocument)
	g.GET("/analysis/:document_id", s.GetLatestCompliance)
	g.POST("/compliance/score", s.ScoreSections)

	g.GET("/prompts", s.ListPrompts)
	g.POST("/prompts", s.CreatePrompt)
	g.PUT("/prompts/:id/activate", s.ActivatePrompt)

	g.GET("/rbac/allowed-actions", s.AllowedActions)
	g.GET("/rbac/roles", s.ListRoles)
	g.GET("/rbac/permissions", s.ListPermissions)
	g.GET("/rbac/roles/:id/permissions", s.GetRolePermissions)
	g.PUT("/rbac/roles/:id/permissions", s.UpdateRolePermissions)

	g.GET("/audit-logs", s.ListAuditLogs)
}

// Health reports service liveness and database reachability.
// (GET /health)
func (s *Server) Health(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   "veritas",
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{"database": "ok"},
	}
	if s.DB != nil {
		if err := s.DB.Ping(c.Request().Context()); err != nil {
			status.Status = "degraded"
			status.Checks["database"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return c.JSON(http.StatusOK, status)
}

// actor returns the authenticated caller set by auth.RequireAuth.
func actor(c echo.Context) (models.Actor, error) {
	a, ok := auth.ActorFrom(c.Request().Context())
	if !ok {
		return models.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return a, nil
}

// scope reports whether the actor holds the broad variant of a permission and
// audits which scope was applied.
func (s *Server) scope(c echo.Context, a models.Actor, resource, broad, narrow, resourceID string) bool {
	ctx := c.Request().Context()
	allowed := s.Authorizer.Can(ctx, a, resource, broad)
	action := narrow
	if allowed {
		action = broad
	}
	s.Audit.Record(ctx, audit.Entry{
		Actor:          a,
		Resource:       resource,
		Action:         action,
		ResourceID:     resourceID,
		PolicyInput:    map[string]any{"role": a.Role, "resource": resource, "action": broad},
		PolicyDecision: map[string]any{"allow": allowed},
	})
	return allowed
}
