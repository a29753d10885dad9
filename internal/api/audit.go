package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"veritas/backend/internal/audit"
)

const defaultAuditLimit = 50

// ListAuditLogs lists audit entries, newest first. Without audit_logs/view_all
// the listing is limited to the caller's own entries.
// (GET /api/v1/audit-logs)
func (s *Server) ListAuditLogs(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	f := audit.Filter{
		Resource:   c.QueryParam("resource"),
		Action:     c.QueryParam("action"),
		ResourceID: c.QueryParam("resource_id"),
	}
	if f.Limit, err = queryInt(c, "limit", defaultAuditLimit); err != nil {
		return err
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		return err
	}
	if !s.Authorizer.Can(ctx, a, "audit_logs", "view_all") {
		if !s.Authorizer.Can(ctx, a, "audit_logs", "view_own") {
			return s.Authorizer.Authorize(ctx, a, "audit_logs", "view_own", "")
		}
		f.UserID = a.UserID
	}
	logs, err := s.Audit.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"audit_logs": logs, "total": len(logs)})
}
