package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"veritas/backend/internal/apperr"
	"veritas/backend/pkg/models"
)

// AllowedActions lists every resource/action pair the caller's role holds
// (GET /api/v1/rbac/allowed-actions)
func (s *Server) AllowedActions(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	actions := s.Authorizer.Resolver().AllowedActions(c.Request().Context(), a.Role)
	return c.JSON(http.StatusOK, map[string]any{"role": a.Role, "actions": actions})
}

// ListRoles (GET /api/v1/rbac/roles)
func (s *Server) ListRoles(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.Authorizer.Authorize(ctx, a, "users", "view", ""); err != nil {
		return err
	}
	roles, err := s.RBAC.ListRoles(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"roles": roles, "total": len(roles)})
}

// ListPermissions (GET /api/v1/rbac/permissions)
func (s *Server) ListPermissions(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.Authorizer.Authorize(ctx, a, "users", "view", ""); err != nil {
		return err
	}
	modules, err := s.RBAC.ListPermissions(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"modules": modules})
}

// GetRolePermissions (GET /api/v1/rbac/roles/:id/permissions)
func (s *Server) GetRolePermissions(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.Authorizer.Authorize(ctx, a, "users", "view", id); err != nil {
		return err
	}
	matrix, err := s.RBAC.RoleMatrix(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, matrix)
}

type permissionToggle struct {
	PermissionID string `json:"permission_id"`
	Allowed      bool   `json:"allowed"`
}

type updateRolePermissionsRequest struct {
	Permissions []permissionToggle `json:"permissions"`
}

// UpdateRolePermissions toggles permissions on a role
// (PUT /api/v1/rbac/roles/:id/permissions)
func (s *Server) UpdateRolePermissions(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	var req updateRolePermissionsRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body.")
	}
	updates := make([]models.RolePermission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		if p.PermissionID == "" {
			return apperr.BadRequest("permission_id is required.")
		}
		updates = append(updates, models.RolePermission{RoleID: id, PermissionID: p.PermissionID, Allowed: p.Allowed})
	}
	matrix, err := s.RBAC.UpdateRoleMatrix(c.Request().Context(), id, updates, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, matrix)
}
