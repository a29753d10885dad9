package authz

import (
	"context"
	"errors"
	"strings"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

var moduleDisplayNames = map[string]string{
	"documents":   "Documents",
	"ai_analysis": "AI Analysis",
	"workflows":   "Workflows",
	"users":       "Users",
	"system":      "System",
}

// PermissionModule groups permissions for the matrix editor.
type PermissionModule struct {
	Module        string                       `json:"module"`
	ModuleDisplay string                       `json:"module_display"`
	Permissions   []*models.RolePermissionView `json:"permissions"`
}

// RoleMatrix is a role with every permission and its toggle.
type RoleMatrix struct {
	Role        *models.Role                 `json:"role"`
	Permissions []*models.RolePermissionView `json:"permissions"`
}

// RBACService manages the persisted role-permission matrix.
type RBACService struct {
	store      repository.RBACStore
	authorizer *Authorizer
	audit      audit.Recorder
	logger     Logger
}

// NewRBACService creates an RBACService.
func NewRBACService(store repository.RBACStore, authorizer *Authorizer, recorder audit.Recorder, logger Logger) *RBACService {
	return &RBACService{store: store, authorizer: authorizer, audit: recorder, logger: logger}
}

// ListRoles lists every role.
func (s *RBACService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []*models.Role{}
	}
	return roles, nil
}

// ListPermissions returns every permission grouped by module, in module order.
func (s *RBACService) ListPermissions(ctx context.Context) ([]PermissionModule, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	modules := []PermissionModule{}
	index := map[string]int{}
	for _, p := range perms {
		i, ok := index[p.Module]
		if !ok {
			display, known := moduleDisplayNames[p.Module]
			if !known {
				display = titleCase(p.Module)
			}
			modules = append(modules, PermissionModule{Module: p.Module, ModuleDisplay: display})
			i = len(modules) - 1
			index[p.Module] = i
		}
		modules[i].Permissions = append(modules[i].Permissions, &models.RolePermissionView{Permission: *p})
	}
	return modules, nil
}

// RoleMatrix returns a role with all of its permission toggles.
func (s *RBACService) RoleMatrix(ctx context.Context, roleID string) (*RoleMatrix, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("role", roleID)
	}
	if err != nil {
		return nil, err
	}
	perms, err := s.store.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return &RoleMatrix{Role: role, Permissions: perms}, nil
}

// UpdateRoleMatrix applies toggles to a role. Only actors allowed
// system_config/manage may edit the matrix.
func (s *RBACService) UpdateRoleMatrix(ctx context.Context, roleID string, updates []models.RolePermission, actor models.Actor) (*RoleMatrix, error) {
	if err := s.authorizer.Authorize(ctx, actor, "system_config", "manage", roleID); err != nil {
		return nil, err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("role", roleID)
	}
	if err != nil {
		return nil, err
	}
	count, err := s.store.SetRolePermissions(ctx, roleID, updates)
	if err != nil {
		return nil, err
	}
	s.logger.Info("role permissions updated", "user_id", actor.UserID, "role", role.Name, "count", count)

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "rbac",
		Action:     "update_role_permissions",
		ResourceID: roleID,
		Metadata: map[string]any{
			"target_role":         role.Name,
			"permissions_changed": count,
		},
	})
	return s.RoleMatrix(ctx, roleID)
}

func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
