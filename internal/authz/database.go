package authz

import (
	"context"
	"strings"

	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

// DatabaseTier reads the persisted role-permission matrix. An existing row is
// definitive, including an explicit false.
type DatabaseTier struct {
	store  repository.RBACStore
	logger Logger
}

// NewDatabaseTier creates a DatabaseTier over store.
func NewDatabaseTier(store repository.RBACStore, logger Logger) *DatabaseTier {
	return &DatabaseTier{store: store, logger: logger}
}

func (d *DatabaseTier) Name() string { return "database" }

func (d *DatabaseTier) Decide(ctx context.Context, role, resource, action string) (bool, bool) {
	allowed, found, err := d.store.LookupRolePermission(ctx, role, models.Action{Resource: resource, Action: action}.String())
	if err != nil {
		d.logger.Warn("role permission lookup failed", "role", role, "error", err)
		return false, false
	}
	return allowed, found
}

func (d *DatabaseTier) Actions(ctx context.Context, role string) ([]models.Action, bool) {
	names, hasRows, err := d.store.ListAllowedPermissions(ctx, role)
	if err != nil {
		d.logger.Warn("allowed permission lookup failed", "role", role, "error", err)
		return nil, false
	}
	if !hasRows {
		return nil, false
	}
	actions := make([]models.Action, 0, len(names))
	for _, name := range names {
		if a, ok := ParseAction(name); ok {
			actions = append(actions, a)
		}
	}
	return actions, true
}

// ParseAction splits a canonical "resource/action" permission name.
func ParseAction(name string) (models.Action, bool) {
	resource, action, ok := strings.Cut(name, "/")
	if !ok || resource == "" || action == "" {
		return models.Action{}, false
	}
	return models.Action{Resource: resource, Action: action}, true
}
