package authz

import (
	"context"

	"veritas/backend/pkg/models"
)

// DefaultMatrix is the in-process permission matrix used in development when
// neither the policy service nor the database can answer. It is also the
// matrix written by the seed command.
var DefaultMatrix = map[string][]models.Action{
	models.RoleParalegal: {
		{Resource: "documents", Action: "upload"},
		{Resource: "documents", Action: "list_own"},
		{Resource: "documents", Action: "read_own"},
		{Resource: "documents", Action: "delete_own"},
		{Resource: "workflows", Action: "execute"},
		{Resource: "workflows", Action: "view_own"},
		{Resource: "audit_logs", Action: "view_own"},
	},
	models.RoleAssociate: {
		{Resource: "documents", Action: "upload"},
		{Resource: "documents", Action: "list_own"},
		{Resource: "documents", Action: "read_own"},
		{Resource: "documents", Action: "read_any"},
		{Resource: "documents", Action: "delete_own"},
		{Resource: "workflows", Action: "create"},
		{Resource: "workflows", Action: "execute"},
		{Resource: "workflows", Action: "view_own"},
		{Resource: "workflows", Action: "view_all"},
		{Resource: "audit_logs", Action: "view_own"},
	},
	models.RolePartner: {
		{Resource: "documents", Action: "upload"},
		{Resource: "documents", Action: "list_own"},
		{Resource: "documents", Action: "list_all"},
		{Resource: "documents", Action: "read_own"},
		{Resource: "documents", Action: "read_any"},
		{Resource: "documents", Action: "delete_own"},
		{Resource: "documents", Action: "delete_any"},
		{Resource: "workflows", Action: "create"},
		{Resource: "workflows", Action: "execute"},
		{Resource: "workflows", Action: "view_own"},
		{Resource: "workflows", Action: "view_all"},
		{Resource: "workflows", Action: "delete"},
		{Resource: "audit_logs", Action: "view_own"},
		{Resource: "audit_logs", Action: "view_all"},
		{Resource: "audit_logs", Action: "export"},
		{Resource: "users", Action: "list"},
		{Resource: "users", Action: "view"},
		{Resource: "prompts", Action: "view"},
	},
	models.RoleITAdmin: {
		{Resource: "documents", Action: "list_all"},
		{Resource: "documents", Action: "read_any"},
		{Resource: "workflows", Action: "view_all"},
		{Resource: "audit_logs", Action: "view_all"},
		{Resource: "audit_logs", Action: "export"},
		{Resource: "users", Action: "list"},
		{Resource: "users", Action: "view"},
		{Resource: "users", Action: "create"},
		{Resource: "users", Action: "deactivate"},
		{Resource: "prompts", Action: "create"},
		{Resource: "prompts", Action: "view"},
		{Resource: "prompts", Action: "update"},
		{Resource: "system_config", Action: "manage"},
	},
}

// StaticTier answers from a fixed matrix, but only when enabled. A disabled
// tier never answers, so production deployments fall through to deny.
type StaticTier struct {
	matrix  map[string][]models.Action
	enabled bool
}

// NewStaticTier creates a StaticTier over matrix.
func NewStaticTier(matrix map[string][]models.Action, enabled bool) *StaticTier {
	return &StaticTier{matrix: matrix, enabled: enabled}
}

func (s *StaticTier) Name() string { return "static" }

func (s *StaticTier) Decide(_ context.Context, role, resource, action string) (bool, bool) {
	if !s.enabled {
		return false, false
	}
	for _, a := range s.matrix[role] {
		if a.Resource == resource && a.Action == action {
			return true, true
		}
	}
	return false, true
}

func (s *StaticTier) Actions(_ context.Context, role string) ([]models.Action, bool) {
	if !s.enabled {
		return nil, false
	}
	actions := make([]models.Action, len(s.matrix[role]))
	copy(actions, s.matrix[role])
	return actions, true
}
