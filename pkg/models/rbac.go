package models

import "time"

// Role is one of the fixed firm roles.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Permission is identified by its canonical "resource/action" name.
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Module      string `json:"module"`
}

// RolePermission toggles one permission for one role.
type RolePermission struct {
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
	Allowed      bool   `json:"allowed"`
}

// RolePermissionView is a permission joined with a role's toggle. Allowed is
// false when the role has no row for the permission.
type RolePermissionView struct {
	Permission
	Allowed bool `json:"allowed"`
}

// AuditLog is an append-only record of an authorization decision or state change.
type AuditLog struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Role           string         `json:"role"`
	Resource       string         `json:"resource"`
	Action         string         `json:"action"`
	ResourceID     *string        `json:"resource_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	PolicyInput    map[string]any `json:"policy_input,omitempty"`
	PolicyDecision map[string]any `json:"policy_decision,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
