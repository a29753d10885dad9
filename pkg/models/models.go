// Package models defines the domain models for the compliance service
package models

import (
	"time"
)

// Role names are fixed; only the permission matrix behind them is editable.
const (
	RoleParalegal = "paralegal"
	RoleAssociate = "associate"
	RolePartner   = "partner"
	RoleITAdmin   = "it_admin"
)

// Roles lists every supported role in display order.
var Roles = []string{RoleParalegal, RoleAssociate, RolePartner, RoleITAdmin}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`
}

// Action is a single resource/action pair a role may be allowed to perform.
type Action struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// String returns the canonical "resource/action" permission name.
func (a Action) String() string {
	return a.Resource + "/" + a.Action
}

// RunStatus is the lifecycle state of an execution or one of its steps.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s RunStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type             string   `json:"type"`
	Title            string   `json:"title"`
	Status           int      `json:"status"`
	Detail           string   `json:"detail,omitempty"`
	Instance         string   `json:"instance,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}
