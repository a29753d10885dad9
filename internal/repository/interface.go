package repository

import (
	"context"
	"errors"

	"veritas/backend/pkg/models"
)

// ErrNotFound is returned by every lookup that matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateSequence is returned when a step reuses a sequence number within an execution.
var ErrDuplicateSequence = errors.New("duplicate step sequence")

// WorkflowStore persists workflow definitions. Nodes and edges are stored as JSON documents.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	// ListWorkflows returns workflows created by createdBy, or all workflows when createdBy is empty.
	ListWorkflows(ctx context.Context, createdBy string) ([]*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionStore persists workflow runs and their steps.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *models.WorkflowExecution) error
	UpdateExecution(ctx context.Context, exec *models.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
	// ListExecutions returns the newest runs of a workflow first.
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error)
	CreateStep(ctx context.Context, step *models.ExecutionStep) error
	UpdateStep(ctx context.Context, step *models.ExecutionStep) error
	// ListSteps returns the steps of an execution in the order they were appended.
	ListSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
}

// DocumentStore persists document metadata and extracted text. Blobs live in storage.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// ListDocuments returns documents uploaded by uploadedBy, or all when it is empty.
	ListDocuments(ctx context.Context, uploadedBy string) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// AnalysisStore persists immutable analysis results.
type AnalysisStore interface {
	CreateAnalysisResult(ctx context.Context, res *models.AnalysisResult) error
	GetAnalysisResult(ctx context.Context, id string) (*models.AnalysisResult, error)
	// LatestComplianceResult returns the newest structured compliance result of a document.
	LatestComplianceResult(ctx context.Context, documentID string) (*models.AnalysisResult, error)
}

// PromptStore persists versioned system prompts.
type PromptStore interface {
	// GetActivePrompt returns nil and no error when no prompt is active for the type.
	GetActivePrompt(ctx context.Context, analysisType string) (*models.PromptVersion, error)
	ListPrompts(ctx context.Context, analysisType string) ([]*models.PromptVersion, error)
	CreatePrompt(ctx context.Context, p *models.PromptVersion) error
	// ActivatePrompt makes id the only active prompt of its analysis type.
	ActivatePrompt(ctx context.Context, id string) (*models.PromptVersion, error)
}

// RBACStore persists the role/permission matrix.
type RBACStore interface {
	ListRoles(ctx context.Context) ([]*models.Role, error)
	GetRole(ctx context.Context, id string) (*models.Role, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	UpsertRole(ctx context.Context, role *models.Role) error
	UpsertPermission(ctx context.Context, perm *models.Permission) error
	// LookupRolePermission returns the allowed flag of the role's row for the named
	// permission; found is false when no row exists.
	LookupRolePermission(ctx context.Context, roleName, permissionName string) (allowed, found bool, err error)
	// ListAllowedPermissions returns the names of permissions allowed for the role and
	// whether the role has any rows at all.
	ListAllowedPermissions(ctx context.Context, roleName string) (names []string, hasRows bool, err error)
	ListRolePermissions(ctx context.Context, roleID string) ([]*models.RolePermissionView, error)
	SetRolePermissions(ctx context.Context, roleID string, updates []models.RolePermission) (int, error)
}

// AuditFilter narrows an audit log listing. Empty fields do not filter.
type AuditFilter struct {
	UserID     string
	Resource   string
	Action     string
	ResourceID string
	Limit      int
	Offset     int
}

// AuditStore is append-only: it has no update or delete operation.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, f AuditFilter) ([]*models.AuditLog, error)
}

// Repository is the full persistence surface of the service.
type Repository interface {
	WorkflowStore
	ExecutionStore
	DocumentStore
	AnalysisStore
	PromptStore
	RBACStore
	AuditStore
	Ping(ctx context.Context) error
}
