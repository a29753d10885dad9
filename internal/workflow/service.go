package workflow

import (
	"context"
	"errors"
	"fmt"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

// DefaultExecutionLimit bounds ListExecutions when no limit is given.
const DefaultExecutionLimit = 20

// Definition is the editable part of a workflow.
type Definition struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Nodes       []models.Node `json:"nodes"`
	Edges       []models.Edge `json:"edges"`
}

// Patch updates the fields that are set.
type Patch struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	IsActive    *bool          `json:"is_active,omitempty"`
	Nodes       *[]models.Node `json:"nodes,omitempty"`
	Edges       *[]models.Edge `json:"edges,omitempty"`
}

// ExecutionDetail is an execution with its ordered steps.
type ExecutionDetail struct {
	*models.WorkflowExecution
	Steps []*models.ExecutionStep `json:"steps"`
}

// Service manages workflow definitions and their execution history.
type Service struct {
	store      Store
	authorizer Authorizer
	audit      audit.Recorder
	logger     Logger
}

// NewService creates a Service.
func NewService(store Store, authorizer Authorizer, recorder audit.Recorder, logger Logger) *Service {
	return &Service{store: store, authorizer: authorizer, audit: recorder, logger: logger}
}

// Create validates and stores a new workflow owned by actor.
func (s *Service) Create(ctx context.Context, def Definition, actor models.Actor) (*models.Workflow, error) {
	if err := s.authorizer.Authorize(ctx, actor, "workflows", "create", ""); err != nil {
		return nil, err
	}
	if def.Name == "" {
		return nil, apperr.Validation("Workflow name is required.")
	}
	nodes, edges := orEmpty(def.Nodes, def.Edges)
	if err := Validate(nodes, edges); err != nil {
		return nil, err
	}

	wf := &models.Workflow{
		Name:        def.Name,
		Description: def.Description,
		Nodes:       nodes,
		Edges:       edges,
		IsActive:    true,
		CreatedBy:   actor.UserID,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "workflow",
		Action:     "workflow_created",
		ResourceID: wf.ID,
		Metadata:   map[string]any{"name": wf.Name},
	})
	return wf, nil
}

// List returns every workflow to actors with workflows/view_all, otherwise their own.
func (s *Service) List(ctx context.Context, actor models.Actor) ([]*models.Workflow, error) {
	owner := actor.UserID
	canViewAll := s.authorizer.Can(ctx, actor, "workflows", "view_all")
	if canViewAll {
		owner = ""
	}
	wfs, err := s.store.ListWorkflows(ctx, owner)
	if err != nil {
		return nil, err
	}
	s.recordViewAll(ctx, actor, "list", "", canViewAll)
	if wfs == nil {
		wfs = []*models.Workflow{}
	}
	return wfs, nil
}

// Get loads a workflow. Foreign workflows are not found without workflows/view_all.
func (s *Service) Get(ctx context.Context, id string, actor models.Actor) (*models.Workflow, error) {
	wf, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.CreatedBy != actor.UserID {
		canViewAll := s.authorizer.Can(ctx, actor, "workflows", "view_all")
		s.recordViewAll(ctx, actor, "view", id, canViewAll)
		if !canViewAll {
			return nil, apperr.NotFound("workflow", id)
		}
	}
	return wf, nil
}

// recordViewAll audits a workflows/view_all decision that widened, or would
// have widened, what actor sees.
func (s *Service) recordViewAll(ctx context.Context, actor models.Actor, action, resourceID string, allowed bool) {
	s.audit.Record(ctx, audit.Entry{
		Actor:          actor,
		Resource:       "workflow",
		Action:         action,
		ResourceID:     resourceID,
		PolicyInput:    map[string]any{"role": actor.Role, "resource": "workflows", "action": "view_all"},
		PolicyDecision: map[string]any{"allow": allowed},
	})
}

// Update applies a patch. Only the creator may update a workflow.
func (s *Service) Update(ctx context.Context, id string, patch Patch, actor models.Actor) (*models.Workflow, error) {
	if err := s.authorizer.Authorize(ctx, actor, "workflows", "create", id); err != nil {
		return nil, err
	}
	wf, err := s.owned(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	var fields []string
	if patch.Name != nil {
		wf.Name = *patch.Name
		fields = append(fields, "name")
	}
	if patch.Description != nil {
		wf.Description = *patch.Description
		fields = append(fields, "description")
	}
	if patch.IsActive != nil {
		wf.IsActive = *patch.IsActive
		fields = append(fields, "is_active")
	}
	if patch.Nodes != nil {
		wf.Nodes = *patch.Nodes
		fields = append(fields, "nodes")
	}
	if patch.Edges != nil {
		wf.Edges = *patch.Edges
		fields = append(fields, "edges")
	}
	wf.Nodes, wf.Edges = orEmpty(wf.Nodes, wf.Edges)
	if patch.Nodes != nil || patch.Edges != nil {
		if err := Validate(wf.Nodes, wf.Edges); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if fields == nil {
		fields = []string{}
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "workflow",
		Action:     "workflow_updated",
		ResourceID: wf.ID,
		Metadata:   map[string]any{"updated_fields": fields},
	})
	return wf, nil
}

// Delete removes a workflow owned by actor. Its executions are kept.
func (s *Service) Delete(ctx context.Context, id string, actor models.Actor) error {
	if err := s.authorizer.Authorize(ctx, actor, "workflows", "delete", id); err != nil {
		return err
	}
	wf, err := s.owned(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("workflow", id)
		}
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "workflow",
		Action:     "workflow_deleted",
		ResourceID: id,
		Metadata:   map[string]any{"name": wf.Name},
	})
	return nil
}

// GetExecution returns a run with its steps. Runs triggered by someone else
// are visible only with workflows/view_all; a denied view is audited and
// reported as not found.
func (s *Service) GetExecution(ctx context.Context, id string, actor models.Actor) (*ExecutionDetail, error) {
	exec, err := s.store.GetExecution(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}

	canViewAll := s.authorizer.Can(ctx, actor, "workflows", "view_all")
	input := map[string]any{"role": actor.Role, "resource": "workflows", "action": "view_all"}
	if !canViewAll && exec.TriggeredBy != actor.UserID {
		s.audit.Record(ctx, audit.Entry{
			Actor:          actor,
			Resource:       "executions",
			Action:         "view_denied",
			ResourceID:     id,
			PolicyInput:    input,
			PolicyDecision: map[string]any{"allow": false},
			Metadata:       map[string]any{"reason": "not_owner"},
		})
		return nil, apperr.NotFound("execution", id)
	}

	steps, err := s.store.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	if steps == nil {
		steps = []*models.ExecutionStep{}
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:          actor,
		Resource:       "executions",
		Action:         "view",
		ResourceID:     id,
		PolicyInput:    input,
		PolicyDecision: map[string]any{"allow": canViewAll},
	})
	return &ExecutionDetail{WorkflowExecution: exec, Steps: steps}, nil
}

// ListExecutions lists the newest runs of a workflow. Without workflows/view_all
// only the actor's own runs are returned.
func (s *Service) ListExecutions(ctx context.Context, workflowID string, limit int, actor models.Actor) ([]*models.WorkflowExecution, error) {
	if err := s.authorizer.Authorize(ctx, actor, "workflows", "view_own", workflowID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultExecutionLimit
	}
	execs, err := s.store.ListExecutions(ctx, workflowID, limit)
	if err != nil {
		return nil, err
	}

	canViewAll := s.authorizer.Can(ctx, actor, "workflows", "view_all")
	visible := make([]*models.WorkflowExecution, 0, len(execs))
	for _, e := range execs {
		if canViewAll || e.TriggeredBy == actor.UserID {
			visible = append(visible, e)
		}
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:          actor,
		Resource:       "executions",
		Action:         "list",
		ResourceID:     workflowID,
		PolicyInput:    map[string]any{"role": actor.Role, "resource": "workflows", "action": "view_all"},
		PolicyDecision: map[string]any{"allow": canViewAll},
		Metadata:       map[string]any{"limit": limit},
	})
	return visible, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("workflow", id)
	}
	return wf, err
}

// owned loads a workflow created by actor; anything else is not found.
func (s *Service) owned(ctx context.Context, id string, actor models.Actor) (*models.Workflow, error) {
	wf, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.CreatedBy != actor.UserID {
		return nil, apperr.NotFound("workflow", id)
	}
	return wf, nil
}

func orEmpty(nodes []models.Node, edges []models.Edge) ([]models.Node, []models.Edge) {
	if nodes == nil {
		nodes = []models.Node{}
	}
	if edges == nil {
		edges = []models.Edge{}
	}
	return nodes, edges
}
