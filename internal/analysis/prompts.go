package analysis

import (
	"context"
	"errors"
	"fmt"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

// NewPrompt is the input for a new prompt version.
type NewPrompt struct {
	AnalysisType string `json:"analysis_type"`
	Version      string `json:"version"`
	SystemPrompt string `json:"system_prompt"`
	IsActive     bool   `json:"is_active"`
}

// ListPrompts returns prompt versions, optionally of a single analysis type.
func (s *Service) ListPrompts(ctx context.Context, actor models.Actor, analysisType string) ([]*models.PromptVersion, error) {
	if err := s.authorizer.Authorize(ctx, actor, "prompts", "view", ""); err != nil {
		return nil, err
	}
	prompts, err := s.prompts.ListPrompts(ctx, analysisType)
	if err != nil {
		return nil, err
	}
	if prompts == nil {
		prompts = []*models.PromptVersion{}
	}
	return prompts, nil
}

// CreatePrompt stores a new version. An active version replaces the current
// active version of the same type.
func (s *Service) CreatePrompt(ctx context.Context, actor models.Actor, in NewPrompt) (*models.PromptVersion, error) {
	if err := s.authorizer.Authorize(ctx, actor, "prompts", "create", ""); err != nil {
		return nil, err
	}
	var missing []string
	if in.AnalysisType == "" {
		missing = append(missing, "analysis_type is required")
	}
	if in.Version == "" {
		missing = append(missing, "version is required")
	}
	if in.SystemPrompt == "" {
		missing = append(missing, "system_prompt is required")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation(missing...)
	}

	p := &models.PromptVersion{
		AnalysisType: in.AnalysisType,
		Version:      in.Version,
		SystemPrompt: in.SystemPrompt,
		IsActive:     in.IsActive,
	}
	if err := s.prompts.CreatePrompt(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "prompts",
		Action:     "prompt_created",
		ResourceID: p.ID,
		Metadata:   map[string]any{"analysis_type": p.AnalysisType, "version": p.Version, "is_active": p.IsActive},
	})
	return p, nil
}

// ActivatePrompt makes a version the only active prompt of its type.
func (s *Service) ActivatePrompt(ctx context.Context, actor models.Actor, id string) (*models.PromptVersion, error) {
	if err := s.authorizer.Authorize(ctx, actor, "prompts", "update", id); err != nil {
		return nil, err
	}
	p, err := s.prompts.ActivatePrompt(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("prompt", id)
	}
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "prompts",
		Action:     "prompt_activated",
		ResourceID: p.ID,
		Metadata:   map[string]any{"analysis_type": p.AnalysisType, "version": p.Version},
	})
	return p, nil
}
