// Package seed loads the baseline roles, permission matrix, prompt versions
// and sample workflows into a store. Every step is idempotent.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"veritas/backend/internal/authz"
	"veritas/backend/internal/repository"
	"veritas/backend/internal/workflow"
	"veritas/backend/pkg/models"
)

// CreatedBy marks rows written by the seeder.
const CreatedBy = "seed"

//go:embed seed.yaml
var defaultFixture []byte

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
}

// Store is the persistence surface the seeder writes to.
type Store interface {
	repository.RBACStore
	repository.PromptStore
	repository.WorkflowStore
}

type Fixture struct {
	Roles       []Role       `yaml:"roles"`
	Permissions []Permission `yaml:"permissions"`
	Prompts     []Prompt     `yaml:"prompts"`
	Workflows   []Workflow   `yaml:"workflows"`
}

type Role struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
}

// Permission names use the canonical "resource/action" form.
type Permission struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Module      string `yaml:"module"`
}

type Prompt struct {
	AnalysisType string `yaml:"analysis_type"`
	Version      string `yaml:"version"`
	SystemPrompt string `yaml:"system_prompt"`
	Active       bool   `yaml:"active"`
}

type Workflow struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Nodes       []models.Node `yaml:"nodes"`
	Edges       []models.Edge `yaml:"edges"`
}

// Summary counts what a run wrote. Skipped rows are not counted.
type Summary struct {
	Roles       int
	Permissions int
	Matrices    int
	Prompts     int
	Workflows   int
}

// Default returns the embedded fixture.
func Default() (*Fixture, error) {
	return Parse(defaultFixture)
}

// Parse decodes a YAML fixture.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed fixture: %w", err)
	}
	return &f, nil
}

// Run writes the fixture. Roles and permissions are upserted. A role's
// matrix is written from matrix only while the role has no toggles, so edits
// made through the RBAC API survive a re-seed. Prompts and workflows are
// matched by (analysis type, version) and name.
func Run(ctx context.Context, store Store, f *Fixture, matrix map[string][]models.Action, logger Logger) (Summary, error) {
	var sum Summary

	roles := make([]*models.Role, 0, len(f.Roles))
	for _, r := range f.Roles {
		role := models.Role{Name: r.Name, DisplayName: r.DisplayName}
		if err := store.UpsertRole(ctx, &role); err != nil {
			return sum, fmt.Errorf("failed to upsert role %s: %w", role.Name, err)
		}
		roles = append(roles, &role)
		sum.Roles++
	}

	perms := make([]*models.Permission, 0, len(f.Permissions))
	for _, p := range f.Permissions {
		perm := models.Permission{Name: p.Name, DisplayName: p.DisplayName, Module: p.Module}
		if _, ok := authz.ParseAction(perm.Name); !ok {
			return sum, fmt.Errorf("permission %q is not a resource/action name", perm.Name)
		}
		if err := store.UpsertPermission(ctx, &perm); err != nil {
			return sum, fmt.Errorf("failed to upsert permission %s: %w", perm.Name, err)
		}
		perms = append(perms, &perm)
		sum.Permissions++
	}

	for _, role := range roles {
		_, hasRows, err := store.ListAllowedPermissions(ctx, role.Name)
		if err != nil {
			return sum, fmt.Errorf("failed to read matrix of %s: %w", role.Name, err)
		}
		if hasRows {
			logger.Info("Skipping existing role matrix", "role", role.Name)
			continue
		}
		granted := make(map[string]bool, len(matrix[role.Name]))
		for _, a := range matrix[role.Name] {
			granted[a.String()] = true
		}
		toggles := make([]models.RolePermission, 0, len(perms))
		for _, p := range perms {
			toggles = append(toggles, models.RolePermission{RoleID: role.ID, PermissionID: p.ID, Allowed: granted[p.Name]})
		}
		if _, err := store.SetRolePermissions(ctx, role.ID, toggles); err != nil {
			return sum, fmt.Errorf("failed to write matrix of %s: %w", role.Name, err)
		}
		logger.Info("Seeded role matrix", "role", role.Name, "granted", len(granted))
		sum.Matrices++
	}

	for _, p := range f.Prompts {
		existing, err := store.ListPrompts(ctx, p.AnalysisType)
		if err != nil {
			return sum, fmt.Errorf("failed to list prompts: %w", err)
		}
		if hasVersion(existing, p.Version) {
			logger.Info("Skipping existing prompt", "analysis_type", p.AnalysisType, "version", p.Version)
			continue
		}
		pv := &models.PromptVersion{
			AnalysisType: p.AnalysisType,
			Version:      p.Version,
			SystemPrompt: p.SystemPrompt,
			IsActive:     p.Active,
		}
		if err := store.CreatePrompt(ctx, pv); err != nil {
			return sum, fmt.Errorf("failed to create prompt %s/%s: %w", p.AnalysisType, p.Version, err)
		}
		logger.Info("Seeded prompt", "analysis_type", p.AnalysisType, "version", p.Version, "id", pv.ID)
		sum.Prompts++
	}

	existing, err := store.ListWorkflows(ctx, "")
	if err != nil {
		return sum, fmt.Errorf("failed to list existing workflows: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, wf := range existing {
		names[wf.Name] = true
	}
	for _, w := range f.Workflows {
		if names[w.Name] {
			logger.Info("Skipping existing workflow", "name", w.Name)
			continue
		}
		if err := workflow.Validate(w.Nodes, w.Edges); err != nil {
			return sum, fmt.Errorf("seed workflow %s: %w", w.Name, err)
		}
		wf := &models.Workflow{
			Name:        w.Name,
			Description: w.Description,
			Nodes:       w.Nodes,
			Edges:       w.Edges,
			IsActive:    true,
			CreatedBy:   CreatedBy,
		}
		if err := store.CreateWorkflow(ctx, wf); err != nil {
			return sum, fmt.Errorf("failed to create workflow %s: %w", w.Name, err)
		}
		logger.Info("Seeded workflow", "name", w.Name, "id", wf.ID)
		sum.Workflows++
	}
	return sum, nil
}

func hasVersion(prompts []*models.PromptVersion, version string) bool {
	for _, p := range prompts {
		if p.Version == version {
			return true
		}
	}
	return false
}
