package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"veritas/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("veritas"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "schema must be re-appliable")

	t.Run("workflow round trip", func(t *testing.T) {
		wf := &models.Workflow{
			Name:      "intake",
			CreatedBy: "user-1",
			IsActive:  true,
			Nodes:     []models.Node{{ID: "n1", Type: "document_upload"}},
		}
		require.NoError(t, store.CreateWorkflow(ctx, wf))
		assert.NotEmpty(t, wf.ID)

		got, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, "intake", got.Name)
		assert.Len(t, got.Nodes, 1)
		assert.Empty(t, got.Edges)

		mine, err := store.ListWorkflows(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, mine, 1)
		others, err := store.ListWorkflows(ctx, "user-2")
		require.NoError(t, err)
		assert.Empty(t, others)

		got.Name = "intake v2"
		require.NoError(t, store.UpdateWorkflow(ctx, got))
		got, err = store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, "intake v2", got.Name)

		require.NoError(t, store.DeleteWorkflow(ctx, wf.ID))
		_, err = store.GetWorkflow(ctx, wf.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("execution steps keep order", func(t *testing.T) {
		started := time.Now().UTC()
		exec := &models.WorkflowExecution{WorkflowID: "wf-1", Status: models.StatusRunning, TriggeredBy: "user-1", StartedAt: &started}
		require.NoError(t, store.CreateExecution(ctx, exec))

		for i, node := range []string{"b", "a"} {
			step := &models.ExecutionStep{
				ExecutionID:  exec.ID,
				NodeID:       node,
				NodeType:     "extract_text",
				Sequence:     i + 1,
				Status:       models.StatusRunning,
				StartedAt:    &started,
				InputPayload: map[string]any{"node": node},
			}
			require.NoError(t, store.CreateStep(ctx, step))
			step.Status = models.StatusSucceeded
			step.OutputPayload = map[string]any{"chars": float64(10)}
			require.NoError(t, store.UpdateStep(ctx, step))
		}
		dup := &models.ExecutionStep{ExecutionID: exec.ID, NodeID: "c", NodeType: "x", Sequence: 1, Status: models.StatusRunning}
		assert.ErrorIs(t, store.CreateStep(ctx, dup), ErrDuplicateSequence)

		steps, err := store.ListSteps(ctx, exec.ID)
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, "b", steps[0].NodeID)
		assert.Equal(t, models.StatusSucceeded, steps[1].Status)
		assert.Equal(t, float64(10), steps[1].OutputPayload["chars"])

		exec.Status = models.StatusSucceeded
		require.NoError(t, store.UpdateExecution(ctx, exec))
		got, err := store.GetExecution(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSucceeded, got.Status)
	})

	t.Run("rbac matrix", func(t *testing.T) {
		role := &models.Role{Name: models.RoleParalegal, DisplayName: "Paralegal"}
		perm := &models.Permission{Name: "documents/upload", DisplayName: "Upload", Module: "documents"}
		require.NoError(t, store.UpsertRole(ctx, role))
		require.NoError(t, store.UpsertPermission(ctx, perm))

		_, found, err := store.LookupRolePermission(ctx, models.RoleParalegal, "documents/upload")
		require.NoError(t, err)
		assert.False(t, found)

		n, err := store.SetRolePermissions(ctx, role.ID, []models.RolePermission{{PermissionID: perm.ID, Allowed: false}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		allowed, found, err := store.LookupRolePermission(ctx, models.RoleParalegal, "documents/upload")
		require.NoError(t, err)
		assert.True(t, found)
		assert.False(t, allowed)

		names, hasRows, err := store.ListAllowedPermissions(ctx, models.RoleParalegal)
		require.NoError(t, err)
		assert.True(t, hasRows)
		assert.Empty(t, names)
	})

	t.Run("audit filter", func(t *testing.T) {
		rid := "doc-1"
		require.NoError(t, store.AppendAuditLog(ctx, &models.AuditLog{UserID: "u1", Role: "partner", Resource: "documents", Action: "document_upload", ResourceID: &rid, Metadata: map[string]any{"size": float64(3)}}))
		require.NoError(t, store.AppendAuditLog(ctx, &models.AuditLog{UserID: "u2", Role: "partner", Resource: "documents", Action: "document_upload"}))

		entries, err := store.ListAuditLogs(ctx, AuditFilter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, float64(3), entries[0].Metadata["size"])

		entries, err = store.ListAuditLogs(ctx, AuditFilter{ResourceID: "doc-1"})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("prompt activation is exclusive", func(t *testing.T) {
		p1 := &models.PromptVersion{AnalysisType: "gdpr", Version: "v1", SystemPrompt: "one", IsActive: true}
		p2 := &models.PromptVersion{AnalysisType: "gdpr", Version: "v2", SystemPrompt: "two"}
		require.NoError(t, store.CreatePrompt(ctx, p1))
		require.NoError(t, store.CreatePrompt(ctx, p2))

		_, err := store.ActivatePrompt(ctx, p2.ID)
		require.NoError(t, err)
		active, err := store.GetActivePrompt(ctx, "gdpr")
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "v2", active.Version)

		none, err := store.GetActivePrompt(ctx, "ccpa")
		require.NoError(t, err)
		assert.Nil(t, none)
	})
}
