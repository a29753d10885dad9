package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

type recorder struct{ entries []audit.Entry }

func (r *recorder) Record(_ context.Context, e audit.Entry) { r.entries = append(r.entries, e) }

func (r *recorder) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

var (
	other     = models.Actor{UserID: "u2", Role: models.RoleParalegal}
	paralegal = permissions{deny: map[string]bool{"workflows/view_all": true, "workflows/create": true}}
)

func newTestService(perms permissions) (*Service, *repository.MemoryStore, *recorder) {
	store := repository.NewMemoryStore()
	rec := &recorder{}
	return NewService(store, perms, rec, &NoOpLogger{}), store, rec
}

func TestService_CreateValidates(t *testing.T) {
	svc, _, rec := newTestService(permissions{})
	ctx := context.Background()

	_, err := svc.Create(ctx, Definition{
		Name:  "broken",
		Nodes: []models.Node{node("g", models.NodeAnalyzeGDPR)},
	}, actor)
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, rec.entries)

	nodes, edges := pipeline()
	wf, err := svc.Create(ctx, Definition{Name: "intake", Nodes: nodes, Edges: edges}, actor)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, wf.CreatedBy)
	assert.True(t, wf.IsActive)
	assert.Equal(t, []string{"workflow_created"}, rec.actions())
}

func TestService_CreateRequiresPermission(t *testing.T) {
	svc, _, _ := newTestService(paralegal)
	_, err := svc.Create(context.Background(), Definition{Name: "x"}, other)
	var denied *apperr.AuthorizationError
	assert.ErrorAs(t, err, &denied)
}

func TestService_Visibility(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(paralegal)
	mine := &models.Workflow{Name: "mine", CreatedBy: other.UserID}
	theirs := &models.Workflow{Name: "theirs", CreatedBy: actor.UserID}
	require.NoError(t, store.CreateWorkflow(ctx, mine))
	require.NoError(t, store.CreateWorkflow(ctx, theirs))

	list, err := svc.List(ctx, other)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].Name)

	_, err = svc.Get(ctx, theirs.ID, other)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)

	all, _, _ := newTestService(permissions{})
	all.store = store
	list, err = all.List(ctx, other)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	_, err = all.Get(ctx, theirs.ID, other)
	assert.NoError(t, err)
}

func TestService_ViewAllDecisionsAreAudited(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(permissions{})
	theirs := &models.Workflow{Name: "theirs", CreatedBy: actor.UserID}
	require.NoError(t, store.CreateWorkflow(ctx, theirs))

	list, err := svc.List(ctx, other)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, rec.entries, 1)
	listed := rec.entries[0]
	assert.Equal(t, "workflow", listed.Resource)
	assert.Equal(t, "list", listed.Action)
	assert.Equal(t, map[string]any{"role": other.Role, "resource": "workflows", "action": "view_all"}, listed.PolicyInput)
	assert.Equal(t, true, listed.PolicyDecision["allow"])

	_, err = svc.Get(ctx, theirs.ID, other)
	require.NoError(t, err)
	require.Len(t, rec.entries, 2)
	viewed := rec.entries[1]
	assert.Equal(t, "view", viewed.Action)
	assert.Equal(t, theirs.ID, viewed.ResourceID)
	assert.Equal(t, true, viewed.PolicyDecision["allow"])

	_, err = svc.Get(ctx, theirs.ID, actor)
	require.NoError(t, err)
	assert.Len(t, rec.entries, 2, "reading your own workflow needs no view_all decision")

	restricted, _, denied := newTestService(paralegal)
	restricted.store = store
	_, err = restricted.Get(ctx, theirs.ID, other)
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Len(t, denied.entries, 1)
	assert.Equal(t, false, denied.entries[0].PolicyDecision["allow"])
}

func TestService_UpdateOnlyByCreator(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newTestService(permissions{})
	nodes, edges := pipeline()
	wf, err := svc.Create(ctx, Definition{Name: "intake", Nodes: nodes, Edges: edges}, actor)
	require.NoError(t, err)

	name := "renamed"
	_, err = svc.Update(ctx, wf.ID, Patch{Name: &name}, models.Actor{UserID: "u9", Role: models.RolePartner})
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)

	noEdges := []models.Edge{}
	_, err = svc.Update(ctx, wf.ID, Patch{Edges: &noEdges}, actor)
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)

	inactive := false
	updated, err := svc.Update(ctx, wf.ID, Patch{Name: &name, IsActive: &inactive}, actor)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Len(t, updated.Nodes, 4)

	assert.Equal(t, []string{"workflow_created", "workflow_updated"}, rec.actions())
	assert.Equal(t, []string{"name", "is_active"}, rec.entries[1].Metadata["updated_fields"])
}

func TestService_DeleteKeepsExecutions(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(permissions{})
	nodes, edges := pipeline()
	wf, err := svc.Create(ctx, Definition{Name: "intake", Nodes: nodes, Edges: edges}, actor)
	require.NoError(t, err)
	require.NoError(t, store.CreateExecution(ctx, &models.WorkflowExecution{WorkflowID: wf.ID, Status: models.StatusSucceeded, TriggeredBy: actor.UserID}))

	var nf *apperr.NotFoundError
	assert.ErrorAs(t, svc.Delete(ctx, wf.ID, other), &nf)

	require.NoError(t, svc.Delete(ctx, wf.ID, actor))
	_, err = svc.Get(ctx, wf.ID, actor)
	assert.ErrorAs(t, err, &nf)

	execs, err := store.ListExecutions(ctx, wf.ID, 10)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
	assert.Equal(t, "workflow_deleted", rec.entries[len(rec.entries)-1].Action)
}

func TestService_Executions(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(paralegal)
	own := &models.WorkflowExecution{WorkflowID: "wf-1", Status: models.StatusSucceeded, TriggeredBy: other.UserID}
	foreign := &models.WorkflowExecution{WorkflowID: "wf-1", Status: models.StatusFailed, TriggeredBy: actor.UserID}
	require.NoError(t, store.CreateExecution(ctx, own))
	require.NoError(t, store.CreateExecution(ctx, foreign))
	require.NoError(t, store.CreateStep(ctx, &models.ExecutionStep{ExecutionID: own.ID, NodeID: "up", Sequence: 0}))

	detail, err := svc.GetExecution(ctx, own.ID, other)
	require.NoError(t, err)
	assert.Len(t, detail.Steps, 1)

	_, err = svc.GetExecution(ctx, foreign.ID, other)
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	denied := rec.entries[len(rec.entries)-1]
	assert.Equal(t, "view_denied", denied.Action)
	assert.Equal(t, false, denied.PolicyDecision["allow"])

	list, err := svc.ListExecutions(ctx, "wf-1", 0, other)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, own.ID, list[0].ID)
	assert.Equal(t, "list", rec.entries[len(rec.entries)-1].Action)

	blocked, _, _ := newTestService(permissions{deny: map[string]bool{"workflows/view_own": true}})
	_, err = blocked.ListExecutions(ctx, "wf-1", 0, other)
	var authErr *apperr.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}
