package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/metrics"
	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

type docMap map[string]*models.Document

func (d docMap) GetForActor(_ context.Context, id string, actor models.Actor, canAccessAny bool) (*models.Document, error) {
	doc, ok := d[id]
	if !ok || (!canAccessAny && doc.UploadedBy != actor.UserID) {
		return nil, apperr.NotFound("document", id)
	}
	return doc, nil
}

type entries struct{ recorded []audit.Entry }

func (e *entries) Record(_ context.Context, entry audit.Entry) { e.recorded = append(e.recorded, entry) }

// roleGate allows everything to the named role.
type roleGate string

func (g roleGate) Authorize(_ context.Context, actor models.Actor, resource, action, _ string) error {
	if actor.Role != string(g) {
		return &apperr.AuthorizationError{Role: actor.Role, Resource: resource, Action: action}
	}
	return nil
}

var owner = models.Actor{UserID: "u1", Role: models.RoleAssociate}

func newTestService(t *testing.T, client *stubClient) (*Service, *repository.MemoryStore, *entries) {
	t.Helper()
	store := repository.NewMemoryStore()
	docs := docMap{
		"doc-1": {ID: "doc-1", UploadedBy: "u1", ExtractedText: "We collect your email."},
		"empty": {ID: "empty", UploadedBy: "u1"},
	}
	rec := &entries{}
	svc := NewService(docs, store, store, newTestAnalyzer(client), roleGate(models.RoleITAdmin), rec, metrics.Noop(), &NoOpLogger{})
	return svc, store, rec
}

func TestService_Process(t *testing.T) {
	client := &stubClient{out: `{"rules_triggered":"None","confidence_score":0.9,"source_text":"We collect"}`}
	svc, store, rec := newTestService(t, client)
	ctx := context.Background()

	active := &models.PromptVersion{AnalysisType: TypeGDPR, Version: "v1", SystemPrompt: "GDPR reviewer", IsActive: true}
	require.NoError(t, store.CreatePrompt(ctx, active))

	wf := "wf-1"
	out, err := svc.Process(ctx, Request{DocumentID: "doc-1", AnalysisType: TypeGDPR, WorkflowID: &wf}, owner)
	require.NoError(t, err)
	require.Nil(t, out.Degraded)
	assert.Equal(t, "None", *out.Result.RulesTriggered)
	assert.Equal(t, active.ID, *out.Result.PromptVersionID)
	assert.Equal(t, "u1", out.Result.AnalyzedBy)
	assert.True(t, strings.HasPrefix(client.last.System, "GDPR reviewer"))

	stored, err := store.GetAnalysisResult(ctx, out.Result.ID)
	require.NoError(t, err)
	assert.Equal(t, &wf, stored.WorkflowID)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "analysis", rec.recorded[0].Resource)
	assert.Equal(t, "analysis_performed", rec.recorded[0].Action)
	assert.Equal(t, "doc-1", rec.recorded[0].Metadata["document_id"])
}

func TestService_ProcessFallbackPromptAndDegradation(t *testing.T) {
	client := &stubClient{out: "garbage"}
	svc, _, _ := newTestService(t, client)

	out, err := svc.Process(context.Background(), Request{DocumentID: "doc-1", AnalysisType: TypeCCPA}, owner)
	require.NoError(t, err)
	require.NotNil(t, out.Degraded)
	assert.Nil(t, out.Result.PromptVersionID)
	assert.Equal(t, "SYSTEM FAILURE: AI returned invalid JSON format.", *out.Result.RulesTriggered)
	assert.Contains(t, client.last.System, "You are a legal AI assistant analyzing for ccpa compliance.")
}

func TestService_ProcessRejects(t *testing.T) {
	svc, _, rec := newTestService(t, &stubClient{out: "{}"})
	ctx := context.Background()

	_, err := svc.Process(ctx, Request{DocumentID: "missing", AnalysisType: TypeGDPR}, owner)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = svc.Process(ctx, Request{DocumentID: "doc-1", AnalysisType: TypeGDPR}, models.Actor{UserID: "u2"})
	assert.ErrorAs(t, err, &nf)

	_, err = svc.Process(ctx, Request{DocumentID: "empty", AnalysisType: TypeGDPR}, owner)
	var bad *apperr.BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "Document has no extracted text to analyze.", bad.Reason)

	assert.Empty(t, rec.recorded)
}

func TestService_AnalyzeDocument(t *testing.T) {
	client := &stubClient{out: `{"gdpr_status":"PASS","ccpa_status":"PASS","score":99,` +
		`"detected_sections":["data collection","gdpr rights","security"],` +
		`"missing_sections":[],"ai_suggestions":["Add a retention schedule"]}`}
	svc, store, rec := newTestService(t, client)
	ctx := context.Background()

	out, err := svc.AnalyzeDocument(ctx, "doc-1", nil, owner, false)
	require.NoError(t, err)
	require.Nil(t, out.Degraded)

	res := out.Result
	assert.Equal(t, TypeCompliance, res.AnalysisType)
	assert.Equal(t, 45, *res.Score)
	assert.Equal(t, StatusFail, *res.GDPRStatus)
	assert.Equal(t, StatusFail, *res.CCPAStatus)
	assert.Len(t, res.MissingSections, 5)
	assert.Equal(t, []string{"Add a retention schedule"}, res.AISuggestions)

	latest, err := svc.LatestCompliance(ctx, "doc-1", owner, false)
	require.NoError(t, err)
	assert.Equal(t, res.ID, latest.ID)

	_, err = store.LatestComplianceResult(ctx, "empty")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "compliance_analysis", rec.recorded[0].Resource)
	assert.Equal(t, "analyze", rec.recorded[0].Action)
}

func TestService_GetResultHidesForeignDocuments(t *testing.T) {
	svc, _, _ := newTestService(t, &stubClient{out: `{"rules_triggered":"None"}`})
	ctx := context.Background()
	out, err := svc.Process(ctx, Request{DocumentID: "doc-1", AnalysisType: TypeGDPR}, owner)
	require.NoError(t, err)

	_, err = svc.GetResult(ctx, out.Result.ID, owner, false)
	require.NoError(t, err)

	var nf *apperr.NotFoundError
	_, err = svc.GetResult(ctx, out.Result.ID, models.Actor{UserID: "u2"}, false)
	assert.ErrorAs(t, err, &nf)
	_, err = svc.GetResult(ctx, out.Result.ID, models.Actor{UserID: "u2"}, true)
	assert.NoError(t, err)
}

func TestService_Prompts(t *testing.T) {
	svc, _, rec := newTestService(t, &stubClient{})
	ctx := context.Background()
	admin := models.Actor{UserID: "admin", Role: models.RoleITAdmin}

	_, err := svc.CreatePrompt(ctx, owner, NewPrompt{AnalysisType: TypeGDPR, Version: "v1", SystemPrompt: "x"})
	var denied *apperr.AuthorizationError
	assert.ErrorAs(t, err, &denied)

	_, err = svc.CreatePrompt(ctx, admin, NewPrompt{AnalysisType: TypeGDPR})
	var invalid *apperr.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Len(t, invalid.Violations, 2)

	v1, err := svc.CreatePrompt(ctx, admin, NewPrompt{AnalysisType: TypeGDPR, Version: "v1", SystemPrompt: "one", IsActive: true})
	require.NoError(t, err)
	v2, err := svc.CreatePrompt(ctx, admin, NewPrompt{AnalysisType: TypeGDPR, Version: "v2", SystemPrompt: "two", IsActive: true})
	require.NoError(t, err)

	_, err = svc.ActivatePrompt(ctx, admin, v1.ID)
	require.NoError(t, err)

	prompts, err := svc.ListPrompts(ctx, admin, TypeGDPR)
	require.NoError(t, err)
	active := map[string]bool{}
	for _, p := range prompts {
		active[p.ID] = p.IsActive
	}
	assert.Equal(t, map[string]bool{v1.ID: true, v2.ID: false}, active)

	_, err = svc.ActivatePrompt(ctx, admin, "nope")
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)

	none, err := svc.ListPrompts(ctx, admin, TypeCCPA)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
	assert.Len(t, rec.recorded, 3)
}
