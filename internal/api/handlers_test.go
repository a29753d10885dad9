package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/backend/internal/analysis"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/auth"
	"veritas/backend/internal/authz"
	"veritas/backend/internal/documents"
	"veritas/backend/internal/inference"
	"veritas/backend/internal/logging"
	"veritas/backend/internal/metrics"
	"veritas/backend/internal/repository"
	"veritas/backend/internal/storage"
	"veritas/backend/internal/workflow"
	"veritas/backend/pkg/models"
)

const modelReply = `{
  "rules_triggered": ["lawful basis"],
  "confidence_score": 0.9,
  "source_text": "We process personal data.",
  "gdpr_status": "PASS",
  "ccpa_status": "PASS",
  "score": 99,
  "detected_sections": ["data collection", "consumer rights"],
  "missing_sections": [],
  "ai_suggestions": ["Add a retention schedule."]
}`

type cannedModel struct{}

func (cannedModel) Generate(context.Context, inference.GenerateRequest) (string, error) {
	return modelReply, nil
}

type fixedText struct{}

func (fixedText) Extract([]byte) (string, error) { return "This privacy policy describes data collection.", nil }

type harness struct {
	e     *echo.Echo
	store *repository.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.Discard()
	store := repository.NewMemoryStore()
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	writer := audit.NewWriter(store, log)
	authorizer := authz.NewAuthorizer(authz.NewResolver(log, authz.NewStaticTier(authz.DefaultMatrix, true)), writer)
	docs := documents.NewService(store, blobs, fixedText{}, writer, log)
	analyzer := analysis.NewAnalyzer(cannedModel{}, time.Second, time.Second, metrics.Noop(), log)
	analyses := analysis.NewService(docs, store, store, analyzer, authorizer, writer, metrics.Noop(), log)

	s := &Server{
		Workflows:  workflow.NewService(store, authorizer, writer, log),
		Engine:     workflow.NewEngine(store, authorizer, docs, analyses, writer, metrics.Noop(), log),
		Documents:  docs,
		Analysis:   analyses,
		Authorizer: authorizer,
		RBAC:       authz.NewRBACService(store, authorizer, writer, log),
		Audit:      writer,
		DB:         store,
		Logger:     log,
	}

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(log)
	e.GET("/health", s.Health)
	g := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user := c.Request().Header.Get("X-Test-User"); user != "" {
				a := models.Actor{UserID: user, Role: c.Request().Header.Get("X-Test-Role"), Email: user + "@example.com"}
				c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), a)))
			}
			return next(c)
		}
	})
	RegisterHandlers(g, s)
	return &harness{e: e, store: store}
}

type caller struct {
	user, role string
}

var (
	alice   = caller{"alice", models.RoleParalegal}
	bob     = caller{"bob", models.RoleParalegal}
	partner = caller{"pat", models.RolePartner}
	admin   = caller{"ivan", models.RoleITAdmin}
)

func (h *harness) do(t *testing.T, who *caller, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if who != nil {
		req.Header.Set("X-Test-User", who.user)
		req.Header.Set("X-Test-Role", who.role)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *harness) json(t *testing.T, who caller, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return h.do(t, &who, method, path, body, echo.MIMEApplicationJSON)
}

func (h *harness) upload(t *testing.T, who caller, path, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="policy.pdf"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return h.do(t, &who, http.MethodPost, path, &buf, w.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, nil, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[models.HealthStatus](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, Version, status.Version)
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, nil, http.MethodGet, "/api/v1/workflows", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
}

func TestCreateWorkflow_ValidationProblem(t *testing.T) {
	h := newHarness(t)
	def := workflow.Definition{
		Name: "broken",
		Nodes: []models.Node{
			{ID: "g", Type: string(models.NodeAnalyzeGDPR)},
			{ID: "q", Type: "mystery"},
		},
	}
	rec := h.json(t, partner, http.MethodPost, "/api/v1/workflows", def)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	problem := decode[models.ProblemDetails](t, rec)
	assert.Equal(t, "Workflow validation failed.", problem.Detail)
	assert.Equal(t, "/api/v1/workflows", problem.Instance)
	assert.Equal(t, []string{
		"Analysis node 'g' (analyze_gdpr) has no incoming connection",
		"Node 'q' has unknown type 'mystery'",
	}, problem.ValidationErrors)
}

func TestCreateWorkflow_ForbiddenForParalegal(t *testing.T) {
	h := newHarness(t)
	rec := h.json(t, alice, http.MethodPost, "/api/v1/workflows", workflow.Definition{Name: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExecuteWorkflow_FullPipeline(t *testing.T) {
	h := newHarness(t)
	def := workflow.Definition{
		Name: "GDPR review",
		Nodes: []models.Node{
			{ID: "up", Type: string(models.NodeDocumentUpload)},
			{ID: "x", Type: string(models.NodeExtractText)},
			{ID: "g", Type: "default", Data: models.NodeData{Type: string(models.NodeAnalyzeGDPR)}},
			{ID: "s", Type: string(models.NodeScoreCompliance)},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "up", Target: "x"},
			{ID: "e2", Source: "x", Target: "g"},
			{ID: "e3", Source: "g", Target: "s"},
		},
	}
	rec := h.json(t, partner, http.MethodPost, "/api/v1/workflows", def)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wf := decode[models.Workflow](t, rec)

	rec = h.upload(t, partner, "/api/v1/workflows/"+wf.ID+"/execute", documents.ContentTypePDF)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[workflow.Report](t, rec)
	assert.Equal(t, models.StatusSucceeded, report.Execution.Status)
	require.NotNil(t, report.Execution.DocumentID)
	require.Len(t, report.Steps, 4)
	for _, step := range report.Steps {
		assert.Equal(t, models.StatusSucceeded, step.Status, step.NodeID)
	}

	rec = h.json(t, partner, http.MethodGet, "/api/v1/executions/"+report.Execution.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.json(t, partner, http.MethodGet, "/api/v1/workflows/"+wf.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[struct {
		Total int `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, listing.Total)
}

func TestExecuteWorkflow_WithoutFileFailsUploadNode(t *testing.T) {
	h := newHarness(t)
	def := workflow.Definition{
		Name:  "upload only",
		Nodes: []models.Node{{ID: "up", Type: string(models.NodeDocumentUpload)}},
	}
	rec := h.json(t, partner, http.MethodPost, "/api/v1/workflows", def)
	require.Equal(t, http.StatusCreated, rec.Code)
	wf := decode[models.Workflow](t, rec)

	rec = h.json(t, partner, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[workflow.Report](t, rec)
	assert.Equal(t, models.StatusFailed, report.Execution.Status)
	require.NotNil(t, report.Execution.ErrorMessage)
	assert.Contains(t, *report.Execution.ErrorMessage, "requires an uploaded file")
}

func TestDocuments_OwnershipScopes(t *testing.T) {
	h := newHarness(t)
	rec := h.upload(t, alice, "/api/v1/documents", documents.ContentTypePDF)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[models.Document](t, rec)
	assert.Equal(t, "alice", doc.UploadedBy)

	rec = h.json(t, bob, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.json(t, bob, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[struct {
		Total int `json:"total"`
	}](t, rec).Total)

	rec = h.json(t, partner, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.json(t, bob, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.json(t, alice, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDocuments_RejectsNonPDF(t *testing.T) {
	h := newHarness(t)
	rec := h.upload(t, alice, "/api/v1/documents", "text/plain")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only PDF files are accepted.", decode[models.ProblemDetails](t, rec).Detail)
}

func TestAnalyzeDocument_ScoresAndStores(t *testing.T) {
	h := newHarness(t)
	rec := h.upload(t, partner, "/api/v1/documents", documents.ContentTypePDF)
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decode[models.Document](t, rec)

	rec = h.json(t, partner, http.MethodPost, "/api/v1/analyze-document?document_id="+doc.ID, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[models.AnalysisResult](t, rec)
	require.NotNil(t, result.Score)
	assert.Equal(t, 35, *result.Score)
	require.NotNil(t, result.GDPRStatus)
	assert.Equal(t, analysis.StatusFail, *result.GDPRStatus)

	rec = h.json(t, partner, http.MethodGet, "/api/v1/analysis/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, result.ID, decode[models.AnalysisResult](t, rec).ID)
}

func TestAnalyze_ReasoningPath(t *testing.T) {
	h := newHarness(t)
	rec := h.upload(t, alice, "/api/v1/documents", documents.ContentTypePDF)
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decode[models.Document](t, rec)

	rec = h.json(t, alice, http.MethodPost, "/api/v1/analyze", map[string]string{"document_id": doc.ID, "analysis_type": "gdpr"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[models.AnalysisResult](t, rec)
	require.NotNil(t, result.ConfidenceScore)
	assert.InDelta(t, 0.9, *result.ConfidenceScore, 1e-9)

	rec = h.json(t, bob, http.MethodGet, "/api/v1/analyze/results/"+result.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScoreSections(t *testing.T) {
	h := newHarness(t)
	rec := h.json(t, alice, http.MethodPost, "/api/v1/compliance/score",
		map[string][]string{"detected_sections": {"data collection", "lawful basis", "data subject rights", "opt-out rights"}})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[analysis.ScoreReport](t, rec)
	assert.Equal(t, analysis.Score([]string{"data collection", "lawful basis", "data subject rights", "opt-out rights"}), report)
}

func TestPrompts_AdminOnlyCreate(t *testing.T) {
	h := newHarness(t)
	in := analysis.NewPrompt{AnalysisType: "gdpr", Version: "v2", SystemPrompt: "Be strict."}

	rec := h.json(t, partner, http.MethodPost, "/api/v1/prompts", in)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.json(t, admin, http.MethodPost, "/api/v1/prompts", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[models.PromptVersion](t, rec)

	rec = h.json(t, admin, http.MethodPut, "/api/v1/prompts/"+p.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.PromptVersion](t, rec).IsActive)

	rec = h.json(t, partner, http.MethodGet, "/api/v1/prompts?analysis_type=gdpr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[struct {
		Total int `json:"total"`
	}](t, rec).Total)
}

func TestRBAC_AllowedActionsAndUpdateGate(t *testing.T) {
	h := newHarness(t)
	rec := h.json(t, alice, http.MethodGet, "/api/v1/rbac/allowed-actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Role    string          `json:"role"`
		Actions []models.Action `json:"actions"`
	}](t, rec)
	assert.Equal(t, models.RoleParalegal, body.Role)
	assert.ElementsMatch(t, authz.DefaultMatrix[models.RoleParalegal], body.Actions)

	update := map[string]any{"permissions": []map[string]any{{"permission_id": "p1", "allowed": true}}}
	rec = h.json(t, partner, http.MethodPut, "/api/v1/rbac/roles/r1/permissions", update)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.json(t, admin, http.MethodPut, "/api/v1/rbac/roles/missing/permissions", update)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditLogs_Scoping(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.upload(t, alice, "/api/v1/documents", documents.ContentTypePDF).Code)
	require.Equal(t, http.StatusCreated, h.upload(t, bob, "/api/v1/documents", documents.ContentTypePDF).Code)

	type listing struct {
		Logs  []models.AuditLog `json:"audit_logs"`
		Total int               `json:"total"`
	}

	rec := h.json(t, alice, http.MethodGet, "/api/v1/audit-logs?action=document_upload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	own := decode[listing](t, rec)
	require.Equal(t, 1, own.Total)
	assert.Equal(t, "alice", own.Logs[0].UserID)

	rec = h.json(t, admin, http.MethodGet, "/api/v1/audit-logs?action=document_upload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[listing](t, rec).Total)

	rec = h.json(t, admin, http.MethodGet, "/api/v1/audit-logs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
