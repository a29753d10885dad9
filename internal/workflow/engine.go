package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritas/backend/internal/analysis"
	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/documents"
	"veritas/backend/internal/metrics"
	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

const (
	previewLength = 500
	penaltyPerHit = 25
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Authorizer decides and records access for an actor.
type Authorizer interface {
	Authorize(ctx context.Context, actor models.Actor, resource, action, resourceID string) error
	Can(ctx context.Context, actor models.Actor, resource, action string) bool
}

// Uploader is the intake side of the document store.
type Uploader interface {
	Upload(ctx context.Context, up documents.Upload, actor models.Actor) (*models.Document, error)
}

// Analyzer runs a reasoning-path analysis.
type Analyzer interface {
	Process(ctx context.Context, req analysis.Request, actor models.Actor) (*analysis.Outcome, error)
}

// Store is the persistence the engine needs.
type Store interface {
	repository.WorkflowStore
	repository.ExecutionStore
}

// Report is a finished run with its steps in execution order.
type Report struct {
	Execution *models.WorkflowExecution `json:"execution"`
	Steps     []*models.ExecutionStep   `json:"steps"`
}

// AnalysisOutcome is the summary of one analysis node kept for later nodes.
type AnalysisOutcome struct {
	ResultID        string    `json:"analysis_result_id"`
	AnalysisType    string    `json:"analysis_type"`
	RulesTriggered  string    `json:"rules_triggered"`
	ConfidenceScore float64   `json:"confidence_score"`
	SourceText      string    `json:"source_text"`
	LatencySeconds  float64   `json:"latency_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

func (a AnalysisOutcome) payload() map[string]any {
	return map[string]any{
		"analysis_result_id": a.ResultID,
		"analysis_type":      a.AnalysisType,
		"rules_triggered":    a.RulesTriggered,
		"confidence_score":   a.ConfidenceScore,
		"source_text":        a.SourceText,
		"latency_seconds":    a.LatencySeconds,
		"created_at":         a.CreatedAt.Format(time.RFC3339Nano),
	}
}

// runContext is the state threaded through the nodes of one execution.
type runContext struct {
	workflowID string
	actor      models.Actor
	upload     *documents.Upload
	execution  *models.WorkflowExecution
	document   *models.Document
	analyses   []AnalysisOutcome
}

// Engine executes workflows one node at a time in topological order.
type Engine struct {
	store      Store
	authorizer Authorizer
	documents  Uploader
	analyzer   Analyzer
	audit      audit.Recorder
	metrics    *metrics.Metrics
	logger     Logger
	now        func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(store Store, authorizer Authorizer, uploader Uploader, analyzer Analyzer,
	recorder audit.Recorder, m *metrics.Metrics, logger Logger) *Engine {
	return &Engine{
		store:      store,
		authorizer: authorizer,
		documents:  uploader,
		analyzer:   analyzer,
		audit:      recorder,
		metrics:    m,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs a workflow against an uploaded file. Failures before the
// execution row exists are returned as errors; a node failure ends the run
// as failed and is reported through the returned execution.
func (e *Engine) Execute(ctx context.Context, workflowID string, upload *documents.Upload, actor models.Actor) (*Report, error) {
	if err := e.authorizer.Authorize(ctx, actor, "workflows", "execute", workflowID); err != nil {
		return nil, err
	}

	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("workflow", workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if len(wf.Nodes) == 0 {
		return nil, apperr.Validation("Workflow has no nodes to execute.")
	}
	if err := Validate(wf.Nodes, wf.Edges); err != nil {
		return nil, err
	}
	ordered, err := TopoOrder(wf.Nodes, wf.Edges)
	if err != nil {
		return nil, err
	}

	started := e.now()
	exec := &models.WorkflowExecution{
		WorkflowID:  wf.ID,
		Status:      models.StatusRunning,
		TriggeredBy: actor.UserID,
		StartedAt:   &started,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}
	e.logger.Info("workflow execution started", "workflow_id", wf.ID, "execution_id", exec.ID, "nodes", len(ordered))
	e.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "executions",
		Action:     "execution_started",
		ResourceID: exec.ID,
		Metadata:   map[string]any{"workflow_id": wf.ID, "nodes": len(ordered)},
	})

	rc := &runContext{workflowID: wf.ID, actor: actor, upload: upload, execution: exec}
	runErr := e.run(ctx, rc, ordered)

	finished := e.now()
	exec.FinishedAt = &finished
	exec.Status = models.StatusSucceeded
	if runErr != nil {
		msg := runErr.Error()
		exec.Status = models.StatusFailed
		exec.ErrorMessage = &msg
		e.logger.Warn("workflow execution failed", "execution_id", exec.ID, "error", runErr)
	}
	if err := e.store.UpdateExecution(context.WithoutCancel(ctx), exec); err != nil {
		return nil, fmt.Errorf("failed to finish execution: %w", err)
	}
	e.metrics.WorkflowRun(ctx, string(exec.Status))
	finishedMeta := map[string]any{"workflow_id": wf.ID, "status": string(exec.Status)}
	if exec.ErrorMessage != nil {
		finishedMeta["error_message"] = *exec.ErrorMessage
	}
	e.audit.Record(context.WithoutCancel(ctx), audit.Entry{
		Actor:      actor,
		Resource:   "executions",
		Action:     "execution_finished",
		ResourceID: exec.ID,
		Metadata:   finishedMeta,
	})

	steps, err := e.store.ListSteps(context.WithoutCancel(ctx), exec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	if steps == nil {
		steps = []*models.ExecutionStep{}
	}
	return &Report{Execution: exec, Steps: steps}, nil
}

// run executes the ordered nodes and stops at the first failing node.
func (e *Engine) run(ctx context.Context, rc *runContext, ordered []models.Node) error {
	for seq, node := range ordered {
		started := e.now()
		step := &models.ExecutionStep{
			ExecutionID:  rc.execution.ID,
			NodeID:       node.ID,
			NodeType:     node.TypeTag(),
			Sequence:     seq,
			Status:       models.StatusRunning,
			StartedAt:    &started,
			InputPayload: map[string]any{"node": node},
		}
		if err := e.store.CreateStep(ctx, step); err != nil {
			return fmt.Errorf("failed to record step %s: %w", node.ID, err)
		}

		start := time.Now()
		output, nodeErr := e.dispatch(ctx, rc, node)
		latency := time.Since(start).Seconds()

		finished := e.now()
		step.FinishedAt = &finished
		step.LatencySeconds = &latency
		if nodeErr != nil {
			msg := nodeErr.Error()
			step.Status = models.StatusFailed
			step.ErrorMessage = &msg
		} else {
			step.Status = models.StatusSucceeded
			step.OutputPayload = output
		}
		if err := e.store.UpdateStep(context.WithoutCancel(ctx), step); err != nil {
			e.logger.Error("failed to update step", "step_id", step.ID, "error", err)
			if nodeErr == nil {
				return fmt.Errorf("failed to record step %s: %w", node.ID, err)
			}
		}
		if nodeErr != nil {
			return nodeErr
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, rc *runContext, node models.Node) (map[string]any, error) {
	switch kind := node.Kind(); kind {
	case models.NodeDocumentUpload:
		return e.documentUpload(ctx, rc)
	case models.NodeExtractText:
		return extractText(rc)
	case models.NodeAnalyzeGDPR:
		return e.analyze(ctx, rc, kind, analysis.TypeGDPR)
	case models.NodeAnalyzeCCPA:
		return e.analyze(ctx, rc, kind, analysis.TypeCCPA)
	case models.NodeScoreCompliance:
		return scoreCompliance(rc)
	default:
		return nil, apperr.Validation(fmt.Sprintf("Unknown or unsupported node type '%s'.", node.TypeTag()))
	}
}

func (e *Engine) documentUpload(ctx context.Context, rc *runContext) (map[string]any, error) {
	if rc.upload == nil {
		return nil, &apperr.PreconditionError{Node: string(models.NodeDocumentUpload), Reason: "an uploaded file"}
	}
	doc, err := e.documents.Upload(ctx, *rc.upload, rc.actor)
	if err != nil {
		return nil, err
	}
	rc.document = doc
	rc.execution.DocumentID = &doc.ID
	if err := e.store.UpdateExecution(ctx, rc.execution); err != nil {
		return nil, fmt.Errorf("failed to attach document to execution: %w", err)
	}
	return map[string]any{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"size_bytes":  doc.SizeBytes,
	}, nil
}

func extractText(rc *runContext) (map[string]any, error) {
	if rc.document == nil {
		return nil, &apperr.PreconditionError{Node: string(models.NodeExtractText), Reason: "a document from document_upload"}
	}
	text := rc.document.ExtractedText
	preview := text
	if r := []rune(text); len(r) > previewLength {
		preview = string(r[:previewLength])
	}
	return map[string]any{
		"extracted": text != "",
		"chars":     len([]rune(text)),
		"preview":   preview,
	}, nil
}

func (e *Engine) analyze(ctx context.Context, rc *runContext, kind models.NodeKind, analysisType string) (map[string]any, error) {
	if rc.document == nil {
		return nil, &apperr.PreconditionError{Node: string(kind), Reason: "a document from document_upload"}
	}
	workflowID := rc.workflowID
	out, err := e.analyzer.Process(ctx, analysis.Request{
		DocumentID:   rc.document.ID,
		AnalysisType: analysisType,
		WorkflowID:   &workflowID,
		CanAccessAny: true,
	}, rc.actor)
	if err != nil {
		return nil, err
	}
	if out.Degraded != nil {
		return nil, out.Degraded
	}

	res := out.Result
	outcome := AnalysisOutcome{
		ResultID:       res.ID,
		AnalysisType:   res.AnalysisType,
		LatencySeconds: res.LatencySeconds,
		CreatedAt:      res.CreatedAt,
	}
	if res.RulesTriggered != nil {
		outcome.RulesTriggered = *res.RulesTriggered
	}
	if res.ConfidenceScore != nil {
		outcome.ConfidenceScore = *res.ConfidenceScore
	}
	if res.SourceText != nil {
		outcome.SourceText = *res.SourceText
	}
	rc.analyses = append(rc.analyses, outcome)
	return outcome.payload(), nil
}

// scoreCompliance is a coarse verdict over the run's analyses: every analysis
// that reports a finding costs a fixed penalty. It is independent of
// analysis.Score, which scores the compliance path.
func scoreCompliance(rc *runContext) (map[string]any, error) {
	if len(rc.analyses) == 0 {
		return nil, &apperr.PreconditionError{Node: string(models.NodeScoreCompliance), Reason: "at least one analysis node"}
	}
	penalty := 0
	analyses := make([]map[string]any, 0, len(rc.analyses))
	for _, a := range rc.analyses {
		rules := strings.ToLower(strings.TrimSpace(a.RulesTriggered))
		if rules != "" && rules != "none" {
			penalty += penaltyPerHit
		}
		analyses = append(analyses, a.payload())
	}
	score := max(0, 100-penalty)
	verdict := "needs_review"
	if score == 100 {
		verdict = "compliant"
	}
	return map[string]any{
		"score":    score,
		"verdict":  verdict,
		"analyses": analyses,
	}, nil
}
