package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/metrics"
	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

// Analysis types accepted by Process.
const (
	TypeGDPR       = "gdpr"
	TypeCCPA       = "ccpa"
	TypeCompliance = "compliance"
)

// DocumentSource loads documents on behalf of an actor.
type DocumentSource interface {
	GetForActor(ctx context.Context, id string, actor models.Actor, canAccessAny bool) (*models.Document, error)
}

// Authorizer gates the prompt management operations.
type Authorizer interface {
	Authorize(ctx context.Context, actor models.Actor, resource, action, resourceID string) error
}

// Request asks for one reasoning-path analysis of a stored document.
type Request struct {
	DocumentID   string  `json:"document_id"`
	AnalysisType string  `json:"analysis_type"`
	WorkflowID   *string `json:"workflow_id,omitempty"`
	// CanAccessAny lets the actor analyze documents uploaded by someone else.
	CanAccessAny bool `json:"-"`
}

// Outcome is a persisted result. Degraded is set when the inference backend
// failed and Result holds the fallback values.
type Outcome struct {
	Result   *models.AnalysisResult
	Degraded *apperr.ExternalServiceError
}

// Service runs analyses, persists their results and manages prompt versions.
type Service struct {
	docs       DocumentSource
	results    repository.AnalysisStore
	prompts    repository.PromptStore
	analyzer   *Analyzer
	authorizer Authorizer
	audit      audit.Recorder
	metrics    *metrics.Metrics
	logger     Logger
}

// NewService creates a Service.
func NewService(docs DocumentSource, results repository.AnalysisStore, prompts repository.PromptStore,
	analyzer *Analyzer, authorizer Authorizer, recorder audit.Recorder, m *metrics.Metrics, logger Logger) *Service {
	return &Service{
		docs:       docs,
		results:    results,
		prompts:    prompts,
		analyzer:   analyzer,
		authorizer: authorizer,
		audit:      recorder,
		metrics:    m,
		logger:     logger,
	}
}

// Process runs the reasoning path against a document using the active prompt
// of the requested type. A degraded inference still produces a stored result.
func (s *Service) Process(ctx context.Context, req Request, actor models.Actor) (*Outcome, error) {
	if req.AnalysisType == "" {
		return nil, apperr.BadRequest("analysis_type is required.")
	}
	doc, err := s.docs.GetForActor(ctx, req.DocumentID, actor, req.CanAccessAny)
	if err != nil {
		return nil, err
	}
	if doc.ExtractedText == "" {
		return nil, apperr.BadRequest("Document has no extracted text to analyze.")
	}

	active, err := s.prompts.GetActivePrompt(ctx, req.AnalysisType)
	if err != nil {
		return nil, fmt.Errorf("failed to load active prompt: %w", err)
	}
	systemPrompt := fmt.Sprintf("You are a legal AI assistant analyzing for %s compliance.", req.AnalysisType)
	var promptID *string
	if active != nil {
		systemPrompt = active.SystemPrompt
		promptID = &active.ID
	}

	start := time.Now()
	reasoning, degraded := s.analyzer.Reason(ctx, systemPrompt, doc.ExtractedText)
	latency := time.Since(start).Seconds()

	confidence := reasoning.ConfidenceScore
	result := &models.AnalysisResult{
		DocumentID:      doc.ID,
		WorkflowID:      req.WorkflowID,
		AnalysisType:    req.AnalysisType,
		PromptVersionID: promptID,
		RulesTriggered:  &reasoning.RulesTriggered,
		ConfidenceScore: &confidence,
		SourceText:      &reasoning.SourceText,
		LatencySeconds:  latency,
		AnalyzedBy:      actor.UserID,
	}
	if err := s.results.CreateAnalysisResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save analysis result: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "analysis",
		Action:     "analysis_performed",
		ResourceID: result.ID,
		Metadata:   map[string]any{"analysis_type": req.AnalysisType, "document_id": doc.ID},
	})
	s.logger.Info("analysis completed",
		"document_id", doc.ID, "analysis_type", req.AnalysisType, "latency_seconds", latency, "degraded", degraded != nil)
	return &Outcome{Result: result, Degraded: degraded}, nil
}

// AnalyzeDocument runs the compliance path and overlays the deterministic
// score on the model's detected sections.
func (s *Service) AnalyzeDocument(ctx context.Context, documentID string, workflowID *string, actor models.Actor, canAccessAny bool) (*Outcome, error) {
	doc, err := s.docs.GetForActor(ctx, documentID, actor, canAccessAny)
	if err != nil {
		return nil, err
	}
	if doc.ExtractedText == "" {
		return nil, apperr.BadRequest("Cannot extract text from document: no text available.")
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "compliance_analysis",
		Action:     "analyze",
		ResourceID: doc.ID,
		PolicyInput: map[string]any{
			"role":     actor.Role,
			"resource": "documents",
			"action":   "read_own",
		},
		PolicyDecision: map[string]any{"allow": true},
	})

	systemPrompt := DefaultCompliancePrompt
	var promptID *string
	active, err := s.prompts.GetActivePrompt(ctx, TypeCompliance)
	if err != nil {
		return nil, fmt.Errorf("failed to load active prompt: %w", err)
	}
	if active != nil {
		systemPrompt = active.SystemPrompt
		promptID = &active.ID
	}

	start := time.Now()
	raw, degraded := s.analyzer.Compliance(ctx, systemPrompt, doc.ExtractedText)
	report := Score(raw.DetectedSections)
	latency := time.Since(start).Seconds()

	result := &models.AnalysisResult{
		DocumentID:       doc.ID,
		WorkflowID:       workflowID,
		AnalysisType:     TypeCompliance,
		PromptVersionID:  promptID,
		GDPRStatus:       &report.GDPRStatus,
		CCPAStatus:       &report.CCPAStatus,
		Score:            &report.Score,
		DetectedSections: raw.DetectedSections,
		MissingSections:  report.MissingSections,
		AISuggestions:    raw.AISuggestions,
		LatencySeconds:   latency,
		AnalyzedBy:       actor.UserID,
	}
	if err := s.results.CreateAnalysisResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save compliance result: %w", err)
	}

	s.metrics.ComplianceResult(ctx, TypeGDPR, report.GDPRStatus)
	s.metrics.ComplianceResult(ctx, TypeCCPA, report.CCPAStatus)
	s.metrics.DocumentProcessed(ctx)
	s.logger.Info("compliance analysis complete",
		"document_id", doc.ID, "score", report.Score,
		"gdpr_status", report.GDPRStatus, "ccpa_status", report.CCPAStatus, "latency_seconds", latency)
	return &Outcome{Result: result, Degraded: degraded}, nil
}

// LatestCompliance returns the newest compliance result of a document the actor can see.
func (s *Service) LatestCompliance(ctx context.Context, documentID string, actor models.Actor, canAccessAny bool) (*models.AnalysisResult, error) {
	if _, err := s.docs.GetForActor(ctx, documentID, actor, canAccessAny); err != nil {
		return nil, err
	}
	res, err := s.results.LatestComplianceResult(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("analysis result", documentID)
	}
	return res, err
}

// GetResult loads one stored result. Results of documents the actor cannot see
// are reported as not found.
func (s *Service) GetResult(ctx context.Context, id string, actor models.Actor, canAccessAny bool) (*models.AnalysisResult, error) {
	res, err := s.results.GetAnalysisResult(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("analysis result", id)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.docs.GetForActor(ctx, res.DocumentID, actor, canAccessAny); err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			return nil, apperr.NotFound("analysis result", id)
		}
		return nil, err
	}
	return res, nil
}
