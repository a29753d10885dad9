package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"veritas/backend/pkg/models"
)

const documentColumns = "id, filename, content_type, size_bytes, COALESCE(extracted_text, ''), storage_key, uploaded_by, created_at"

// CreateDocument saves document metadata and its extracted text.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = newID()
	}
	doc.CreatedAt = now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (id, filename, content_type, size_bytes, extracted_text, storage_key, uploaded_by, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		doc.ID, doc.Filename, doc.ContentType, doc.SizeBytes, doc.ExtractedText, doc.StorageKey, doc.UploadedBy, doc.CreatedAt)
	return err
}

// GetDocument retrieves a document by its ID.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err)
	}
	return doc, nil
}

// ListDocuments lists documents, newest first.
func (s *PostgresStore) ListDocuments(ctx context.Context, uploadedBy string) ([]*models.Document, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE ($1 = '' OR uploaded_by = $1) ORDER BY created_at DESC",
		uploadedBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document row.
func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.SizeBytes, &doc.ExtractedText,
		&doc.StorageKey, &doc.UploadedBy, &doc.CreatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

const analysisColumns = `id, document_id, workflow_id, analysis_type, prompt_version_id, rules_triggered,
	confidence_score, source_text, gdpr_status, ccpa_status, score, detected_sections, missing_sections,
	ai_suggestions, latency_seconds, analyzed_by, created_at`

// CreateAnalysisResult saves an analysis result. Results are never updated.
func (s *PostgresStore) CreateAnalysisResult(ctx context.Context, res *models.AnalysisResult) error {
	if res.ID == "" {
		res.ID = newID()
	}
	res.CreatedAt = now()
	_, err := s.db.Exec(ctx,
		"INSERT INTO analysis_results ("+analysisColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)",
		res.ID, res.DocumentID, res.WorkflowID, res.AnalysisType, res.PromptVersionID, res.RulesTriggered,
		res.ConfidenceScore, res.SourceText, res.GDPRStatus, res.CCPAStatus, res.Score,
		res.DetectedSections, res.MissingSections, res.AISuggestions,
		res.LatencySeconds, res.AnalyzedBy, res.CreatedAt)
	return err
}

// GetAnalysisResult retrieves an analysis result by its ID.
func (s *PostgresStore) GetAnalysisResult(ctx context.Context, id string) (*models.AnalysisResult, error) {
	row := s.db.QueryRow(ctx, "SELECT "+analysisColumns+" FROM analysis_results WHERE id = $1", id)
	res, err := scanAnalysis(row)
	if err != nil {
		return nil, notFound(err)
	}
	return res, nil
}

// LatestComplianceResult returns the newest result of a document that carries a compliance score.
func (s *PostgresStore) LatestComplianceResult(ctx context.Context, documentID string) (*models.AnalysisResult, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+analysisColumns+" FROM analysis_results WHERE document_id = $1 AND score IS NOT NULL ORDER BY created_at DESC LIMIT 1",
		documentID)
	res, err := scanAnalysis(row)
	if err != nil {
		return nil, notFound(err)
	}
	return res, nil
}

func scanAnalysis(row pgx.Row) (*models.AnalysisResult, error) {
	var res models.AnalysisResult
	if err := row.Scan(&res.ID, &res.DocumentID, &res.WorkflowID, &res.AnalysisType, &res.PromptVersionID,
		&res.RulesTriggered, &res.ConfidenceScore, &res.SourceText, &res.GDPRStatus, &res.CCPAStatus,
		&res.Score, &res.DetectedSections, &res.MissingSections, &res.AISuggestions,
		&res.LatencySeconds, &res.AnalyzedBy, &res.CreatedAt); err != nil {
		return nil, err
	}
	return &res, nil
}

const promptColumns = "id, analysis_type, version, system_prompt, is_active, created_at"

// GetActivePrompt returns the active prompt for an analysis type, or nil.
func (s *PostgresStore) GetActivePrompt(ctx context.Context, analysisType string) (*models.PromptVersion, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+promptColumns+" FROM prompt_versions WHERE analysis_type = $1 AND is_active ORDER BY created_at DESC LIMIT 1",
		analysisType)
	p, err := scanPrompt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPrompts lists prompt versions, optionally narrowed to one analysis type.
func (s *PostgresStore) ListPrompts(ctx context.Context, analysisType string) ([]*models.PromptVersion, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+promptColumns+" FROM prompt_versions WHERE ($1 = '' OR analysis_type = $1) ORDER BY created_at DESC",
		analysisType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []*models.PromptVersion
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// CreatePrompt saves a new prompt version. New versions start inactive unless IsActive is set,
// in which case the previous active version is switched off.
func (s *PostgresStore) CreatePrompt(ctx context.Context, p *models.PromptVersion) error {
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now()
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if p.IsActive {
			if _, err := tx.Exec(ctx,
				"UPDATE prompt_versions SET is_active = FALSE WHERE analysis_type = $1", p.AnalysisType); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO prompt_versions ("+promptColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
			p.ID, p.AnalysisType, p.Version, p.SystemPrompt, p.IsActive, p.CreatedAt)
		return err
	})
}

// ActivatePrompt switches the active prompt of the version's analysis type to id.
func (s *PostgresStore) ActivatePrompt(ctx context.Context, id string) (*models.PromptVersion, error) {
	var activated *models.PromptVersion
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		p, err := scanPrompt(tx.QueryRow(ctx, "SELECT "+promptColumns+" FROM prompt_versions WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx,
			"UPDATE prompt_versions SET is_active = (id = $1) WHERE analysis_type = $2", id, p.AnalysisType); err != nil {
			return fmt.Errorf("failed to activate prompt: %w", err)
		}
		p.IsActive = true
		activated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

func scanPrompt(row pgx.Row) (*models.PromptVersion, error) {
	var p models.PromptVersion
	if err := row.Scan(&p.ID, &p.AnalysisType, &p.Version, &p.SystemPrompt, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
