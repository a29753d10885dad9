package models

import "time"

// Document is an uploaded file together with the text extracted from it.
type Document struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	StorageKey    string    `json:"-"`
	UploadedBy    string    `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// AnalysisResult is one immutable record per analysis invocation. Reasoning-path
// results fill RulesTriggered/ConfidenceScore/SourceText; compliance-path results
// fill the status, score and section fields.
type AnalysisResult struct {
	ID              string  `json:"id"`
	DocumentID      string  `json:"document_id"`
	WorkflowID      *string `json:"workflow_id,omitempty"`
	AnalysisType    string  `json:"analysis_type"`
	PromptVersionID *string `json:"prompt_version_id,omitempty"`

	RulesTriggered  *string  `json:"rules_triggered,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	SourceText      *string  `json:"source_text,omitempty"`

	GDPRStatus       *string  `json:"gdpr_status,omitempty"`
	CCPAStatus       *string  `json:"ccpa_status,omitempty"`
	Score            *int     `json:"score,omitempty"`
	DetectedSections []string `json:"detected_sections,omitempty"`
	MissingSections  []string `json:"missing_sections,omitempty"`
	AISuggestions    []string `json:"ai_suggestions,omitempty"`

	LatencySeconds float64   `json:"latency_seconds"`
	AnalyzedBy     string    `json:"analyzed_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// PromptVersion is a versioned system prompt for one analysis type.
type PromptVersion struct {
	ID           string    `json:"id"`
	AnalysisType string    `json:"analysis_type"`
	Version      string    `json:"version"`
	SystemPrompt string    `json:"system_prompt"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
