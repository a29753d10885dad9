// Package analysis runs documents through the inference backend and scores
// the results.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/inference"
	"veritas/backend/internal/metrics"
)

const (
	maxSourceText      = 500
	degradedSourceText = "N/A - Analysis could not be completed."
	missingRulesText   = "Parsing failed: missing rules_triggered"
	missingSourceText  = "Parsing failed: missing source_text"
)

const reasoningInstructions = `Analyze the following document text and return ONLY a valid JSON object with EXACTLY these three keys:
- "rules_triggered": A string explaining which rules were violated or "None" if fully compliant.
- "confidence_score": A float between 0.0 and 1.0 representing your certainty.
- "source_text": A short string quoting the most relevant part of the document used for this decision.`

// DefaultCompliancePrompt is used when no compliance prompt version is active.
const DefaultCompliancePrompt = "You are a legal compliance AI. Analyze the document for GDPR and CCPA compliance. " +
	"Return ONLY valid JSON with keys: gdpr_status, ccpa_status, score, " +
	"detected_sections, missing_sections, ai_suggestions."

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Reasoning is the three-field reasoning-path result.
type Reasoning struct {
	RulesTriggered  string  `json:"rules_triggered"`
	ConfidenceScore float64 `json:"confidence_score"`
	SourceText      string  `json:"source_text"`
}

// Compliance is the six-field compliance-path result.
type Compliance struct {
	GDPRStatus       string   `json:"gdpr_status"`
	CCPAStatus       string   `json:"ccpa_status"`
	Score            int      `json:"score"`
	DetectedSections []string `json:"detected_sections"`
	MissingSections  []string `json:"missing_sections"`
	AISuggestions    []string `json:"ai_suggestions"`
}

// Analyzer wraps the inference client with per-path timeouts and turns every
// failure into a well-formed degraded result.
type Analyzer struct {
	client            inference.Client
	reasoningTimeout  time.Duration
	complianceTimeout time.Duration
	metrics           *metrics.Metrics
	logger            Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(client inference.Client, reasoningTimeout, complianceTimeout time.Duration, m *metrics.Metrics, logger Logger) *Analyzer {
	return &Analyzer{
		client:            client,
		reasoningTimeout:  reasoningTimeout,
		complianceTimeout: complianceTimeout,
		metrics:           m,
		logger:            logger,
	}
}

// Reason runs the reasoning path. The result is always usable; when it is a
// degraded result the error describes why.
func (a *Analyzer) Reason(ctx context.Context, systemPrompt, text string) (Reasoning, *apperr.ExternalServiceError) {
	raw, err := a.generate(ctx, "reasoning", a.reasoningTimeout, inference.GenerateRequest{
		System:   systemPrompt + "\n\n" + reasoningInstructions,
		Document: text,
	})
	if err != nil {
		return degradedReasoning(a.describe(err, a.reasoningTimeout)), err
	}

	res, perr := parseReasoning(raw)
	if perr != nil {
		a.logger.Error("failed to parse inference output", "path", "reasoning", "error", perr)
		ext := &apperr.ExternalServiceError{Service: "inference", Err: perr}
		return degradedReasoning("AI returned invalid JSON format."), ext
	}
	return res, nil
}

// Compliance runs the compliance path with the given system prompt.
func (a *Analyzer) Compliance(ctx context.Context, systemPrompt, text string) (Compliance, *apperr.ExternalServiceError) {
	if systemPrompt == "" {
		systemPrompt = DefaultCompliancePrompt
	}
	raw, err := a.generate(ctx, "compliance", a.complianceTimeout, inference.GenerateRequest{
		System:   systemPrompt,
		Document: text,
	})
	if err != nil {
		return degradedCompliance(a.describe(err, a.complianceTimeout)), err
	}

	res, perr := parseCompliance(raw)
	if perr != nil {
		a.logger.Error("failed to parse inference output", "path", "compliance", "error", perr)
		ext := &apperr.ExternalServiceError{Service: "inference", Err: perr}
		return degradedCompliance("AI model returned a malformed response."), ext
	}
	return res, nil
}

func (a *Analyzer) generate(ctx context.Context, path string, timeout time.Duration, req inference.GenerateRequest) (string, *apperr.ExternalServiceError) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.client.Generate(ctx, req)
	a.metrics.InferenceLatency(ctx, path, time.Since(start).Seconds(), err != nil)
	if err != nil {
		a.logger.Error("inference call failed", "path", path, "error", err)
		return "", &apperr.ExternalServiceError{Service: "inference", Err: err}
	}
	return raw, nil
}

// describe turns a transport failure into the explanation shown to users.
func (a *Analyzer) describe(err error, timeout time.Duration) string {
	var (
		netErr    net.Error
		statusErr *inference.StatusError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("AI inference timeout (exceeded %ds limit).", int(timeout.Seconds()))
	case errors.As(err, &statusErr):
		return statusErr.Error()
	case errors.As(err, &netErr):
		return "AI service unreachable. Operating in degraded mode."
	}
	return "Unexpected AI service failure."
}

func degradedReasoning(reason string) Reasoning {
	return Reasoning{
		RulesTriggered:  "SYSTEM FAILURE: " + reason,
		ConfidenceScore: 0,
		SourceText:      degradedSourceText,
	}
}

func degradedCompliance(reason string) Compliance {
	return Compliance{
		GDPRStatus:       StatusFail,
		CCPAStatus:       StatusFail,
		Score:            0,
		DetectedSections: []string{},
		MissingSections:  []string{},
		AISuggestions:    []string{reason},
	}
}

func parseReasoning(raw string) (Reasoning, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Reasoning{}, fmt.Errorf("invalid JSON: %w", err)
	}

	res := Reasoning{RulesTriggered: missingRulesText, SourceText: missingSourceText}
	if v, ok := obj["rules_triggered"]; ok && v != nil {
		res.RulesTriggered = stringify(v)
	}
	if v, ok := obj["confidence_score"]; ok && v != nil {
		f, ok := toFloat(v)
		if !ok {
			return Reasoning{}, fmt.Errorf("confidence_score is not a number: %v", v)
		}
		res.ConfidenceScore = math.Max(0, math.Min(1, f))
	}
	if v, ok := obj["source_text"]; ok && v != nil {
		res.SourceText = stringify(v)
	}
	res.SourceText = truncate(res.SourceText, maxSourceText)
	return res, nil
}

func parseCompliance(raw string) (Compliance, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Compliance{}, fmt.Errorf("invalid JSON: %w", err)
	}

	res := Compliance{
		GDPRStatus:       StatusFail,
		CCPAStatus:       StatusFail,
		DetectedSections: toStringList(obj["detected_sections"]),
		MissingSections:  toStringList(obj["missing_sections"]),
		AISuggestions:    toStringList(obj["ai_suggestions"]),
	}
	if v, ok := obj["gdpr_status"]; ok && v != nil {
		res.GDPRStatus = strings.ToUpper(stringify(v))
	}
	if v, ok := obj["ccpa_status"]; ok && v != nil {
		res.CCPAStatus = strings.ToUpper(stringify(v))
	}
	if f, ok := toFloat(obj["score"]); ok {
		res.Score = int(math.Max(0, math.Min(100, math.Trunc(f))))
	}
	return res, nil
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toStringList(v any) []string {
	switch items := v.(type) {
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, stringify(item))
		}
		return out
	case string:
		return []string{items}
	}
	return []string{}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
