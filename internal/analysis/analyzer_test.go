package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/backend/internal/inference"
	"veritas/backend/internal/metrics"
)

type NoOpLogger struct{}

func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// stubClient returns a canned completion, or blocks until the context ends
// when block is set.
type stubClient struct {
	out   string
	err   error
	block bool
	last  inference.GenerateRequest
}

func (c *stubClient) Generate(ctx context.Context, req inference.GenerateRequest) (string, error) {
	c.last = req
	if c.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return c.out, c.err
}

func newTestAnalyzer(c inference.Client) *Analyzer {
	return NewAnalyzer(c, 50*time.Millisecond, 50*time.Millisecond, metrics.Noop(), &NoOpLogger{})
}

func TestAnalyzer_Reason(t *testing.T) {
	client := &stubClient{out: `{"rules_triggered":"Art. 13 missing","confidence_score":1.7,"source_text":"` + strings.Repeat("x", 600) + `"}`}
	res, degraded := newTestAnalyzer(client).Reason(context.Background(), "be strict", "doc")

	require.Nil(t, degraded)
	assert.Equal(t, "Art. 13 missing", res.RulesTriggered)
	assert.Equal(t, 1.0, res.ConfidenceScore)
	assert.Len(t, res.SourceText, maxSourceText)
	assert.True(t, strings.HasPrefix(client.last.System, "be strict"))
	assert.Contains(t, client.last.System, "confidence_score")
}

func TestAnalyzer_ReasonMissingKeys(t *testing.T) {
	res, degraded := newTestAnalyzer(&stubClient{out: `{"confidence_score":"0.4"}`}).Reason(context.Background(), "p", "doc")

	require.Nil(t, degraded)
	assert.Equal(t, missingRulesText, res.RulesTriggered)
	assert.Equal(t, missingSourceText, res.SourceText)
	assert.Equal(t, 0.4, res.ConfidenceScore)
}

func TestAnalyzer_ReasonDegrades(t *testing.T) {
	tests := []struct {
		name   string
		client *stubClient
		reason string
	}{
		{"invalid json", &stubClient{out: "not json"}, "AI returned invalid JSON format."},
		{"timeout", &stubClient{block: true}, "AI inference timeout (exceeded 0s limit)."},
		{"http status", &stubClient{err: &inference.StatusError{Code: 503}}, "AI service error: 503"},
		{"other", &stubClient{err: errors.New("boom")}, "Unexpected AI service failure."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, degraded := newTestAnalyzer(tt.client).Reason(context.Background(), "p", "doc")

			require.NotNil(t, degraded)
			assert.Equal(t, "inference", degraded.Service)
			assert.Equal(t, "SYSTEM FAILURE: "+tt.reason, res.RulesTriggered)
			assert.Zero(t, res.ConfidenceScore)
			assert.Equal(t, degradedSourceText, res.SourceText)
		})
	}
}

func TestAnalyzer_Compliance(t *testing.T) {
	client := &stubClient{out: `{"gdpr_status":"pass","score":140,"detected_sections":["security", 3],"missing_sections":"retention","ai_suggestions":null}`}
	res, degraded := newTestAnalyzer(client).Compliance(context.Background(), "", "doc")

	require.Nil(t, degraded)
	assert.Equal(t, DefaultCompliancePrompt, client.last.System)
	assert.Equal(t, "PASS", res.GDPRStatus)
	assert.Equal(t, StatusFail, res.CCPAStatus)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, []string{"security", "3"}, res.DetectedSections)
	assert.Equal(t, []string{"retention"}, res.MissingSections)
	assert.Equal(t, []string{}, res.AISuggestions)
}

func TestAnalyzer_ComplianceDegrades(t *testing.T) {
	res, degraded := newTestAnalyzer(&stubClient{out: "[1,2"}).Compliance(context.Background(), "p", "doc")

	require.NotNil(t, degraded)
	assert.Equal(t, StatusFail, res.GDPRStatus)
	assert.Equal(t, StatusFail, res.CCPAStatus)
	assert.Zero(t, res.Score)
	assert.Equal(t, []string{"AI model returned a malformed response."}, res.AISuggestions)
}
