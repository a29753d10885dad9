package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeKind(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		want     NodeKind
		analysis bool
	}{
		{"direct type", Node{Type: "extract_text"}, NodeExtractText, false},
		{"editor default node", Node{Type: "default", Data: NodeData{Type: "analyze_ccpa"}}, NodeAnalyzeCCPA, true},
		{"empty type uses data", Node{Data: NodeData{Type: "score_compliance"}}, NodeScoreCompliance, true},
		{"explicit type wins", Node{Type: "document_upload", Data: NodeData{Type: "analyze_gdpr"}}, NodeDocumentUpload, false},
		{"case sensitive", Node{Type: "Extract_Text"}, NodeUnknown, false},
		{"unknown", Node{Type: "summarize"}, NodeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.Kind())
			assert.Equal(t, tt.analysis, tt.node.Kind().IsAnalysis())
		})
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "documents/read_any", Action{Resource: "documents", Action: "read_any"}.String())
}
