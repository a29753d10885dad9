package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_GlobalProvider(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		ctx := context.Background()
		m.InferenceLatency(ctx, "reasoning", 0.25, false)
		m.ComplianceResult(ctx, "gdpr", "PASS")
		m.DocumentProcessed(ctx)
		m.WorkflowRun(ctx, "succeeded")
	})
}

func TestNoop(t *testing.T) {
	assert.NotNil(t, Noop())
}
