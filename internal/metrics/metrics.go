// Package metrics defines the OpenTelemetry instruments recorded by the
// document, analysis and workflow services.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "veritas/backend"

// Metrics holds the service instruments.
type Metrics struct {
	inferenceLatency   metric.Float64Histogram
	complianceResults  metric.Int64Counter
	documentsProcessed metric.Int64Counter
	workflowRuns       metric.Int64Counter
}

// New creates the instruments on the global meter provider.
func New() (*Metrics, error) {
	return newWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// Noop returns instruments that record nothing.
func Noop() *Metrics {
	m, _ := newWithMeter(noop.NewMeterProvider().Meter(meterName))
	return m
}

func newWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.inferenceLatency, err = meter.Float64Histogram("veritas.inference.latency",
		metric.WithDescription("Latency of inference backend calls"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.complianceResults, err = meter.Int64Counter("veritas.compliance.results",
		metric.WithDescription("Compliance verdicts by framework and status")); err != nil {
		return nil, err
	}
	if m.documentsProcessed, err = meter.Int64Counter("veritas.documents.processed",
		metric.WithDescription("Documents accepted for processing")); err != nil {
		return nil, err
	}
	if m.workflowRuns, err = meter.Int64Counter("veritas.workflow.runs",
		metric.WithDescription("Workflow executions by terminal status")); err != nil {
		return nil, err
	}
	return &m, nil
}

// InferenceLatency records one inference call on the named path.
func (m *Metrics) InferenceLatency(ctx context.Context, path string, seconds float64, degraded bool) {
	m.inferenceLatency.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("degraded", degraded),
	))
}

// ComplianceResult counts a PASS/FAIL verdict for a framework.
func (m *Metrics) ComplianceResult(ctx context.Context, framework, status string) {
	m.complianceResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("framework", framework),
		attribute.String("status", status),
	))
}

// DocumentProcessed counts an accepted upload.
func (m *Metrics) DocumentProcessed(ctx context.Context) {
	m.documentsProcessed.Add(ctx, 1)
}

// WorkflowRun counts a finished execution.
func (m *Metrics) WorkflowRun(ctx context.Context, status string) {
	m.workflowRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
