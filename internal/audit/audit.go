// Package audit records authorization decisions and state changes in the
// append-only audit log.
package audit

import (
	"context"

	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

// Logger is the logging surface the writer needs.
type Logger interface {
	Error(msg string, args ...any)
}

// Recorder is the sink every state-changing operation writes to after its
// primary effect commits.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Entry is one audit record before it is stamped with an ID and timestamp.
type Entry struct {
	Actor          models.Actor
	Resource       string
	Action         string
	ResourceID     string
	PolicyInput    map[string]any
	PolicyDecision map[string]any
	Metadata       map[string]any
}

// Filter narrows a listing. Limit defaults to 100.
type Filter = repository.AuditFilter

// Writer appends audit entries.
type Writer struct {
	store  repository.AuditStore
	logger Logger
}

// NewWriter creates a Writer over store.
func NewWriter(store repository.AuditStore, logger Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// Record appends e. A failed write is logged and swallowed so that auditing
// never fails the operation being audited. The write ignores cancellation of
// ctx: once an action is committed its entry must still land.
func (w *Writer) Record(ctx context.Context, e Entry) {
	entry := &models.AuditLog{
		UserID:         e.Actor.UserID,
		Role:           e.Actor.Role,
		Resource:       e.Resource,
		Action:         e.Action,
		PolicyInput:    e.PolicyInput,
		PolicyDecision: e.PolicyDecision,
		Metadata:       e.Metadata,
	}
	if e.ResourceID != "" {
		id := e.ResourceID
		entry.ResourceID = &id
	}
	if err := w.store.AppendAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		w.logger.Error("failed to write audit log",
			"user_id", e.Actor.UserID, "resource", e.Resource, "action", e.Action, "error", err)
	}
}

// List returns entries matching f, newest first.
func (w *Writer) List(ctx context.Context, f Filter) ([]*models.AuditLog, error) {
	entries, err := w.store.ListAuditLogs(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.AuditLog{}
	}
	return entries, nil
}
