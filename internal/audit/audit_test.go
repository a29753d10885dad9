package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"veritas/backend/internal/repository"
	"veritas/backend/pkg/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) ListAuditLogs(ctx context.Context, f repository.AuditFilter) ([]*models.AuditLog, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }

var actor = models.Actor{UserID: "u1", Role: models.RolePartner}

func TestRecord_Appends(t *testing.T) {
	store := repository.NewMemoryStore()
	w := NewWriter(store, &recordingLogger{})

	w.Record(context.Background(), Entry{
		Actor:      actor,
		Resource:   "documents",
		Action:     "document_upload",
		ResourceID: "doc-1",
		Metadata:   map[string]any{"filename": "a.pdf"},
	})

	entries, err := w.List(context.Background(), Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.RolePartner, entries[0].Role)
	require.NotNil(t, entries[0].ResourceID)
	assert.Equal(t, "doc-1", *entries[0].ResourceID)
	assert.Equal(t, "a.pdf", entries[0].Metadata["filename"])
}

func TestRecord_SurvivesCancelledContext(t *testing.T) {
	store := new(MockStore)
	store.On("AppendAuditLog", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil)
	w := NewWriter(store, &recordingLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Record(ctx, Entry{Actor: actor, Resource: "workflows", Action: "execute"})

	store.AssertExpectations(t)
}

func TestRecord_SwallowsStoreErrors(t *testing.T) {
	store := new(MockStore)
	store.On("AppendAuditLog", mock.Anything, mock.Anything).Return(errors.New("db down"))
	logger := &recordingLogger{}
	w := NewWriter(store, logger)

	assert.NotPanics(t, func() {
		w.Record(context.Background(), Entry{Actor: actor, Resource: "workflows", Action: "execute"})
	})
	assert.Equal(t, []string{"failed to write audit log"}, logger.errors)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	w := NewWriter(repository.NewMemoryStore(), &recordingLogger{})
	entries, err := w.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
