// Package documents accepts uploaded PDFs, stores their blobs and keeps their
// metadata and extracted text.
package documents

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	"veritas/backend/internal/apperr"
	"veritas/backend/internal/audit"
	"veritas/backend/internal/pdftext"
	"veritas/backend/internal/repository"
	"veritas/backend/internal/storage"
	"veritas/backend/pkg/models"
)

// MaxFileSize is the upload ceiling.
const MaxFileSize = 10 * 1024 * 1024

// ContentTypePDF is the only accepted content type.
const ContentTypePDF = "application/pdf"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// TextExtractor turns a document blob into plain text.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service implements the document store operations.
type Service struct {
	repo      repository.DocumentStore
	blobs     storage.BlobStore
	extractor TextExtractor
	audit     audit.Recorder
	logger    Logger
}

// NewService creates a Service.
func NewService(repo repository.DocumentStore, blobs storage.BlobStore, extractor TextExtractor,
	recorder audit.Recorder, logger Logger) *Service {
	return &Service{repo: repo, blobs: blobs, extractor: extractor, audit: recorder, logger: logger}
}

// Validate rejects uploads that must never reach storage.
func Validate(up Upload) error {
	if up.ContentType != ContentTypePDF {
		return apperr.BadRequest("Only PDF files are accepted.")
	}
	if len(up.Data) > MaxFileSize {
		return apperr.BadRequest("File exceeds maximum size of %d MB.", MaxFileSize/(1024*1024))
	}
	return nil
}

// Upload validates, stores and extracts an uploaded PDF owned by actor.
func (s *Service) Upload(ctx context.Context, up Upload, actor models.Actor) (*models.Document, error) {
	if err := Validate(up); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	key := path.Join("documents", id+".pdf")
	if err := s.blobs.Put(ctx, key, up.Data, up.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	text, err := s.extractor.Extract(up.Data)
	if err != nil {
		s.logger.Warn("text extraction failed", "document_id", id, "error", err)
		text = pdftext.FailedPlaceholder
	}

	filename := up.Filename
	if filename == "" {
		filename = "unnamed.pdf"
	}
	doc := &models.Document{
		ID:            id,
		Filename:      filename,
		ContentType:   up.ContentType,
		SizeBytes:     int64(len(up.Data)),
		ExtractedText: text,
		StorageKey:    key,
		UploadedBy:    actor.UserID,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
			s.logger.Warn("failed to remove orphaned blob", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "document",
		Action:     "document_upload",
		ResourceID: doc.ID,
		Metadata:   map[string]any{"filename": doc.Filename, "size_bytes": doc.SizeBytes},
	})
	s.logger.Info("document uploaded", "document_id", doc.ID, "size_bytes", doc.SizeBytes)
	return doc, nil
}

// Get loads a document regardless of ownership.
func (s *Service) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("document", id)
	}
	return doc, err
}

// GetForActor loads a document the actor may see. Documents owned by someone
// else are reported as not found unless canAccessAny is set.
func (s *Service) GetForActor(ctx context.Context, id string, actor models.Actor, canAccessAny bool) (*models.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccessAny && doc.UploadedBy != actor.UserID {
		return nil, apperr.NotFound("document", id)
	}
	return doc, nil
}

// List returns every document when all is set, otherwise the actor's own.
func (s *Service) List(ctx context.Context, actor models.Actor, all bool) ([]*models.Document, error) {
	owner := actor.UserID
	if all {
		owner = ""
	}
	docs, err := s.repo.ListDocuments(ctx, owner)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return docs, nil
}

// Delete removes the blob and the metadata. A blob that is already gone is ignored.
func (s *Service) Delete(ctx context.Context, id string, actor models.Actor, canAccessAny bool) error {
	doc, err := s.GetForActor(ctx, id, actor, canAccessAny)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete document blob: %w", err)
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("document", id)
		}
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Resource:   "document",
		Action:     "document_delete",
		ResourceID: id,
		Metadata:   map[string]any{"filename": doc.Filename},
	})
	return nil
}
