package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// UploadDocument stores an uploaded PDF
// (POST /api/v1/documents)
func (s *Server) UploadDocument(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.Authorizer.Authorize(ctx, a, "documents", "upload", ""); err != nil {
		return err
	}
	up, err := readUpload(c)
	if err != nil {
		return err
	}
	doc, err := s.Documents.Upload(ctx, *up, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, doc)
}

// ListDocuments lists every document with documents/list_all, otherwise the caller's own
// (GET /api/v1/documents)
func (s *Server) ListDocuments(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	all := s.scope(c, a, "documents", "list_all", "list_own", "")
	docs, err := s.Documents.List(c.Request().Context(), a, all)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

// GetDocument returns a document with its extracted text
// (GET /api/v1/documents/:id)
func (s *Server) GetDocument(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	canAny := s.scope(c, a, "documents", "read_any", "read_own", id)
	doc, err := s.Documents.GetForActor(c.Request().Context(), id, a, canAny)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

// DeleteDocument removes a document and its blob
// (DELETE /api/v1/documents/:id)
func (s *Server) DeleteDocument(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	canAny := s.scope(c, a, "documents", "delete_any", "delete_own", id)
	if !canAny {
		if err := s.Authorizer.Authorize(ctx, a, "documents", "delete_own", id); err != nil {
			return err
		}
	}
	if err := s.Documents.Delete(ctx, id, a, canAny); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
