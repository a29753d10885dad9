package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"veritas/backend/internal/analysis"
	"veritas/backend/internal/apperr"
	"veritas/backend/pkg/models"
)

// documentScope resolves whether the actor may analyze documents they did not
// upload. Actors with neither variant are rejected.
func (s *Server) documentScope(c echo.Context, a models.Actor, documentID string) (bool, error) {
	canAny := s.scope(c, a, "documents", "read_any", "read_own", documentID)
	if canAny {
		return true, nil
	}
	if err := s.Authorizer.Authorize(c.Request().Context(), a, "documents", "read_own", documentID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Server) logDegraded(out *analysis.Outcome, documentID string) {
	if out.Degraded != nil {
		s.Logger.Info("analysis stored with fallback values", "document_id", documentID, "reason", out.Degraded.Error())
	}
}

// Analyze runs the reasoning path against a stored document
// (POST /api/v1/analyze)
func (s *Server) Analyze(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req analysis.Request
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body.")
	}
	if req.DocumentID == "" {
		return apperr.BadRequest("document_id is required.")
	}
	req.CanAccessAny, err = s.documentScope(c, a, req.DocumentID)
	if err != nil {
		return err
	}
	out, err := s.Analysis.Process(c.Request().Context(), req, a)
	if err != nil {
		return err
	}
	s.logDegraded(out, req.DocumentID)
	return c.JSON(http.StatusCreated, out.Result)
}

// GetAnalysisResult returns one stored analysis result
// (GET /api/v1/analyze/results/:id)
func (s *Server) GetAnalysisResult(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	canAny, err := s.documentScope(c, a, "")
	if err != nil {
		return err
	}
	result, err := s.Analysis.GetResult(c.Request().Context(), id, a, canAny)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type analyzeDocumentRequest struct {
	DocumentID string  `json:"document_id" query:"document_id"`
	WorkflowID *string `json:"workflow_id,omitempty" query:"workflow_id"`
}

// AnalyzeDocument runs the GDPR/CCPA compliance path and scores the result
// (POST /api/v1/analyze-document)
func (s *Server) AnalyzeDocument(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req analyzeDocumentRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return apperr.BadRequest("Invalid request body.")
		}
	}
	if req.DocumentID == "" {
		req.DocumentID = c.QueryParam("document_id")
	}
	if req.WorkflowID == nil {
		if w := c.QueryParam("workflow_id"); w != "" {
			req.WorkflowID = &w
		}
	}
	if req.DocumentID == "" {
		return apperr.BadRequest("document_id is required.")
	}
	canAny, err := s.documentScope(c, a, req.DocumentID)
	if err != nil {
		return err
	}
	out, err := s.Analysis.AnalyzeDocument(c.Request().Context(), req.DocumentID, req.WorkflowID, a, canAny)
	if err != nil {
		return err
	}
	s.logDegraded(out, req.DocumentID)
	return c.JSON(http.StatusCreated, out.Result)
}

// GetLatestCompliance returns the newest scored compliance result for a document
// (GET /api/v1/analysis/:document_id)
func (s *Server) GetLatestCompliance(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	documentID, err := pathParam(c, "document_id")
	if err != nil {
		return err
	}
	canAny, err := s.documentScope(c, a, documentID)
	if err != nil {
		return err
	}
	result, err := s.Analysis.LatestCompliance(c.Request().Context(), documentID, a, canAny)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type scoreRequest struct {
	DetectedSections []string `json:"detected_sections"`
}

// ScoreSections runs the deterministic scorer over a list of section labels
// (POST /api/v1/compliance/score)
func (s *Server) ScoreSections(c echo.Context) error {
	if _, err := actor(c); err != nil {
		return err
	}
	var req scoreRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body.")
	}
	return c.JSON(http.StatusOK, analysis.Score(req.DetectedSections))
}
