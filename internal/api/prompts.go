package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"veritas/backend/internal/analysis"
	"veritas/backend/internal/apperr"
)

// ListPrompts lists prompt versions, optionally filtered by ?analysis_type
// (GET /api/v1/prompts)
func (s *Server) ListPrompts(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	prompts, err := s.Analysis.ListPrompts(c.Request().Context(), a, c.QueryParam("analysis_type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"prompts": prompts, "total": len(prompts)})
}

// CreatePrompt stores a new prompt version
// (POST /api/v1/prompts)
func (s *Server) CreatePrompt(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in analysis.NewPrompt
	if err := c.Bind(&in); err != nil {
		return apperr.BadRequest("Invalid request body.")
	}
	p, err := s.Analysis.CreatePrompt(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// ActivatePrompt makes a prompt version the active one for its analysis type
// (PUT /api/v1/prompts/:id/activate)
func (s *Server) ActivatePrompt(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	p, err := s.Analysis.ActivatePrompt(c.Request().Context(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
