package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"veritas/backend/internal/documents"
	"veritas/backend/internal/workflow"
)

// CreateWorkflow validates and stores a workflow graph
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var def workflow.Definition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	wf, err := s.Workflows.Create(c.Request().Context(), def, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wf)
}

// ListWorkflows returns the workflows visible to the caller
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	wfs, err := s.Workflows.List(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"workflows": wfs, "total": len(wfs)})
}

// GetWorkflow returns one workflow
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	wf, err := s.Workflows.Get(c.Request().Context(), id, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// UpdateWorkflow applies a partial update
// (PUT /api/v1/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	var patch workflow.Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	wf, err := s.Workflows.Update(c.Request().Context(), id, patch, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// DeleteWorkflow removes a workflow
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.Workflows.Delete(c.Request().Context(), id, a); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ExecuteWorkflow runs a workflow, with the multipart "file" field as the
// document when one is sent
// (POST /api/v1/workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	var up *documents.Upload
	if _, ferr := c.FormFile("file"); ferr == nil {
		if up, err = readUpload(c); err != nil {
			return err
		}
	}
	report, err := s.Engine.Execute(c.Request().Context(), id, up, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// ListExecutions lists recent runs of a workflow
// (GET /api/v1/workflows/:id/executions)
func (s *Server) ListExecutions(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", workflow.DefaultExecutionLimit)
	if err != nil {
		return err
	}
	execs, err := s.Workflows.ListExecutions(c.Request().Context(), id, limit, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"executions": execs, "total": len(execs)})
}

// GetExecution returns a run with its steps
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.Workflows.GetExecution(c.Request().Context(), id, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// readUpload reads the multipart "file" field. The body is capped one byte
// past the document limit so oversize files are still rejected by size.
func readUpload(c echo.Context) (*documents.Upload, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "A multipart file field named 'file' is required.")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Failed to read uploaded file.")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, documents.MaxFileSize+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Failed to read uploaded file.")
	}
	return &documents.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	}, nil
}
