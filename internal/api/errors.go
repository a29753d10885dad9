package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"veritas/backend/internal/apperr"
	"veritas/backend/pkg/models"
)

// ErrorHandler renders every handler error as an RFC 7807 problem document.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		problem := toProblem(err)
		problem.Instance = c.Request().URL.Path
		if problem.Status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed", "path", c.Request().URL.Path, "error", err)
		}
		if err := writeProblem(c, problem); err != nil && logger != nil {
			logger.Error("failed to write problem response", "error", err)
		}
	}
}

func toProblem(err error) models.ProblemDetails {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
		return models.ProblemDetails{Type: "about:blank", Title: http.StatusText(he.Code), Status: he.Code, Detail: detail}
	}

	status := apperr.HTTPStatus(err)
	problem := models.ProblemDetails{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		problem.Detail = "Workflow validation failed."
		problem.ValidationErrors = verr.Violations
	}
	if status == http.StatusInternalServerError {
		problem.Detail = "An unexpected error occurred."
	}
	return problem
}

// writeProblem writes an RFC 7807 Problem Details JSON error response
func writeProblem(c echo.Context, problem models.ProblemDetails) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(problem.Status, problem)
}
