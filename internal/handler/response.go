// Package handler holds the HTTP handlers.  Handlers bind and validate
// input, call a service and render the success envelope; every failure is
// returned as an error for the middleware.ErrorHandler to render.
package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/model"
)

// requestTimeout bounds every store call made on behalf of a request.
const requestTimeout = 5 * time.Second

// Envelope is the body of every successful response.
type Envelope struct {
	Status     string            `json:"status"`
	Message    string            `json:"message,omitempty"`
	Results    *int              `json:"results,omitempty"`
	Pagination *model.Pagination `json:"pagination,omitempty"`
	Data       any               `json:"data,omitempty"`
}

func success(c echo.Context, code int, message string, data any) error {
	return c.JSON(code, Envelope{Status: "success", Message: message, Data: data})
}

func successPage(c echo.Context, code int, results int, pg model.Pagination, data any) error {
	return c.JSON(code, Envelope{Status: "success", Results: &results, Pagination: &pg, Data: data})
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// identity returns the caller attached by middleware.JWTAuth.
func identity(c echo.Context) (model.Identity, error) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return model.Identity{}, apperr.Unauthorized("Not authorized, no token")
	}
	return id, nil
}

// pathID reads the :id parameter, which must be a UUID.
func pathID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.Validation(apperr.FieldError{Field: "id", Message: "Invalid ID format"})
	}
	return id, nil
}
