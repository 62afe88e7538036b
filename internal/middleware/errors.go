package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
)

// ErrorBody is the envelope of every failed response.
type ErrorBody struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

// ErrorHandler is installed as echo's HTTPErrorHandler.  It renders
// apperr errors and echo's own HTTP errors in the error envelope.  Causes of
// 5xx errors are logged and never sent.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := errorResponse(c, err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", status,
			"err", err,
		)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		slog.WarnContext(c.Request().Context(), "write error response", "err", werr)
	}
}

func errorResponse(c echo.Context, err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return http.StatusNotFound, ErrorBody{
				Status:  "error",
				Message: fmt.Sprintf("Route %s not found", c.Request().RequestURI),
			}
		case http.StatusInternalServerError:
			return he.Code, ErrorBody{Status: "error", Message: "Something went wrong"}
		}
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, ErrorBody{Status: "error", Message: msg}
	}

	ae := apperr.From(err)
	return ae.Kind.Status(), ErrorBody{Status: "error", Message: ae.Message, Errors: ae.Fields}
}
