package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type body struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// StatusCode maps a Kind onto the HTTP status used to render it.
func StatusCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorHandler renders *Error values and echo HTTP errors as
// {"error": {...}}. Anything else is logged and reported as a 500 without
// leaking its text.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		out := body{Kind: "internal", Message: "internal server error"}

		var he *echo.HTTPError
		if appErr, ok := As(err); ok {
			status = StatusCode(appErr.Kind)
			out = body{Kind: string(appErr.Kind), Message: appErr.Message, Fields: appErr.Fields}
		} else if errors.As(err, &he) {
			status = he.Code
			out = body{Kind: kindForStatus(he.Code), Message: http.StatusText(he.Code)}
			if msg, ok := he.Message.(string); ok {
				out.Message = msg
			}
		} else {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, map[string]body{"error": out})
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return string(KindNotFound)
	case http.StatusConflict:
		return string(KindConflict)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(KindValidation)
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}
