package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Response is the JSON envelope of every /api endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   any    `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, Response{Success: true, Message: msg, Data: data})
}

// ErrorHandler renders every error returned by a handler as a Response.
// Server errors are logged; their details never reach the client.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		res := Response{Success: false}
		code := http.StatusInternalServerError

		var fe *FieldsError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &fe):
			code = http.StatusBadRequest
			res.Message = "Validation failed"
			res.Error = fe.Fields
		case errors.As(err, &he):
			code = he.Code
			res.Message = fmt.Sprint(he.Message)
			if he.Internal != nil && code < http.StatusInternalServerError {
				res.Error = he.Internal.Error()
			}
		default:
			res.Message = http.StatusText(code)
		}

		if code >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": code,
			}).Error("Request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, res)
		}
		if writeErr != nil {
			log.WithError(writeErr).Warn("Failed to write error response")
		}
	}
}
