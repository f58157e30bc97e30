package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string         `json:"code"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func SuccessResponse(c echo.Context, data any) error {
	return respond(c, http.StatusOK, data)
}

// BadRequestResponse reports the errors returned by ReadAndValidateRequest.
func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return respond(c, http.StatusBadRequest, errs)
}

// AppErrorResponse writes err as a one-element error list. Anything that is
// not an AppError becomes a 500 without details.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("Something went wrong").WithError(err)
	}
	return respond(c, appErr.Status, []*AppError{appErr})
}

// errorHandler renders errors returned past the handlers, such as unknown
// routes and recovered panics, in the same envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		err = NewAppError("ERR_HTTP", "", http.StatusText(he.Code), he.Code).WithError(err)
	}
	_ = AppErrorResponse(c, err)
}
