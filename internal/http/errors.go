package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"financas/internal/core"
	"financas/internal/log"
)

// Error codes returned in the JSON error body.
const (
	codeValidation = "validation_error"
	codeNotFound   = "not_found"
	codeConflict   = "conflict"
	codeAuth       = "unauthorized"
	codeBackend    = "backend_unavailable"
	codeBadRequest = "bad_request"
	codeRateLimit  = "rate_limited"
	codeCanceled   = "request_canceled"
	codeInternal   = "internal_error"
)

// requestError is a client mistake detected before reaching the ledger.
type requestError struct {
	status  int
	code    string
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, code: codeBadRequest, message: fmt.Sprintf(format, args...)}
}

var (
	errRouteNotFound = &requestError{status: http.StatusNotFound, code: codeNotFound, message: "route not found"}
	errRateLimited   = &requestError{status: http.StatusTooManyRequests, code: codeRateLimit, message: "rate limit exceeded, try again later"}
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorDetail struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// classify maps err onto a status code and error body.
func classify(err error) (int, errorDetail) {
	var (
		reqErr   *requestError
		fieldErr validator.ValidationErrors
		valErr   *core.ValidationError
		notFound *core.NotFoundError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, errorDetail{Code: reqErr.code, Message: reqErr.message}
	case errors.As(err, &fieldErr):
		return http.StatusUnprocessableEntity, errorDetail{
			Code:    codeValidation,
			Message: "validation failed",
			Fields:  translateValidationErrors(fieldErr),
		}
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, errorDetail{
			Code:    codeValidation,
			Message: valErr.Error(),
			Fields:  []fieldError{{Field: valErr.Field, Message: valErr.Message}},
		}
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorDetail{Code: codeNotFound, Message: notFound.Entity + " not found"}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: codeNotFound, Message: "not found"}
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, errorDetail{Code: codeConflict, Message: "resource already exists"}
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, errorDetail{Code: codeAuth, Message: "authentication required"}
	case core.IsBackend(err):
		return http.StatusBadGateway, errorDetail{Code: codeBackend, Message: "storage backend unavailable"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorDetail{Code: codeCanceled, Message: "request canceled"}
	default:
		return http.StatusInternalServerError, errorDetail{Code: codeInternal, Message: "internal error"}
	}
}

// writeError logs err at a level matching its class and writes the JSON
// error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	logger := log.FromContext(r.Context())
	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldErrorType, errorType(status),
			log.FieldStatusCode, status)
	case status != http.StatusNotFound:
		logger.WarnContext(r.Context(), "Request rejected",
			log.FieldError, err,
			log.FieldErrorType, errorType(status),
			log.FieldStatusCode, status)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="financas"`)
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func errorType(status int) string {
	switch status {
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return log.ErrorTypeValidation
	case http.StatusUnauthorized:
		return log.ErrorTypeAuth
	case http.StatusConflict:
		return log.ErrorTypeConflict
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusBadGateway:
		return log.ErrorTypeDatabase
	default:
		return log.ErrorTypeInternal
	}
}

func translateValidationErrors(errs validator.ValidationErrors) []fieldError {
	out := make([]fieldError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, fieldError{Field: fe.Field(), Message: translateValidationError(fe)})
	}
	return out
}

func translateValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s characters", fe.Param())
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "hexcolor":
		return "must be a hex color such as #FF6600"
	default:
		return fmt.Sprintf("failed %s validation", strings.ToLower(fe.Tag()))
	}
}
