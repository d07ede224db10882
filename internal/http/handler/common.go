package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/straye-as/indicator-api/internal/auth"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/service"
	"go.uber.org/zap"
)

var validate = validator.New()

// maxBodyBytes caps request bodies; a full form submission is a few kilobytes
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, err error) {
	fieldErrors := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fieldErrors[toJSONFieldName(fe.Field())] = formatValidationError(fe)
		}
	}

	respondJSON(w, http.StatusBadRequest, domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Step:   service.StepValidate,
		Errors: fieldErrors,
	})
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", toJSONFieldName(fe.Field()))
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// toJSONFieldName converts a Go struct field name to its JSON equivalent (camelCase)
func toJSONFieldName(field string) string {
	if len(field) == 0 {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// respondServiceError maps a service error onto its HTTP status.
// Client errors carry the service message; server errors are logged and reported generically.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	status := statusForError(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("failed to "+action, zap.Error(err), zap.String("step", service.StepOf(err)))
		detail = "Failed to " + action
	}

	respondJSON(w, status, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Step:   service.StepOf(err),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrSyncFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	default:
		return domain.ErrorTypeInternal
	}
}

// decodeBody decodes and validates a JSON request body, writing the error response itself.
// It returns false when the handler should stop.
func decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(target); err != nil {
		respondValidationError(w, err)
		return false
	}
	return true
}

// currentUser returns the authenticated user or writes 401
func currentUser(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return userCtx, true
}

// intParam parses a positive integer URL parameter or writes 400
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	value, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return value, true
}

// optionalQuery returns a pointer to the query value, or nil when the parameter is absent
func optionalQuery(r *http.Request, name string) *string {
	if !r.URL.Query().Has(name) {
		return nil
	}
	value := r.URL.Query().Get(name)
	return &value
}

func queryInt(r *http.Request, name string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
