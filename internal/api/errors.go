package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/chain-portfolio/internal/errors"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/types"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps a service error onto its HTTP status and
// writes it. Internal failures are logged and reported generically.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apierrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"category": string(catErr.Category),
		}).WithError(err).Error("request failed")
	}

	message, details := catErr.Message, catErr.Details
	switch catErr.Category {
	case apierrors.CategorySystem, apierrors.CategoryDatabase:
		message, details = "An internal error occurred", nil
	}
	respondError(w, catErr.StatusCode, catErr.Code, message, details)
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// decodeAndValidate parses the body into v and runs struct validation.
// It writes the 400 response itself and returns false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := parseJSONBody(r, v); err != nil {
		respondError(w, http.StatusBadRequest, types.ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"reason": err.Error(),
		})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, types.ErrCodeInvalidInput, "Validation failed", validationDetails(err))
		return false
	}
	return true
}

// validationDetails lists each failing field with the rule it broke
func validationDetails(err error) map[string]interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]interface{}{"reason": err.Error()}
	}
	fields := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", rule, fe.Param())
		}
		fields[jsonFieldPath(fe.Namespace())] = rule
	}
	return map[string]interface{}{"fields": fields}
}

// jsonFieldPath drops the top-level struct name from a validator namespace
func jsonFieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
