package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/export"
	apperrors "github.com/capitalize-ai/conversation-engine/pkg/errors"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string         `json:"error"`
	Code  apperrors.Code `json:"code,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	code := apperrors.CodeInvalidArgument
	if status >= http.StatusInternalServerError {
		code = apperrors.CodeInternal
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeAppError maps err's code to a status. Server-side failures are logged
// and their cause is not echoed to the client.
func writeAppError(w http.ResponseWriter, log *logger.Logger, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("code", string(code)), zap.Error(err))
		message = http.StatusText(status)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
	}
	if code == apperrors.CodeUnknown {
		code = apperrors.CodeInternal
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodePersistenceFailure:
		return http.StatusServiceUnavailable
	case apperrors.CodeGenerationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDocument sends an export document as a download.
func writeDocument(w http.ResponseWriter, doc *export.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Body)
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// intParam parses a bounded integer query parameter.
func intParam(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return def
	}
	return v
}
