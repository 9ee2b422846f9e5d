package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate = validator.New()

func sendError(w http.ResponseWriter, message string, code apperrors.ErrorCode, status int) {
	w.Header().Set(HeaderContentType, MimeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: string(code)})
}

func sendJSON(w http.ResponseWriter, data any) {
	sendJSONStatus(w, http.StatusOK, data)
}

func sendJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set(HeaderContentType, MimeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeCapacityExceeded:
		return http.StatusConflict
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeDecodeFailure:
		return http.StatusUnprocessableEntity
	case apperrors.CodeEngineFailure:
		return http.StatusBadGateway
	case apperrors.CodePolicyRejected:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// sendAppError writes err with the status for its code. Only the sanitized
// text leaves the daemon; internal errors are logged in full.
func sendAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)
	msg := apperrors.Sanitize(err)
	if status == http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "Internal error"
	}
	sendError(w, msg, code, status)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "request body too large", apperrors.CodeInvalidInput, http.StatusRequestEntityTooLarge)
			return false
		}
		sendError(w, "invalid JSON: "+apperrors.SanitizeMessage(err.Error()), apperrors.CodeInvalidInput, http.StatusBadRequest)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			sendError(w, "validation failed", apperrors.CodeInvalidInput, http.StatusBadRequest)
			return false
		}
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("[%s: %s]", fe.Field(), fe.Tag()))
		}
		errMsg := "validation failed: " + strings.Join(parts, " ")

		logger.WithContext(r.Context()).Warn("API validation failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("error", errMsg),
		)

		sendError(w, errMsg, apperrors.CodeInvalidInput, http.StatusBadRequest)
		return false
	}

	return true
}

// torrentID reads and checks the {id} path parameter. Ids are UUIDs.
func torrentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, ParamID)
	if _, err := uuid.Parse(id); err != nil {
		sendError(w, "Invalid torrent ID format", apperrors.CodeInvalidInput, http.StatusBadRequest)
		return "", false
	}
	return id, true
}
