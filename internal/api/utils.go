package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// ErrorResponse writes a standard JSON error body with request id and a
// correlation timestamp that is also logged, so support can match the two.
func ErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeErrorBody(w, r, status, message, "")
}

// WriteError maps err through the error taxonomy and writes the answer.
// Server-side failures are logged with the same timestamp returned to the client.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFromError(err)
	field := ""
	var ve *ValidationError
	if errors.As(err, &ve) {
		field = ve.Field
	}
	ts := writeErrorBody(w, r, status, PublicMessage(err), field)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.ErrorContext(r.Context(), "Request failed",
			slog.Any("error", err),
			slog.Int("status", status),
			slog.String("timestamp", ts),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, message, field string) string {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	WriteJSONResponse(w, r, status, ErrorBody{
		Success:   false,
		Error:     message,
		Field:     field,
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: ts,
	})
	return ts
}

// WriteJSONResponse encodes the data to JSON and writes the response header and body.
func WriteJSONResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	js, err := json.Marshal(data)
	if err != nil {
		reqID := middleware.GetReqID(r.Context())
		slog.ErrorContext(r.Context(), "Failed to marshal JSON response",
			slog.Any("error", err),
			slog.String("request_id", reqID),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(js); err != nil {
		reqID := middleware.GetReqID(r.Context())
		slog.ErrorContext(r.Context(), "Failed to write response body",
			slog.Any("error", err),
			slog.String("request_id", reqID),
		)
	}
}

// DecodeJSONBody reads and decodes a JSON request body safely.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return NewValidationError("body", fmt.Sprintf("contains badly-formed JSON (at character %d)", syntaxError.Offset))

		case errors.Is(err, io.ErrUnexpectedEOF):
			return NewValidationError("body", "contains badly-formed JSON")

		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return NewValidationError(unmarshalTypeError.Field, fmt.Sprintf("incorrect JSON type (wanted %s)", unmarshalTypeError.Type))
			}
			return NewValidationError("body", fmt.Sprintf("contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset))

		case errors.Is(err, io.EOF):
			return NewValidationError("body", "must not be empty")

		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			fieldName = strings.Trim(fieldName, `"`)
			return NewValidationError(fieldName, "unknown field")

		case errors.As(err, &maxBytesError):
			return NewValidationError("body", fmt.Sprintf("must not be larger than %d bytes", maxBytesError.Limit))

		default:
			return NewValidationError("body", "could not be decoded")
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return NewValidationError("body", "must only contain a single JSON value")
	}

	return nil
}

func VerifyAudience(claimsAudience jwt.ClaimStrings, expectedAudience string) bool {
	if expectedAudience == "" {
		return true
	}
	for _, aud := range claimsAudience {
		if aud == expectedAudience {
			return true
		}
	}
	return false
}
