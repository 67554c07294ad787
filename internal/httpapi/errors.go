package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"orgdesk.org/internal/apperr"
	"orgdesk.org/internal/audit"
	"orgdesk.org/internal/obs"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     errorPayload `json:"error"`
	RequestID string       `json:"request_id,omitempty"`
}

type errorPayload struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details *errorDetails `json:"details,omitempty"`
}

type errorDetails struct {
	Fields []apperr.FieldError `json:"fields"`
}

// writeAppError renders any error as the REST error envelope.
// Internal causes are logged and never sent to the client.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		obs.Logger().Error().Err(err).
			Str("request_id", audit.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("internal error")
	}
	payload := errorPayload{Code: string(e.Kind), Message: e.Message}
	if len(e.Fields) > 0 {
		payload.Details = &errorDetails{Fields: e.Fields}
	}
	writeJSON(w, e.Status(), errorBody{Error: payload, RequestID: audit.RequestIDFromContext(r.Context())})
}

// writeError renders an error envelope with an explicit status and code.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     errorPayload{Code: code, Message: msg},
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required")
		}
		return apperr.Validation("Invalid JSON body: " + err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation("Unexpected data after JSON body")
	}
	return nil
}
