package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the "code" field of error envelopes.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeUnknownCategory      = "unknown_category"
	CodeUnknownModel         = "unknown_model"
	CodeDuplicateSubmission  = "duplicate_submission"
	CodeNotFound             = "not_found"
	CodeNotRunning           = "not_running"
	CodeCancellationDisabled = "cancellation_disabled"
	CodeBodyTooLarge         = "body_too_large"
	CodeInternal             = "internal_error"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{
				Code:    http.StatusRequestEntityTooLarge,
				ErrCode: CodeBodyTooLarge,
				Err:     fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeInvalidRequest, Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// dataEnvelope wraps successful responses.
type dataEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// WriteData writes {success:true, data:v}.
func WriteData(w http.ResponseWriter, code int, v any) {
	WriteJSON(w, code, dataEnvelope{Success: true, Data: v})
}

// errorEnvelope is the body of every API error.
type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes {success:false, error, code}.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorEnvelope{Error: p.Err.Error(), Code: p.ErrCode})
}
