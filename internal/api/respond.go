package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tradeacademy.io/support-desk/internal/logger"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Msg  string `json:"msg"`
	Code string `json:"code,omitempty"`
}

type MessageResponse struct {
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Msg: msg, Code: code})
}

// serverError logs err with the request logger and answers a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("Request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Server error", "")
}

type validator interface {
	Validate() error
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields,
// and runs dst.Validate. On failure it answers 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst validator) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "Invalid request body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		writeError(w, http.StatusBadRequest, msg, "")
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "Request body must contain a single JSON object", "")
		return false
	}
	if err := dst.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return false
	}
	return true
}
