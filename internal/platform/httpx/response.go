package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// envelope is the canonical JSON response shape: successes carry data (and an
// optional pagination block), failures carry a human-readable message.
type envelope struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
}

// PageMeta is the pagination block attached to list responses.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Error represents a failure response before serialisation.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError constructs an Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WriteData writes a success envelope wrapping the payload.
func WriteData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// WriteList writes a success envelope carrying items plus a pagination block.
func WriteList(w http.ResponseWriter, status int, data any, meta PageMeta) {
	writeJSON(w, status, envelope{Success: true, Data: data, Pagination: meta})
}

// WriteError writes the failure envelope for the supplied error.
func WriteError(_ context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, envelope{Success: false, Message: err.Message, Code: err.Code})
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
