package api

import (
	"encoding/json"
	"net/http"
)

// Stable error codes clients can branch on.
const (
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeBadRequest    = "bad_request"
	CodeNotFound      = "not_found"
	CodeInternalError = "internal_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func writeErrorDetails(w http.ResponseWriter, statusCode int, code, message string, details any) {
	respondJSON(w, statusCode, ErrorBody{Error: ErrorDetail{Code: code, Message: message, Details: details}})
}
