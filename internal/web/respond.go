package web

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes. Every handler maps its package's
// sentinel errors onto one of these so clients can branch without parsing
// messages.
const (
	CodeBadRequest          = "bad_request"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"
	CodeInvalidState        = "invalid_state"
	CodePreconditionFailed  = "precondition_failed"
	CodeInsufficientBalance = "insufficient_balance"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes the standard error envelope: {"status":"error","code":...,"message":...}.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorBody{Status: "error", Code: code, Message: message})
}
