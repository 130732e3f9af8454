package middleware

import (
	"encoding/json"
	"net/http"
)

// Error codes shared with the handler package's envelope.
const (
	codeUnauthorized = "UNAUTHORIZED"
	codeInternal     = "INTERNAL_SERVER_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

// writeJSONError writes a failed result envelope with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}
