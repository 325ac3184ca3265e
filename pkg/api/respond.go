// Package api provides the response envelope shared by all HTTP handlers.
//
// Success bodies carry {"data": ..., "code": n}; error bodies carry
// {"message": ..., "code": n}. The code field mirrors the HTTP status so
// game clients that read only the body see a consistent envelope.
package api

import (
	"encoding/json"
	"net/http"
)

// StatusOKEmpty is the non-standard status the platform uses for an empty
// list-all result, kept for client compatibility.
const StatusOKEmpty = 210

type dataEnvelope struct {
	Data any `json:"data"`
	Code int `json:"code"`
}

type errorEnvelope struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WriteData writes a success envelope with the given status code.
func WriteData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, dataEnvelope{Data: data, Code: code})
}

// WriteError writes an error envelope with the given status code.
func WriteError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorEnvelope{Message: message, Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
