package errors

import (
	"encoding/json"
	"net/http"
)

// Body is the JSON error document written by [WriteHTTP].
type Body struct {
	Error BodyError `json:"error"`
}

// BodyError is the payload of [Body].
type BodyError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// WriteHTTP writes err as a JSON error document with the status from
// [Error.HTTPStatus]. Errors outside the taxonomy are reported as INT_001
// without their text. 401 responses carry a Bearer challenge.
func WriteHTTP(w http.ResponseWriter, err error) {
	e, ok := AsError(err)
	if !ok {
		e = Internal("an unexpected error occurred")
	}

	status := e.HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Error: BodyError{Code: e.Code, Message: e.Message}})
}
