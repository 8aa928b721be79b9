package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies a request failure.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindUpstream       Kind = "upstream"
	KindInternal       Kind = "internal"
)

// Error is a request failure with a client-facing message. Validation
// errors may carry per-field messages instead.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func unauthorized(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func invalidFields(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid request", Fields: fields}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes {"error": "<msg>"}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeError renders err as the error envelope. Field errors render as
// {"error": {"<field>": ["<msg>"]}}.
func writeError(w http.ResponseWriter, err error) {
	var pe *Error
	if !errors.As(err, &pe) {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(pe.Fields) > 0 {
		writeJSON(w, pe.Status(), map[string]any{"error": pe.Fields})
		return
	}
	writeJSONError(w, pe.Status(), pe.Error())
}
