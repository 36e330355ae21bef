package api

import (
	"fmt"
	"net/http"
)

// RequestError is the structured failure of one remote request. It is
// always serializable so callers (and the offline queue) can store it.
type RequestError struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Err    error  `json:"-"`
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

// NotFound reports whether the request failed with 404.
func (e *RequestError) NotFound() bool { return e.Status == http.StatusNotFound }

// Unauthorized reports whether the request was rejected as unauthenticated
// or forbidden.
func (e *RequestError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}
