package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response. The server sends RFC 7807 problem
// documents; plain-text bodies (from the auth middleware) end up in Message.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"title,omitempty"`
	Message    string `json:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// IsAuthError returns true if the request lacked a valid admin token.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound returns true if the filesystem or route does not exist.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict returns true if the filesystem is being unmounted.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsValidationError returns true if the server rejected the input.
func (e *APIError) IsValidationError() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

func parseError(status int, body []byte) error {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && (apiErr.Message != "" || apiErr.Code != "") {
		apiErr.StatusCode = status
		return &apiErr
	}
	return &APIError{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
}
