package apiclient

import (
	"encoding/json"
	"errors"
	"time"
)

// HealthResponse is the envelope of the /health endpoints.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Health calls the liveness probe.
func (c *Client) Health() (*HealthResponse, error) {
	return getResource[HealthResponse](c, "/health")
}

// Ready calls the readiness probe. A 503 is returned as an *APIError.
func (c *Client) Ready() (*HealthResponse, error) {
	resp, err := getResource[HealthResponse](c, "/health/ready")
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message == "" {
		apiErr.Message = "not ready"
	}
	return resp, err
}
