// Package model holds the HTTP API types shared by the server, the MCP
// tools and the Go SDK.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// MaxFunctionNameLen bounds the {name} path segment of /v1/functions/{name}.
const MaxFunctionNameLen = 64

var functionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateFunctionName checks that name can be mounted as a function route.
func ValidateFunctionName(name string) error {
	if name == "" {
		return fmt.Errorf("function name is required")
	}
	if len(name) > MaxFunctionNameLen {
		return fmt.Errorf("function name exceeds maximum length of %d characters", MaxFunctionNameLen)
	}
	if !functionNameRe.MatchString(name) {
		return fmt.Errorf("function name %q must be lowercase letters, digits, '-' or '_', starting with a letter", name)
	}
	return nil
}

// APIResponse is the standard response envelope for the non-function endpoints.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string   `json:"status"` // "healthy" or "unhealthy"
	Version   string   `json:"version"`
	Store     string   `json:"store"`
	Functions []string `json:"functions"`
	Uptime    int64    `json:"uptime_seconds"`
}

// FunctionInfo describes one mounted function in GET /v1/functions.
type FunctionInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}
