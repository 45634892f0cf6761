package reply

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Failure types reported for external generation errors
const (
	ErrTypeTimeout           = "timeout"
	ErrTypeAuth              = "auth"
	ErrTypeRateLimited       = "rate_limited"
	ErrTypeServerError       = "server_error"
	ErrTypeClientError       = "client_error"
	ErrTypeMalformedResponse = "malformed_response"
	ErrTypeEmptyResponse     = "empty_response"
	ErrTypeNetwork           = "network_error"
	ErrTypePanic             = "panic"
	ErrTypeUnknown           = "unknown_error"
)

// GenerationError is a typed external generation failure
type GenerationError struct {
	Type string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrorType returns the failure type of err, or "" for nil
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Type
	}
	return classifyError(err)
}

func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTypeTimeout
		}
		return ErrTypeNetwork
	}
	return ErrTypeUnknown
}

func classifyStatus(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrTypeAuth
	case code == http.StatusTooManyRequests:
		return ErrTypeRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrTypeTimeout
	case code >= 500:
		return ErrTypeServerError
	case code >= 400:
		return ErrTypeClientError
	default:
		return ErrTypeUnknown
	}
}

func newGenerationError(err error) *GenerationError {
	return &GenerationError{Type: classifyError(err), Err: err}
}
