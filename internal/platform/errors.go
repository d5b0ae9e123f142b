package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrUnknownKind is returned for a task kind the platform does not accept.
	ErrUnknownKind = errors.New("unknown task kind")
	// ErrNoProject is returned when no project is configured.
	ErrNoProject = errors.New("platform project is not configured")
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	// Status is the RPC status name from the error body, e.g. NOT_FOUND.
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("platform API error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("platform API error %d: %s", e.StatusCode, e.Message)
}

// Retriable reports whether the request may succeed if repeated.
func (e *APIError) Retriable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		(e.StatusCode >= 500 && e.StatusCode <= 504)
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// classifyResponse returns nil for 2xx and an *APIError otherwise.
func classifyResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	if body, ok := resp.Error().(*errorBody); ok && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
		apiErr.Status = body.Error.Status
	}
	return apiErr
}

// isRetriableError retries throttling, server errors and transport errors.
func isRetriableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retriable()
	}
	return true
}
