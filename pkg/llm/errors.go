package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is reported when a backend answers without any text.
var ErrEmptyResponse = errors.New("backend returned empty output")

// Error is the single error type the gateway returns for backend failures.
// Status is an HTTP status suitable for passing straight to a client.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigError is a request the gateway refused before contacting a backend.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func normalize(provider string, err error) error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	var cerr *ConfigError
	if errors.As(err, &cerr) {
		return cerr
	}
	if errors.Is(err, ErrEmptyResponse) {
		return &Error{
			Status:  http.StatusBadGateway,
			Message: fmt.Sprintf("%s returned an empty response", provider),
			Err:     err,
		}
	}
	return &Error{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("%s request failed: %v", provider, err),
		Err:     err,
	}
}
