package rag

import (
	"errors"
	"fmt"
)

// ErrIndexUnavailable wraps embedding and rerank backend failures hit while
// serving a query.
var ErrIndexUnavailable = errors.New("search index unavailable")

// ValidationError is bad caller input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
