package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/index"
	"github.com/xhad/ragdesk/pkg/llm"
	"github.com/xhad/ragdesk/pkg/rag"
	"github.com/xhad/ragdesk/pkg/tasks"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, msg string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	var verr *rag.ValidationError
	var cerr *llm.ConfigError
	var lerr *llm.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &cerr):
		return http.StatusBadRequest, "invalid_provider_config"
	case errors.As(err, &lerr):
		return lerr.Status, "generation_failed"
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, tasks.ErrInvalidTransition):
		return http.StatusBadRequest, "invalid_transition"
	case errors.Is(err, rag.ErrIndexUnavailable), errors.Is(err, index.ErrIndexBuild):
		return http.StatusServiceUnavailable, "index_unavailable"
	case errors.Is(err, tasks.ErrShuttingDown):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal server error"
	}
	respondError(c, status, code, msg)
}
