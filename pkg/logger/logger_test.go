package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	out := redact([]any{"provider", "openai", "api_key", "sk-123", "Credential", "abc", "odd"})

	assert.Equal(t, []any{"provider", "openai", "api_key", "[REDACTED]", "Credential", "[REDACTED]", "odd"}, out)
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	in := []any{"token", "secret-value"}
	_ = redact(in)
	assert.Equal(t, "secret-value", in[1])
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"development", "production", ""} {
		t.Run(mode, func(t *testing.T) {
			l, err := New(mode)
			require.NoError(t, err)
			l.With("component", "test").Info("hello", "k", 1)
		})
	}
}
