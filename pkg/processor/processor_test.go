package processor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/pkg/processor"
)

func TestProcessor_Chunk(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "blank line paragraphs",
			text: "First paragraph.\n\nSecond paragraph.\n\n\n\nThird.",
			want: []string{"First paragraph.", "Second paragraph.", "Third."},
		},
		{
			name: "single block falls back to whole text",
			text: "  one line\nanother line  ",
			want: []string{"one line\nanother line"},
		},
		{
			name: "windows newlines",
			text: "a\r\n\r\nb",
			want: []string{"a", "b"},
		},
		{
			name: "whitespace only",
			text: " \n\n \t ",
			want: nil,
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Chunk(tt.text))
		})
	}
}

func TestProcessor_MinChunkLength(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{MinChunkLength: 5})

	assert.Equal(t, []string{"long enough"}, p.Chunk("ab\n\nlong enough"))
	// every paragraph filtered: whole text is kept so the document is not lost
	assert.Equal(t, []string{"ab\n\ncd"}, p.Chunk("ab\n\ncd"))
}

func TestProcessor_Process(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	chunks := p.Process("notes.md", "alpha\n\nbeta")

	assert.Equal(t, []models.Chunk{
		{Text: "alpha", Source: "notes.md"},
		{Text: "beta", Source: "notes.md"},
	}, chunks)
}
