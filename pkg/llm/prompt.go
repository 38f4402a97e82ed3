package llm

import (
	"fmt"
	"strings"

	"github.com/xhad/ragdesk/internal/models"
)

const instruction = "Use only the context below to answer the question. " +
	"The context contains the answer; extract and cite it. " +
	"Cite sources as [1], [2], etc. " +
	"If the context clearly contains the answer, you must provide it."

// BuildPrompt renders the prompt every backend receives: numbered context
// blocks, an optional transcript of earlier turns, then the question.
func BuildPrompt(query string, contextChunks []string, history []models.ChatTurn) string {
	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\nContext:\n")
	for i, chunk := range contextChunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, chunk)
	}

	if len(history) > 0 {
		sb.WriteString("\n\nPrevious conversation:")
		for _, turn := range history {
			fmt.Fprintf(&sb, "\nQ: %s\nA: %s", turn.Question, turn.Answer)
		}
	}

	fmt.Fprintf(&sb, "\n\nQuestion: %s\n\nAnswer:", query)
	return sb.String()
}
