package processor

import (
	"strings"

	"github.com/xhad/ragdesk/internal/models"
)

type ProcessorConfig struct {
	// MinChunkLength drops paragraphs shorter than this many bytes. Zero keeps
	// every non-empty paragraph.
	MinChunkLength int
	// Separator splits text into paragraphs. Defaults to a blank line.
	Separator string
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MinChunkLength < 0 {
		config.MinChunkLength = 0
	}
	if config.Separator == "" {
		config.Separator = "\n\n"
	}

	return Processor{
		config: config,
	}
}

// Chunk splits text into trimmed paragraphs. When no paragraph survives but
// the text itself is not blank, the whole trimmed text is one chunk.
func (p *Processor) Chunk(text string) []string {
	text = normalizeNewlines(text)

	var chunks []string
	for _, para := range strings.Split(text, p.config.Separator) {
		para = strings.TrimSpace(para)
		if para == "" || len(para) < p.config.MinChunkLength {
			continue
		}
		chunks = append(chunks, para)
	}

	if len(chunks) == 0 {
		if whole := strings.TrimSpace(text); whole != "" {
			chunks = []string{whole}
		}
	}

	return chunks
}

// Process chunks a document's text and tags every chunk with its source.
func (p *Processor) Process(source, text string) []models.Chunk {
	paras := p.Chunk(text)
	out := make([]models.Chunk, 0, len(paras))
	for _, para := range paras {
		out = append(out, models.Chunk{Text: para, Source: source})
	}
	return out
}

func normalizeNewlines(text string) string {
	if !strings.Contains(text, "\r") {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
