package models

import "time"

// Chunk is a paragraph of document text together with the file it came from.
type Chunk struct {
	Text   string `json:"chunk"`
	Source string `json:"source"`
}

type DocumentInfo struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

type SearchHit struct {
	Chunk    string  `json:"chunk"`
	Source   string  `json:"source"`
	Position int     `json:"-"`
	Distance float32 `json:"-"`
}

type RerankHit struct {
	Chunk          string  `json:"chunk"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevance_score"`
	OriginalIndex  int     `json:"-"`
}

// ChatTurn is one earlier question/answer exchange rendered into the prompt.
type ChatTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Answer struct {
	Answer       string   `json:"answer"`
	Sources      []string `json:"sources"`
	Chunks       []string `json:"-"`
	ChunkSources []string `json:"-"`
}

type ChatMessage struct {
	ID       string   `json:"id"`
	Scope    string   `json:"-"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Chunks   []string `json:"-"`
	// ChunkSources[i] is the document Chunks[i] came from.
	ChunkSources []string  `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Citation is one numbered context chunk behind an answer.
type Citation struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

type Feedback struct {
	ChatID    string    `json:"chat_id"`
	Rating    string    `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ProviderConfig is the generation backend a scope answers with when a
// request names none.
type ProviderConfig struct {
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Credential string    `json:"-"`
	UpdatedAt  time.Time `json:"updated_at"`
}
