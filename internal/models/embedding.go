package models

// Chunk is one indexed slice of document text
type Chunk struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Position int       `json:"position"`
	Section  string    `json:"section,omitempty"`
	Vector   []float32 `json:"-"`
}

// Match is a chunk returned by a similarity query
type Match struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
	Matches []Match
}
