package models

import (
	"time"
)

// KnowledgeChunk is one retrievable unit of ingested documentation
type KnowledgeChunk struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewKnowledgeChunk creates a chunk stamped with the current time. When id
// is empty a deterministic id is derived from source and title so repeated
// ingestion of the same document replaces rather than duplicates.
func NewKnowledgeChunk(id, title, content, source string, tags []string) *KnowledgeChunk {
	if id == "" {
		id = DeterministicDocumentID(source + ":" + title)
	}
	return &KnowledgeChunk{
		ID:        id,
		Title:     title,
		Content:   content,
		Source:    source,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
}
