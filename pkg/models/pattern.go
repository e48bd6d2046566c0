// Package models defines the domain records stored in the hybrid search
// system: organizational patterns, policy intents, resource capabilities,
// cluster resource metadata, and knowledge-base chunks. Payload keys use
// camelCase to match the searchText/hasEmbedding fields the store indexes.
package models

import (
	"time"
)

// Pattern represents an organizational deployment pattern: a reusable
// recommendation linking user intents to the resources that satisfy them
type Pattern struct {
	ID                 string    `json:"id"`
	Description        string    `json:"description"`
	Triggers           []string  `json:"triggers"`
	SuggestedResources []string  `json:"suggestedResources"`
	Rationale          string    `json:"rationale"`
	CreatedBy          string    `json:"createdBy"`
	CreatedAt          time.Time `json:"createdAt"`
}

// NewPattern creates a pattern stamped with the current time
func NewPattern(id, description string, triggers, suggestedResources []string, rationale, createdBy string) *Pattern {
	return &Pattern{
		ID:                 id,
		Description:        description,
		Triggers:           triggers,
		SuggestedResources: suggestedResources,
		Rationale:          rationale,
		CreatedBy:          createdBy,
		CreatedAt:          time.Now().UTC(),
	}
}
