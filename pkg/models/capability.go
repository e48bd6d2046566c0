package models

import (
	"time"
)

// ResourceCapability describes what one cluster API resource can do, as
// produced by capability analysis. ResourceName is the natural unique key.
type ResourceCapability struct {
	ResourceName string    `json:"resourceName"`
	Capabilities []string  `json:"capabilities"`
	Providers    []string  `json:"providers"`
	Abstractions []string  `json:"abstractions"`
	Complexity   string    `json:"complexity"`
	Description  string    `json:"description"`
	UseCase      string    `json:"useCase"`
	Confidence   float64   `json:"confidence"`
	AnalyzedAt   time.Time `json:"analyzedAt"`
}
