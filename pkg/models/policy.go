package models

import (
	"time"
)

// PolicyIntent represents a governance policy the organization wants
// enforced. It shares the trigger/resource shape of Pattern and adds
// deployment tracking for intents that have been rendered into live
// policy objects.
type PolicyIntent struct {
	ID                 string    `json:"id"`
	Description        string    `json:"description"`
	Triggers           []string  `json:"triggers"`
	SuggestedResources []string  `json:"suggestedResources"`
	Rationale          string    `json:"rationale"`
	CreatedBy          string    `json:"createdBy"`
	CreatedAt          time.Time `json:"createdAt"`
	Deployed           bool      `json:"deployed"`
	DeployedRefs       []string  `json:"deployedRefs,omitempty"`
}

// NewPolicyIntent creates a policy intent stamped with the current time
func NewPolicyIntent(id, description string, triggers, suggestedResources []string, rationale, createdBy string) *PolicyIntent {
	return &PolicyIntent{
		ID:                 id,
		Description:        description,
		Triggers:           triggers,
		SuggestedResources: suggestedResources,
		Rationale:          rationale,
		CreatedBy:          createdBy,
		CreatedAt:          time.Now().UTC(),
	}
}

// MarkDeployed records the live objects this intent produced
func (p *PolicyIntent) MarkDeployed(refs []string) {
	p.Deployed = true
	p.DeployedRefs = refs
}
