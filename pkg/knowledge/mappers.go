package knowledge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/clusterkb/clusterkb/pkg/models"
	"github.com/clusterkb/clusterkb/pkg/search"
)

// The mappers project entities through their JSON tags, so the stored
// payload keys match the wire representation consumers already know. The
// id is stripped on the way in and injected on the way out.

var (
	_ search.Mapper[*models.Pattern]            = PatternMapper{}
	_ search.Mapper[*models.PolicyIntent]       = PolicyMapper{}
	_ search.Mapper[*models.ResourceCapability] = CapabilityMapper{}
	_ search.Mapper[*models.ClusterResource]    = ResourceMapper{}
	_ search.Mapper[*models.KnowledgeChunk]     = ChunkMapper{}
)

func encodePayload(entity interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	delete(payload, "id")
	return payload, nil
}

func decodePayload(payload map[string]interface{}, entity interface{}) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	if err := json.Unmarshal(raw, entity); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

func joinText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}

// PatternMapper stores organizational patterns in the patterns collection
type PatternMapper struct{}

func (PatternMapper) ID(p *models.Pattern) string { return p.ID }

func (PatternMapper) SearchText(p *models.Pattern) string {
	return joinText(
		p.Description,
		strings.Join(p.Triggers, " "),
		strings.Join(p.SuggestedResources, " "),
		p.Rationale,
	)
}

func (PatternMapper) Triggers(p *models.Pattern) []string { return p.Triggers }

func (PatternMapper) Payload(p *models.Pattern) (map[string]interface{}, error) {
	return encodePayload(p)
}

func (PatternMapper) FromPayload(id string, payload map[string]interface{}) (*models.Pattern, error) {
	var p models.Pattern
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Description == "" {
		return nil, fmt.Errorf("pattern payload missing description")
	}
	p.ID = id
	return &p, nil
}

// PolicyMapper stores policy intents in the policies collection
type PolicyMapper struct{}

func (PolicyMapper) ID(p *models.PolicyIntent) string { return p.ID }

func (PolicyMapper) SearchText(p *models.PolicyIntent) string {
	return joinText(
		p.Description,
		strings.Join(p.Triggers, " "),
		strings.Join(p.SuggestedResources, " "),
		p.Rationale,
	)
}

func (PolicyMapper) Triggers(p *models.PolicyIntent) []string { return p.Triggers }

func (PolicyMapper) Payload(p *models.PolicyIntent) (map[string]interface{}, error) {
	return encodePayload(p)
}

func (PolicyMapper) FromPayload(id string, payload map[string]interface{}) (*models.PolicyIntent, error) {
	var p models.PolicyIntent
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Description == "" {
		return nil, fmt.Errorf("policy payload missing description")
	}
	p.ID = id
	return &p, nil
}

// CapabilityMapper stores capability descriptors in the capabilities
// collection. ResourceName is the natural key; the document id is its
// deterministic hash, so re-analyzing a resource replaces its descriptor.
type CapabilityMapper struct{}

func (CapabilityMapper) ID(c *models.ResourceCapability) string {
	return models.DeterministicDocumentID(c.ResourceName)
}

func (CapabilityMapper) SearchText(c *models.ResourceCapability) string {
	return joinText(
		c.ResourceName,
		strings.Join(c.Capabilities, " "),
		strings.Join(c.Providers, " "),
		strings.Join(c.Abstractions, " "),
		c.Complexity,
		c.Description,
		c.UseCase,
	)
}

func (CapabilityMapper) Triggers(*models.ResourceCapability) []string { return nil }

func (CapabilityMapper) Payload(c *models.ResourceCapability) (map[string]interface{}, error) {
	return encodePayload(c)
}

func (CapabilityMapper) FromPayload(_ string, payload map[string]interface{}) (*models.ResourceCapability, error) {
	var c models.ResourceCapability
	if err := decodePayload(payload, &c); err != nil {
		return nil, err
	}
	if c.ResourceName == "" {
		return nil, fmt.Errorf("capability payload missing resourceName")
	}
	return &c, nil
}

// ResourceMapper stores cluster resource metadata in the resources
// collection. The id is the hashed composite key, and the key segments
// stay in the payload so the entity rebuilds without consulting the id.
type ResourceMapper struct{}

func (ResourceMapper) ID(r *models.ClusterResource) string { return r.DocumentID() }

func (ResourceMapper) SearchText(r *models.ClusterResource) string {
	labels := make([]string, 0, len(r.Labels))
	for key, value := range r.Labels {
		labels = append(labels, key+"="+value)
	}
	sort.Strings(labels)
	return joinText(
		r.Kind,
		r.Name,
		r.Namespace,
		r.APIVersion,
		strings.Join(labels, " "),
		r.Summary,
	)
}

func (ResourceMapper) Triggers(*models.ClusterResource) []string { return nil }

func (ResourceMapper) Payload(r *models.ClusterResource) (map[string]interface{}, error) {
	return encodePayload(r)
}

func (ResourceMapper) FromPayload(_ string, payload map[string]interface{}) (*models.ClusterResource, error) {
	var r models.ClusterResource
	if err := decodePayload(payload, &r); err != nil {
		return nil, err
	}
	if r.Kind == "" || r.Name == "" {
		return nil, fmt.Errorf("resource payload missing kind or name")
	}
	return &r, nil
}

// ChunkMapper stores knowledge-base chunks in the knowledge collection
type ChunkMapper struct{}

func (ChunkMapper) ID(k *models.KnowledgeChunk) string { return k.ID }

func (ChunkMapper) SearchText(k *models.KnowledgeChunk) string {
	return joinText(
		k.Title,
		k.Content,
		strings.Join(k.Tags, " "),
		k.Source,
	)
}

func (ChunkMapper) Triggers(*models.KnowledgeChunk) []string { return nil }

func (ChunkMapper) Payload(k *models.KnowledgeChunk) (map[string]interface{}, error) {
	return encodePayload(k)
}

func (ChunkMapper) FromPayload(id string, payload map[string]interface{}) (*models.KnowledgeChunk, error) {
	var k models.KnowledgeChunk
	if err := decodePayload(payload, &k); err != nil {
		return nil, err
	}
	if k.Content == "" {
		return nil, fmt.Errorf("knowledge payload missing content")
	}
	k.ID = id
	return &k, nil
}
