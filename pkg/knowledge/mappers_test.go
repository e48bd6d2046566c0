package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterkb/clusterkb/pkg/models"
)

func TestPatternMapper_RoundTrip(t *testing.T) {
	mapper := PatternMapper{}
	pattern := &models.Pattern{
		ID:                 "3f8e7c1a-0db5-4a8f-9c5e-2b7d4e6f8a90",
		Description:        "Stateful workloads get a dedicated storage class",
		Triggers:           []string{"database", "persistence"},
		SuggestedResources: []string{"StatefulSet", "PersistentVolumeClaim"},
		Rationale:          "Local disks lose their data on reschedule",
		CreatedBy:          "platform-team",
		CreatedAt:          time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}

	payload, err := mapper.Payload(pattern)
	require.NoError(t, err)
	assert.NotContains(t, payload, "id", "the document id never lives in the payload")
	assert.Contains(t, payload, "suggestedResources")
	assert.Contains(t, payload, "createdAt")

	got, err := mapper.FromPayload(pattern.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, pattern, got)
}

func TestPatternMapper_IDComesFromTheDocument(t *testing.T) {
	mapper := PatternMapper{}
	payload := map[string]interface{}{
		"id":          "stale-id-from-an-old-writer",
		"description": "dedicated node pools for batch jobs",
	}

	got, err := mapper.FromPayload("fresh-document-id", payload)
	require.NoError(t, err)
	assert.Equal(t, "fresh-document-id", got.ID)
}

func TestPolicyMapper_RoundTrip(t *testing.T) {
	mapper := PolicyMapper{}
	intent := &models.PolicyIntent{
		ID:                 "9a1b2c3d-4e5f-4a6b-8c7d-0e1f2a3b4c5d",
		Description:        "All images come from the internal registry",
		Triggers:           []string{"registry", "images", "supply chain"},
		SuggestedResources: []string{"ClusterPolicy"},
		Rationale:          "Unvetted registries bypass scanning",
		CreatedBy:          "security-team",
		CreatedAt:          time.Date(2025, 7, 2, 14, 45, 0, 0, time.UTC),
		Deployed:           true,
		DeployedRefs:       []string{"clusterpolicy/restrict-registries"},
	}

	payload, err := mapper.Payload(intent)
	require.NoError(t, err)
	assert.NotContains(t, payload, "id")

	got, err := mapper.FromPayload(intent.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, intent, got)
}

func TestCapabilityMapper_RoundTrip(t *testing.T) {
	mapper := CapabilityMapper{}
	capability := &models.ResourceCapability{
		ResourceName: "sqls.devopstoolkit.live",
		Capabilities: []string{"postgresql", "mysql", "database"},
		Providers:    []string{"aws", "gcp", "azure"},
		Abstractions: []string{"managed database"},
		Complexity:   "low",
		Description:  "Managed SQL database across cloud providers",
		UseCase:      "application persistence",
		Confidence:   0.92,
		AnalyzedAt:   time.Date(2025, 7, 2, 12, 30, 0, 0, time.UTC),
	}

	payload, err := mapper.Payload(capability)
	require.NoError(t, err)
	assert.Contains(t, payload, "resourceName", "the natural key stays in the payload")

	got, err := mapper.FromPayload("ignored-document-id", payload)
	require.NoError(t, err)
	assert.Equal(t, capability, got)
}

func TestCapabilityMapper_DeterministicID(t *testing.T) {
	mapper := CapabilityMapper{}
	capability := &models.ResourceCapability{ResourceName: "sqls.devopstoolkit.live"}

	id := mapper.ID(capability)
	assert.Equal(t, models.DeterministicDocumentID("sqls.devopstoolkit.live"), id)
	assert.Equal(t, id, mapper.ID(capability), "re-analysis replaces, never duplicates")

	other := &models.ResourceCapability{ResourceName: "buckets.devopstoolkit.live"}
	assert.NotEqual(t, id, mapper.ID(other))
}

func TestResourceMapper_RoundTrip(t *testing.T) {
	mapper := ResourceMapper{}
	resource := &models.ClusterResource{
		Namespace:  "payments",
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Name:       "checkout",
		Labels:     map[string]string{"app": "checkout", "team": "payments"},
		Summary:    "3 replicas, image checkout:v2",
		CapturedAt: time.Date(2025, 7, 3, 8, 15, 0, 0, time.UTC),
	}

	payload, err := mapper.Payload(resource)
	require.NoError(t, err)
	for _, key := range []string{"namespace", "apiVersion", "kind", "name"} {
		assert.Contains(t, payload, key, "key segments rebuild the entity without the hashed id")
	}

	got, err := mapper.FromPayload("ignored-document-id", payload)
	require.NoError(t, err)
	assert.Equal(t, resource, got)
}

func TestResourceMapper_IDMatchesCompositeKey(t *testing.T) {
	mapper := ResourceMapper{}
	resource := &models.ClusterResource{
		Namespace:  "payments",
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Name:       "checkout",
	}

	assert.Equal(t, models.DeterministicDocumentID("payments:apps/v1:Deployment:checkout"), mapper.ID(resource))

	clusterScoped := &models.ClusterResource{APIVersion: "v1", Kind: "Namespace", Name: "payments"}
	assert.Equal(t, models.DeterministicDocumentID(":v1:Namespace:payments"), mapper.ID(clusterScoped))
}

func TestChunkMapper_RoundTrip(t *testing.T) {
	mapper := ChunkMapper{}
	chunk := &models.KnowledgeChunk{
		ID:        "5b6c7d8e-9f0a-4b1c-8d2e-3f4a5b6c7d8e",
		Title:     "Rolling updates",
		Content:   "Deployments replace pods gradually so capacity never drops to zero.",
		Source:    "docs/deployments.md",
		Tags:      []string{"deployment", "rollout"},
		CreatedAt: time.Date(2025, 7, 4, 16, 20, 0, 0, time.UTC),
	}

	payload, err := mapper.Payload(chunk)
	require.NoError(t, err)
	assert.NotContains(t, payload, "id")

	got, err := mapper.FromPayload(chunk.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, chunk, got)
}

func TestSearchTextComposition(t *testing.T) {
	t.Run("pattern includes every matchable field", func(t *testing.T) {
		text := PatternMapper{}.SearchText(&models.Pattern{
			Description:        "Stateful workloads get a dedicated storage class",
			Triggers:           []string{"database", "persistence"},
			SuggestedResources: []string{"StatefulSet"},
			Rationale:          "Local disks lose their data",
		})
		for _, want := range []string{"storage class", "database", "persistence", "StatefulSet", "Local disks"} {
			assert.Contains(t, text, want)
		}
	})

	t.Run("resource sorts labels for a stable projection", func(t *testing.T) {
		text := ResourceMapper{}.SearchText(&models.ClusterResource{
			Namespace:  "payments",
			APIVersion: "apps/v1",
			Kind:       "Deployment",
			Name:       "checkout",
			Labels:     map[string]string{"team": "payments", "app": "checkout"},
			Summary:    "3 replicas",
		})
		assert.Equal(t, "Deployment checkout payments apps/v1 app=checkout team=payments 3 replicas", text)
	})

	t.Run("blank segments are dropped", func(t *testing.T) {
		text := ResourceMapper{}.SearchText(&models.ClusterResource{
			APIVersion: "v1",
			Kind:       "Namespace",
			Name:       "payments",
		})
		assert.Equal(t, "Namespace payments v1", text)
	})

	t.Run("chunk includes title content tags and source", func(t *testing.T) {
		text := ChunkMapper{}.SearchText(&models.KnowledgeChunk{
			Title:   "Rolling updates",
			Content: "Deployments replace pods gradually.",
			Source:  "docs/deployments.md",
			Tags:    []string{"rollout"},
		})
		for _, want := range []string{"Rolling updates", "gradually", "rollout", "docs/deployments.md"} {
			assert.Contains(t, text, want)
		}
	})
}

func TestFromPayload_RejectsUnusablePayloads(t *testing.T) {
	tests := []struct {
		name    string
		wantErr string
		run     func() error
	}{
		{
			name:    "pattern empty payload",
			wantErr: "empty payload",
			run: func() error {
				_, err := PatternMapper{}.FromPayload("x", nil)
				return err
			},
		},
		{
			name:    "pattern missing description",
			wantErr: "missing description",
			run: func() error {
				_, err := PatternMapper{}.FromPayload("x", map[string]interface{}{"createdBy": "a"})
				return err
			},
		},
		{
			name:    "policy missing description",
			wantErr: "missing description",
			run: func() error {
				_, err := PolicyMapper{}.FromPayload("x", map[string]interface{}{"deployed": true})
				return err
			},
		},
		{
			name:    "capability missing natural key",
			wantErr: "missing resourceName",
			run: func() error {
				_, err := CapabilityMapper{}.FromPayload("x", map[string]interface{}{"complexity": "low"})
				return err
			},
		},
		{
			name:    "resource missing kind",
			wantErr: "missing kind or name",
			run: func() error {
				_, err := ResourceMapper{}.FromPayload("x", map[string]interface{}{"name": "checkout"})
				return err
			},
		},
		{
			name:    "chunk missing content",
			wantErr: "missing content",
			run: func() error {
				_, err := ChunkMapper{}.FromPayload("x", map[string]interface{}{"title": "Rolling updates"})
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
