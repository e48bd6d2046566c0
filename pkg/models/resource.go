package models

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClusterResource is the stored metadata for one object observed in a
// cluster. It has no natural id the store accepts, so the composite key
// namespace:apiVersion:kind:name is hashed into a UUID-shaped document id.
type ClusterResource struct {
	Namespace  string            `json:"namespace"`
	APIVersion string            `json:"apiVersion"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Labels     map[string]string `json:"labels,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	CapturedAt time.Time         `json:"capturedAt"`
}

// ResourceKey returns the human-readable composite key callers use to
// address this resource. Cluster-scoped resources have an empty namespace
// segment, which keeps the key shape uniform.
func (r *ClusterResource) ResourceKey() string {
	return fmt.Sprintf("%s:%s:%s:%s", r.Namespace, r.APIVersion, r.Kind, r.Name)
}

// DocumentID returns the store-facing id derived from ResourceKey
func (r *ClusterResource) DocumentID() string {
	return DeterministicDocumentID(r.ResourceKey())
}

// DeterministicDocumentID hashes any caller key into a UUID-shaped string
// the store accepts as a point id. The same key always yields the same id,
// so re-storing an entity replaces its point instead of duplicating it.
func DeterministicDocumentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// Unreachable: FromBytes only fails on length != 16.
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
	}
	return id.String()
}
