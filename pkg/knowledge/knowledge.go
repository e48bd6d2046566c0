// Package knowledge binds the domain records in pkg/models to the generic
// hybrid search service: one collection, one payload mapper, and one typed
// service per entity family. The mappers keep the document id out of the
// payload body; it is re-injected from the document id on the way back out.
package knowledge

// Collection names, one per entity family. Every collection shares the
// provider's dimensionality and cosine distance.
const (
	PatternsCollection     = "patterns"
	PoliciesCollection     = "policies"
	CapabilitiesCollection = "capabilities"
	ResourcesCollection    = "resources"
	KnowledgeCollection    = "knowledge"
)

// Collections returns every collection name this package manages, in a
// stable order. Operational tooling iterates this for init and stats.
func Collections() []string {
	return []string{
		PatternsCollection,
		PoliciesCollection,
		CapabilitiesCollection,
		ResourcesCollection,
		KnowledgeCollection,
	}
}
