package vectorstore

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCollection_CreatesMissingCollection(t *testing.T) {
	fake, server := newFakeQdrant(t)
	client := newTestClient(t, server.URL)

	require.NoError(t, client.EnsureCollection(context.Background()))

	assert.True(t, fake.collectionExists())
	assert.Equal(t, 4, fake.vectorSize())
	assert.Equal(t, "text", fake.schemaType(searchTextField))

	create, ok := fake.lastRequest("PUT /collections/test_patterns")
	require.True(t, ok)
	vectors := create.Body["vectors"].(map[string]interface{})
	assert.Equal(t, float64(4), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestEnsureCollection_ExistingCollectionIsKept(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.exists = true
	fake.dims = 4
	fake.seed("a", map[string]interface{}{"searchText": "kept"})

	client := newTestClient(t, server.URL)
	require.NoError(t, client.EnsureCollection(context.Background()))

	assert.Equal(t, 1, fake.pointCount())
	for _, rec := range fake.recorded() {
		assert.NotEqual(t, http.MethodDelete+" /collections/test_patterns", rec.Method+" "+rec.Path)
	}
}

func TestEnsureCollection_SwallowsCreationRace(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.failNext("PUT /collections/test_patterns", http.StatusConflict,
		`{"status":{"error":"Collection test_patterns already exists!"}}`, 1)
	fake.exists = true
	fake.dims = 4

	client := newTestClient(t, server.URL)
	// The first exists check is made to miss so the client races another
	// creator and must treat the conflict as success.
	fake.failNext("GET /collections/test_patterns", http.StatusNotFound, "", 1)

	require.NoError(t, client.EnsureCollection(context.Background()))
}

func TestEnsureCollection_RecreatesOnDimensionMismatch(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.exists = true
	fake.dims = 768
	fake.seed("stale", map[string]interface{}{"searchText": "old vectors"})

	client := newTestClient(t, server.URL)
	require.NoError(t, client.EnsureCollection(context.Background()))

	assert.Equal(t, 4, fake.vectorSize(), "collection should be recreated with the configured size")
	assert.Equal(t, 0, fake.pointCount(), "recreation drops existing points")
	assert.Equal(t, "text", fake.schemaType(searchTextField))

	_, deleted := fake.lastRequest("DELETE /collections/test_patterns")
	assert.True(t, deleted)
}

func TestEnsureCollection_UpgradesKeywordIndexToText(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.exists = true
	fake.dims = 4
	fake.schema[searchTextField] = "keyword"

	client := newTestClient(t, server.URL)
	require.NoError(t, client.EnsureCollection(context.Background()))

	assert.Equal(t, "text", fake.schemaType(searchTextField))
	_, dropped := fake.lastRequest("DELETE /collections/test_patterns/index/" + searchTextField)
	assert.True(t, dropped, "previous index should be dropped before recreation")
}

func TestEnsureCollection_IndexFailureIsNotFatal(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.exists = true
	fake.dims = 4
	fake.failNext("PUT /collections/test_patterns/index", http.StatusInternalServerError, "index backend busy", 1)

	client := newTestClient(t, server.URL)
	require.NoError(t, client.EnsureCollection(context.Background()))
}

func TestCollectionExists(t *testing.T) {
	fake, server := newFakeQdrant(t)
	client := newTestClient(t, server.URL)

	exists, err := client.CollectionExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)

	fake.exists = true
	exists, err = client.CollectionExists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStats(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.exists = true
	fake.dims = 4
	fake.seed("a", nil)
	fake.seed("b", nil)

	client := newTestClient(t, server.URL)
	stats, err := client.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "test_patterns", stats.Name)
	assert.Equal(t, int64(2), stats.PointCount)
	assert.Equal(t, 4, stats.Dimensions)
	assert.Equal(t, "green", stats.Status)
}

func TestCount_PrefersStats(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.exists = true
	fake.dims = 4
	fake.seed("a", nil)

	client := newTestClient(t, server.URL)
	count, err := client.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	for _, rec := range fake.recorded() {
		assert.NotContains(t, rec.Path, "/scroll")
	}
}

func TestCount_FallsBackToScroll(t *testing.T) {
	fake, server := newFakeQdrant(t)
	fake.exists = true
	fake.dims = 4
	fake.seed("a", nil)
	fake.seed("b", nil)
	fake.seed("c", nil)
	fake.failNext("GET /collections/test_patterns", http.StatusInternalServerError, "stats broken", 1)

	client := newTestClient(t, server.URL)
	count, err := client.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	_, scrolled := fake.lastRequest("POST /collections/test_patterns/points/scroll")
	assert.True(t, scrolled)
}
