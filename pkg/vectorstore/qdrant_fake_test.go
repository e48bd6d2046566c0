package vectorstore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clusterkb/clusterkb/pkg/observability"
)

// fakeQdrant is an in-memory stand-in for the Qdrant REST API covering the
// endpoints the client uses. It records requests so tests can assert on
// method, path, and body shape.
type fakeQdrant struct {
	t *testing.T

	mu         sync.Mutex
	exists     bool
	dims       int
	schema     map[string]string
	payloads   map[string]map[string]interface{}
	order      []string
	searchHits []map[string]interface{}

	requireAPIKey string
	failures      map[string]failure
	requests      []requestRecord
}

type failure struct {
	body  string
	code  int
	times int
}

type requestRecord struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{
		t:        t,
		schema:   map[string]string{},
		payloads: map[string]map[string]interface{}{},
		failures: map[string]failure{},
	}
	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)
	return f, server
}

// failNext makes the next n requests matching "METHOD /path" answer with
// the given status code and body.
func (f *fakeQdrant) failNext(route string, code int, body string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = failure{code: code, body: body, times: times}
}

func (f *fakeQdrant) seed(id string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.payloads[id]; !ok {
		f.order = append(f.order, id)
	}
	f.payloads[id] = payload
}

func (f *fakeQdrant) pointCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeQdrant) collectionExists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists
}

func (f *fakeQdrant) vectorSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dims
}

func (f *fakeQdrant) schemaType(field string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schema[field]
}

func (f *fakeQdrant) recorded() []requestRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]requestRecord, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeQdrant) lastRequest(route string) (requestRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		rec := f.requests[i]
		if rec.Method+" "+rec.Path == route {
			return rec, true
		}
	}
	return requestRecord{}, false
}

func (f *fakeQdrant) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	f.mu.Lock()
	if f.requireAPIKey != "" && r.Header.Get("api-key") != f.requireAPIKey {
		f.mu.Unlock()
		writeEnvelope(w, http.StatusUnauthorized, nil)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	f.requests = append(f.requests, requestRecord{Method: r.Method, Path: path, Body: body})

	route := r.Method + " " + path
	if fail, ok := f.failures[route]; ok && fail.times != 0 {
		fail.times--
		f.failures[route] = fail
		f.mu.Unlock()
		w.WriteHeader(fail.code)
		_, _ = fmt.Fprint(w, fail.body)
		return
	}
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && path == "/healthz":
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && strings.Count(path, "/") == 2 && strings.HasPrefix(path, "/collections/"):
		if !f.exists {
			writeEnvelope(w, http.StatusNotFound, nil)
			return
		}
		schema := map[string]interface{}{}
		for field, dataType := range f.schema {
			schema[field] = map[string]interface{}{"data_type": dataType}
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"status":       "green",
			"points_count": len(f.payloads),
			"config": map[string]interface{}{
				"params": map[string]interface{}{
					"vectors": map[string]interface{}{"size": f.dims, "distance": "Cosine"},
				},
			},
			"payload_schema": schema,
		})

	case r.Method == http.MethodPut && strings.Count(path, "/") == 2 && strings.HasPrefix(path, "/collections/"):
		if vectors, ok := body["vectors"].(map[string]interface{}); ok {
			if size, ok := vectors["size"].(float64); ok {
				f.dims = int(size)
			}
		}
		f.exists = true
		writeEnvelope(w, http.StatusOK, true)

	case r.Method == http.MethodDelete && strings.Count(path, "/") == 2 && strings.HasPrefix(path, "/collections/"):
		f.exists = false
		f.payloads = map[string]map[string]interface{}{}
		f.order = nil
		f.schema = map[string]string{}
		writeEnvelope(w, http.StatusOK, true)

	case r.Method == http.MethodPut && strings.HasSuffix(path, "/index"):
		field, _ := body["field_name"].(string)
		fieldSchema, _ := body["field_schema"].(string)
		f.schema[field] = fieldSchema
		writeEnvelope(w, http.StatusOK, true)

	case r.Method == http.MethodDelete && strings.Contains(path, "/index/"):
		field := path[strings.LastIndex(path, "/")+1:]
		delete(f.schema, field)
		writeEnvelope(w, http.StatusOK, true)

	case r.Method == http.MethodPut && strings.HasSuffix(path, "/points"):
		points, _ := body["points"].([]interface{})
		for _, raw := range points {
			point, _ := raw.(map[string]interface{})
			id, _ := point["id"].(string)
			payload, _ := point["payload"].(map[string]interface{})
			if _, known := f.payloads[id]; !known {
				f.order = append(f.order, id)
			}
			f.payloads[id] = payload
		}
		writeEnvelope(w, http.StatusOK, true)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/points"):
		ids, _ := body["ids"].([]interface{})
		var hits []interface{}
		for _, raw := range ids {
			id, _ := raw.(string)
			if payload, ok := f.payloads[id]; ok {
				hits = append(hits, map[string]interface{}{"id": id, "payload": payload})
			}
		}
		writeEnvelope(w, http.StatusOK, hits)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/points/delete"):
		if ids, ok := body["points"].([]interface{}); ok {
			for _, raw := range ids {
				id, _ := raw.(string)
				if _, known := f.payloads[id]; known {
					delete(f.payloads, id)
					f.order = removeString(f.order, id)
				}
			}
		} else if _, ok := body["filter"]; ok {
			f.payloads = map[string]map[string]interface{}{}
			f.order = nil
		}
		writeEnvelope(w, http.StatusOK, true)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/points/scroll"):
		limit := 10
		if l, ok := body["limit"].(float64); ok {
			limit = int(l)
		}
		offset := 0
		if o, ok := body["offset"].(float64); ok {
			offset = int(o)
		}
		var points []interface{}
		next := offset
		for next < len(f.order) && len(points) < limit {
			id := f.order[next]
			points = append(points, map[string]interface{}{"id": id, "payload": f.payloads[id]})
			next++
		}
		result := map[string]interface{}{"points": points}
		if next < len(f.order) {
			result["next_page_offset"] = next
		}
		writeEnvelope(w, http.StatusOK, result)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/points/search"):
		hits := make([]interface{}, 0, len(f.searchHits))
		for _, hit := range f.searchHits {
			hits = append(hits, hit)
		}
		writeEnvelope(w, http.StatusOK, hits)

	default:
		f.t.Errorf("fake qdrant: unhandled route %s %s", r.Method, path)
		writeEnvelope(w, http.StatusNotFound, nil)
	}
}

func writeEnvelope(w http.ResponseWriter, code int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result": result,
		"status": "ok",
		"time":   0.0001,
	})
}

func removeString(items []string, target string) []string {
	out := items[:0]
	for _, item := range items {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}

func newTestClient(t *testing.T, url string, opts ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		URL:         url,
		Collection:  "test_patterns",
		Dimensions:  4,
		SettleDelay: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := NewClient(cfg, observability.NewNoopLogger(), observability.NewNoOpMetricsClient())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}
