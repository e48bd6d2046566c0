package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Upsert writes documents to the collection, replacing any existing points
// with the same IDs. The write is synchronous so a following read sees it.
func (c *Client) Upsert(ctx context.Context, docs []VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		point := map[string]interface{}{
			"id":      doc.ID,
			"payload": doc.Payload,
		}
		if len(doc.Vector) > 0 {
			point["vector"] = doc.Vector
		}
		points = append(points, point)
	}

	start := time.Now()
	_, err := c.doRequest(ctx, http.MethodPut, "/collections/"+c.collection+"/points?wait=true", map[string]interface{}{
		"points": points,
	})
	c.observe("upsert", start, err)
	if err != nil {
		return wrapStoreError(err, "upsert", fmt.Sprintf("upserting %d points", len(docs)))
	}
	return nil
}

// Get retrieves a single document by ID. A missing document returns
// (nil, nil) so callers can distinguish absence from failure.
func (c *Client) Get(ctx context.Context, id string) (*VectorDocument, error) {
	if err := c.readSem.Acquire(ctx, 1); err != nil {
		return nil, wrapStoreError(err, "get", "waiting for read slot")
	}
	defer c.readSem.Release(1)

	start := time.Now()
	resp, err := c.doRequest(ctx, http.MethodPost, "/collections/"+c.collection+"/points", map[string]interface{}{
		"ids":          []string{id},
		"with_payload": true,
		"with_vector":  false,
	})
	c.observe("get", start, err)
	if err != nil {
		return nil, wrapStoreError(err, "get", "retrieving point "+id)
	}

	points, ok := resp["result"].([]interface{})
	if !ok || len(points) == 0 {
		return nil, nil
	}
	doc := parsePoint(points[0])
	if doc == nil {
		return nil, nil
	}
	return doc, nil
}

// GetMany retrieves documents by ID concurrently, bounded by the client's
// read slots. Missing IDs are skipped; order follows the input.
func (c *Client) GetMany(ctx context.Context, ids []string) ([]VectorDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found := make([]*VectorDocument, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			doc, err := c.Get(gctx, id)
			if err != nil {
				return err
			}
			found[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]VectorDocument, 0, len(ids))
	for _, doc := range found {
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// Delete removes points by ID. Deleting an absent ID succeeds. The call
// waits out the settle delay so an immediate re-read reflects the delete.
func (c *Client) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	start := time.Now()
	_, err := c.doRequest(ctx, http.MethodPost, "/collections/"+c.collection+"/points/delete?wait=true", map[string]interface{}{
		"points": ids,
	})
	c.observe("delete", start, err)
	if err != nil {
		return wrapStoreError(err, "delete", fmt.Sprintf("deleting %d points", len(ids)))
	}
	c.settle(ctx)
	return nil
}

// DeleteAll removes every point while keeping the collection and its
// payload indexes in place.
func (c *Client) DeleteAll(ctx context.Context) error {
	start := time.Now()
	_, err := c.doRequest(ctx, http.MethodPost, "/collections/"+c.collection+"/points/delete?wait=true", map[string]interface{}{
		"filter": map[string]interface{}{},
	})
	c.observe("delete_all", start, err)
	if err != nil {
		return wrapStoreError(err, "delete_all", "deleting all points")
	}
	c.settle(ctx)
	return nil
}

// List pages through the collection and returns up to limit documents
// matching the filter. A nil filter matches everything; a non-positive
// limit returns all matches.
func (c *Client) List(ctx context.Context, filter map[string]interface{}, limit int) ([]VectorDocument, error) {
	pageSize := 256
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	var docs []VectorDocument
	var offset interface{}
	for {
		page, next, err := c.scrollPage(ctx, scrollRequest{
			Limit:       pageSize,
			Offset:      offset,
			WithPayload: true,
			Filter:      filter,
		})
		if err != nil {
			return nil, err
		}
		docs = append(docs, page...)
		if limit > 0 && len(docs) >= limit {
			return docs[:limit], nil
		}
		if next == nil {
			return docs, nil
		}
		offset = next
	}
}

// ListAll returns every document matching the filter.
func (c *Client) ListAll(ctx context.Context, filter map[string]interface{}) ([]VectorDocument, error) {
	return c.List(ctx, filter, 0)
}

type scrollRequest struct {
	Limit       int
	Offset      interface{}
	WithPayload bool
	Filter      map[string]interface{}
}

// scrollPage fetches one page of points and the offset for the next page.
// A nil next offset means the scan is complete. Pages take a read slot, so
// many concurrent scans queue instead of flooding the backend.
func (c *Client) scrollPage(ctx context.Context, req scrollRequest) ([]VectorDocument, interface{}, error) {
	if err := c.readSem.Acquire(ctx, 1); err != nil {
		return nil, nil, wrapStoreError(err, "scroll", "waiting for read slot")
	}
	defer c.readSem.Release(1)

	body := map[string]interface{}{
		"limit":        req.Limit,
		"with_payload": req.WithPayload,
		"with_vector":  false,
	}
	if req.Offset != nil {
		body["offset"] = req.Offset
	}
	if len(req.Filter) > 0 {
		body["filter"] = req.Filter
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, http.MethodPost, "/collections/"+c.collection+"/points/scroll", body)
	c.observe("scroll", start, err)
	if err != nil {
		return nil, nil, wrapStoreError(err, "scroll", "scrolling points")
	}

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		return nil, nil, nil
	}

	var docs []VectorDocument
	if points, ok := result["points"].([]interface{}); ok {
		for _, raw := range points {
			if doc := parsePoint(raw); doc != nil {
				docs = append(docs, *doc)
			}
		}
	}
	return docs, result["next_page_offset"], nil
}

// parsePoint converts one point from a response envelope. IDs come back as
// strings for UUIDs and numbers for integer IDs.
func parsePoint(raw interface{}) *VectorDocument {
	point, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	doc := &VectorDocument{}
	switch id := point["id"].(type) {
	case string:
		doc.ID = id
	case float64:
		doc.ID = fmt.Sprintf("%d", int64(id))
	default:
		return nil
	}
	if payload, ok := point["payload"].(map[string]interface{}); ok {
		doc.Payload = payload
	}
	return doc
}
