package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	commonerrors "github.com/clusterkb/clusterkb/pkg/common/errors"
)

// searchTextField is the payload field carrying the flattened text every
// keyword search matches against. It gets a full-text index.
const searchTextField = "searchText"

// CollectionExists reports whether the collection is present.
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	resp, err := c.doRequestRaw(ctx, http.MethodGet, "/collections/"+c.collection, nil)
	if err != nil {
		return false, commonerrors.Wrap(err, "vectorstore", "collection_exists", commonerrors.ErrorTypeStoreOperation, "checking collection")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, commonerrors.New("vectorstore", "collection_exists", commonerrors.ErrorTypeStoreOperation,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	default:
		return true, nil
	}
}

// Stats returns point count, vector size, and status for the collection.
func (c *Client) Stats(ctx context.Context) (*CollectionStats, error) {
	start := time.Now()
	resp, err := c.doRequest(ctx, http.MethodGet, "/collections/"+c.collection, nil)
	c.observe("stats", start, err)
	if err != nil {
		return nil, wrapStoreError(err, "stats", "reading collection info")
	}

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		return nil, commonerrors.New("vectorstore", "stats", commonerrors.ErrorTypeStoreOperation, "unexpected response format")
	}

	stats := &CollectionStats{Name: c.collection}
	if pc, ok := result["points_count"].(float64); ok {
		stats.PointCount = int64(pc)
	}
	if status, ok := result["status"].(string); ok {
		stats.Status = status
	}
	if config, ok := result["config"].(map[string]interface{}); ok {
		if params, ok := config["params"].(map[string]interface{}); ok {
			if vectors, ok := params["vectors"].(map[string]interface{}); ok {
				if size, ok := vectors["size"].(float64); ok {
					stats.Dimensions = int(size)
				}
			}
		}
	}
	return stats, nil
}

// EnsureCollection makes the collection usable: it creates it when missing,
// recreates it when the stored vector size disagrees with the configured
// one (dropping all points, which is logged loudly), and ensures the
// full-text index on searchText either way. Creation races with other
// instances are treated as success.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.CollectionExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		stats, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		switch {
		case stats.Dimensions == 0:
			// Unreadable vector config. Leave the collection alone rather
			// than destroy data over a parsing gap.
			c.logger.Warn("Could not verify collection vector size; leaving collection as is", map[string]interface{}{
				"collection": c.collection,
				"expected":   c.dimensions,
			})
		case stats.Dimensions != c.dimensions:
			c.logger.Warn("Collection vector size mismatch; recreating collection and dropping its points", map[string]interface{}{
				"collection": c.collection,
				"expected":   c.dimensions,
				"actual":     stats.Dimensions,
				"points":     stats.PointCount,
			})
			if err := c.deleteCollection(ctx); err != nil {
				return err
			}
			if err := c.createCollection(ctx); err != nil {
				return err
			}
		}
	} else {
		if err := c.createCollection(ctx); err != nil {
			return err
		}
		c.logger.Info("Created collection", map[string]interface{}{
			"collection": c.collection,
			"dimensions": c.dimensions,
		})
	}

	return c.ensureTextIndex(ctx)
}

func (c *Client) createCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.dimensions,
			"distance": "Cosine",
			"on_disk":  true,
		},
	}
	start := time.Now()
	_, err := c.doRequest(ctx, http.MethodPut, "/collections/"+c.collection, body)
	c.observe("create_collection", start, err)
	if err != nil {
		if isAlreadyExists(err) {
			// Another instance created it first.
			return nil
		}
		return wrapStoreError(err, "create_collection", "creating collection")
	}
	return nil
}

func (c *Client) deleteCollection(ctx context.Context) error {
	start := time.Now()
	_, err := c.doRequest(ctx, http.MethodDelete, "/collections/"+c.collection, nil)
	c.observe("delete_collection", start, err)
	if err != nil {
		return wrapStoreError(err, "delete_collection", "deleting collection")
	}
	return nil
}

// ensureTextIndex makes sure searchText carries a full-text index. An index
// of a different type is replaced. Failures are logged, not returned: the
// collection stays usable for semantic search and the keyword path reports
// its own errors.
func (c *Client) ensureTextIndex(ctx context.Context) error {
	schemaType, err := c.payloadSchemaType(ctx, searchTextField)
	if err != nil {
		c.logger.Warn("Could not read payload schema; attempting index creation anyway", map[string]interface{}{
			"collection": c.collection,
			"error":      err.Error(),
		})
	}

	switch schemaType {
	case "text":
		return nil
	case "":
		// No index yet.
	default:
		c.logger.Info("Replacing searchText index with a full-text one", map[string]interface{}{
			"collection": c.collection,
			"previous":   schemaType,
		})
		start := time.Now()
		_, err := c.doRequest(ctx, http.MethodDelete, "/collections/"+c.collection+"/index/"+searchTextField+"?wait=true", nil)
		c.observe("delete_index", start, err)
		if err != nil && !isNotFoundError(err) {
			c.logger.Warn("Failed to drop previous searchText index", map[string]interface{}{
				"collection": c.collection,
				"error":      err.Error(),
			})
		}
	}

	body := map[string]interface{}{
		"field_name":   searchTextField,
		"field_schema": "text",
	}
	start := time.Now()
	_, err = c.doRequest(ctx, http.MethodPut, "/collections/"+c.collection+"/index?wait=true", body)
	c.observe("create_index", start, err)
	if err != nil && !isAlreadyExists(err) {
		c.logger.Warn("Failed to create searchText index; keyword search may degrade", map[string]interface{}{
			"collection": c.collection,
			"error":      err.Error(),
		})
	}
	return nil
}

// payloadSchemaType reads the indexed type of a payload field, or "" when
// the field has no index.
func (c *Client) payloadSchemaType(ctx context.Context, field string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/collections/"+c.collection, nil)
	if err != nil {
		return "", err
	}
	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	schema, ok := result["payload_schema"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	entry, ok := schema[field].(map[string]interface{})
	if !ok {
		return "", nil
	}
	if dataType, ok := entry["data_type"].(string); ok {
		return dataType, nil
	}
	return "", nil
}

// Count returns the number of points. It prefers collection stats and
// falls back to scrolling the collection when stats cannot be read.
func (c *Client) Count(ctx context.Context) (int64, error) {
	stats, err := c.Stats(ctx)
	if err == nil {
		return stats.PointCount, nil
	}

	c.logger.Debug("Stats unavailable; counting by scroll", map[string]interface{}{
		"collection": c.collection,
		"error":      err.Error(),
	})

	var count int64
	var offset interface{}
	for {
		page, next, scrollErr := c.scrollPage(ctx, scrollRequest{Limit: 1000, Offset: offset, WithPayload: false})
		if scrollErr != nil {
			return 0, scrollErr
		}
		count += int64(len(page))
		if next == nil {
			return count, nil
		}
		offset = next
	}
}

// wrapStoreError turns transport and status errors into the store error
// type, keeping the cause.
func wrapStoreError(err error, operation, message string) error {
	return commonerrors.Wrap(err, "vectorstore", operation, commonerrors.ErrorTypeStoreOperation, message)
}

func isAlreadyExists(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		if statusErr.Status == http.StatusConflict {
			return true
		}
		body := strings.ToLower(statusErr.Body)
		return strings.Contains(body, "already exists") || strings.Contains(body, "conflict")
	}
	return false
}

func isNotFoundError(err error) bool {
	var statusErr *statusError
	return errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound
}
