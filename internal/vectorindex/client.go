package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize = 100
	defaultTimeout   = 15 * time.Second
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	BatchSize  int
}

// Record is one stored vector with its payload. The chunk text itself lives
// in the payload under "text".
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
}

// Match is one ranked similarity result.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]interface{}
	Text     string
}

// Client wraps the similarity store's REST surface. The store has no partial
// metadata patch, so UpdateMetadataByIDs reads, merges and rewrites points.
type Client struct {
	url        string
	apiKey     string
	collection string
	batchSize  int
	client     *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("vector_index.url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vector_index.collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		batchSize:  batchSize,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) BatchSize() int {
	return c.batchSize
}

// EnsureCollection creates the cosine-distance collection if it is missing.
func (c *Client) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return c.request(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", c.collection), body, nil)
}

// Upsert writes records in fixed-size batches, sequentially, to stay inside
// provider payload limits. The first failing batch aborts the call.
func (c *Client) Upsert(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += c.batchSize {
		end := start + c.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := c.upsertBatch(ctx, records[start:end]); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (c *Client) upsertBatch(ctx context.Context, records []Record) error {
	points := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		points = append(points, map[string]interface{}{
			"id":      rec.ID,
			"vector":  rec.Vector,
			"payload": rec.Metadata,
		})
	}
	body := map[string]interface{}{"points": points}
	return c.request(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", c.collection), body, nil)
}

// Filter is a set of exact-match payload conditions, all of which must hold.
type Filter map[string]interface{}

func (f Filter) encode() map[string]interface{} {
	if len(f) == 0 {
		return nil
	}
	must := make([]map[string]interface{}, 0, len(f))
	for key, value := range f {
		must = append(must, map[string]interface{}{
			"key":   key,
			"match": map[string]interface{}{"value": value},
		})
	}
	return map[string]interface{}{"must": must}
}

func (c *Client) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if encoded := filter.encode(); encoded != nil {
		body["filter"] = encoded
	}
	var resp struct {
		Result []struct {
			ID      string                 `json:"id"`
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := c.request(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", c.collection), body, &resp); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		match := Match{ID: r.ID, Score: r.Score, Metadata: r.Payload}
		if text, ok := r.Payload["text"].(string); ok {
			match.Text = text
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Fetch returns stored records for the given ids, vectors included. Ids the
// store no longer knows are skipped with a warning, never an error.
func (c *Client) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	body := map[string]interface{}{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []struct {
			ID      string                 `json:"id"`
			Vector  []float32              `json:"vector"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := c.request(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points", c.collection), body, &resp); err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(resp.Result))
	records := make([]Record, 0, len(resp.Result))
	for _, r := range resp.Result {
		found[r.ID] = true
		records = append(records, Record{ID: r.ID, Vector: r.Vector, Metadata: r.Payload})
	}
	for _, id := range ids {
		if !found[id] {
			logutil.GetLogger(ctx).Warn("vector missing on fetch, skipping", zap.String("vector_id", id))
		}
	}
	return records, nil
}

func (c *Client) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]interface{}{"points": ids}
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection), body, nil)
}

// DeleteByFilter uses the store's native filtered delete.
func (c *Client) DeleteByFilter(ctx context.Context, filter Filter) error {
	encoded := filter.encode()
	if encoded == nil {
		return fmt.Errorf("refusing unfiltered delete")
	}
	body := map[string]interface{}{"filter": encoded}
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection), body, nil)
}

// UpdateMetadataByIDs merges patch into each point's payload while keeping
// the stored vector untouched. Batches that fail are logged and skipped; the
// returned count is the number of points actually rewritten.
func (c *Client) UpdateMetadataByIDs(ctx context.Context, ids []string, patch map[string]interface{}) (int, error) {
	logger := logutil.GetLogger(ctx)
	updated := 0
	for start := 0; start < len(ids); start += c.batchSize {
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		records, err := c.Fetch(ctx, batch)
		if err != nil {
			logger.Warn("metadata patch batch fetch failed, skipping",
				zap.Int("start", start), zap.Int("end", end), zap.Error(err))
			continue
		}
		for i := range records {
			if records[i].Metadata == nil {
				records[i].Metadata = map[string]interface{}{}
			}
			for key, value := range patch {
				records[i].Metadata[key] = value
			}
		}
		if err := c.upsertBatch(ctx, records); err != nil {
			logger.Warn("metadata patch batch upsert failed, skipping",
				zap.Int("start", start), zap.Int("end", end), zap.Error(err))
			continue
		}
		updated += len(records)
	}
	return updated, nil
}

func (c *Client) request(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vector index %s %s failed: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
