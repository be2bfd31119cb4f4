package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, batchSize int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		URL:        server.URL,
		Collection: "chunks",
		BatchSize:  batchSize,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Collection: "chunks"})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "http://localhost:6333"})
	assert.Error(t, err)
}

func TestUpsertBatches(t *testing.T) {
	var batches [][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []struct {
				ID string `json:"id"`
			} `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		ids := make([]string, 0, len(body.Points))
		for _, p := range body.Points {
			ids = append(ids, p.ID)
		}
		batches = append(batches, ids)
		w.WriteHeader(http.StatusOK)
	}, 2)

	records := []Record{
		{ID: "a", Vector: []float32{1}},
		{ID: "b", Vector: []float32{2}},
		{ID: "c", Vector: []float32{3}},
	}
	require.NoError(t, client.Upsert(context.Background(), records))
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c"}, batches[1])
}

func TestQuerySendsFilter(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{"id": "v1", "score": 0.9, "payload": map[string]interface{}{"text": "hello", "note_id": "n1"}},
			},
		})
	}, 0)

	matches, err := client.Query(context.Background(), []float32{0.1, 0.2}, 5, Filter{"note_id": "n1"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v1", matches[0].ID)
	assert.Equal(t, "hello", matches[0].Text)
	assert.Equal(t, "n1", matches[0].Metadata["note_id"])

	filter, ok := got["filter"].(map[string]interface{})
	require.True(t, ok, "query must carry the filter")
	must, ok := filter["must"].([]interface{})
	require.True(t, ok)
	require.Len(t, must, 1)
}

func TestFetchSkipsMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{"id": "v1", "vector": []float32{0.5}, "payload": map[string]interface{}{"note_id": "n1"}},
			},
		})
	}, 0)

	records, err := client.Fetch(context.Background(), []string{"v1", "gone"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "v1", records[0].ID)
}

func TestUpdateMetadataMergesAndPreservesVector(t *testing.T) {
	var upserted []Record
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost: // fetch
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]interface{}{
					{
						"id":      "v1",
						"vector":  []float32{0.1, 0.2},
						"payload": map[string]interface{}{"note_id": "old", "chunk_index": float64(3)},
					},
				},
			})
		default:
			var body struct {
				Points []struct {
					ID      string                 `json:"id"`
					Vector  []float32              `json:"vector"`
					Payload map[string]interface{} `json:"payload"`
				} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for _, p := range body.Points {
				upserted = append(upserted, Record{ID: p.ID, Vector: p.Vector, Metadata: p.Payload})
			}
			w.WriteHeader(http.StatusOK)
		}
	}, 0)

	updated, err := client.UpdateMetadataByIDs(context.Background(), []string{"v1"}, map[string]interface{}{"note_id": "new"})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	require.Len(t, upserted, 1)
	assert.Equal(t, []float32{0.1, 0.2}, upserted[0].Vector)
	assert.Equal(t, "new", upserted[0].Metadata["note_id"])
	assert.Equal(t, float64(3), upserted[0].Metadata["chunk_index"])
}

func TestUpdateMetadataSkipsFailedBatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, 1)
	updated, err := client.UpdateMetadataByIDs(context.Background(), []string{"v1", "v2"}, map[string]interface{}{"note_id": "new"})
	require.NoError(t, err, "per-batch failures must not fail the operation")
	assert.Equal(t, 0, updated)
}

func TestDeleteByFilterRefusesEmptyFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, 0)
	assert.Error(t, client.DeleteByFilter(context.Background(), nil))
}
