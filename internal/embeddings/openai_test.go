package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihelp/cli/internal/backoff"
	"github.com/unihelp/cli/internal/openai"
)

func fastRetry(attempts int) backoff.Policy {
	return backoff.Policy{
		MaxAttempts: attempts,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func testClient(t *testing.T, attempts int, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
		Retry:             fastRetry(attempts),
	})
}

func embeddingBody(t *testing.T, vectors map[int][]float32) []byte {
	t.Helper()
	type item struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	var items []item
	for i, v := range vectors {
		items = append(items, item{Index: i, Embedding: v})
	}
	body, err := json.Marshal(map[string]any{"data": items})
	require.NoError(t, err)
	return body
}

func TestClientEmbedBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves input order", func(t *testing.T) {
		c := testClient(t, 1, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, DefaultModel, req.Model)
			assert.Equal(t, []string{"first", "second"}, req.Input)

			// Answer out of order; the index field is authoritative.
			w.Write(embeddingBody(t, map[int][]float32{
				1: {0.4, 0.5, 0.6},
				0: {0.1, 0.2, 0.3},
			}))
		})

		vectors, err := c.EmbedBatch(ctx, []string{"first", "second"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
		assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
	})

	t.Run("retries server failures until they clear", func(t *testing.T) {
		calls := 0
		c := testClient(t, 5, func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write(embeddingBody(t, map[int][]float32{0: {1, 2, 3}}))
		})

		vectors, err := c.EmbedBatch(ctx, []string{"hello"})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []float32{1, 2, 3}, vectors[0])
	})

	t.Run("gives up when rate limiting persists", func(t *testing.T) {
		calls := 0
		c := testClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := c.EmbedBatch(ctx, []string{"hello"})
		require.ErrorIs(t, err, openai.ErrRateLimited)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry a rejected payload", func(t *testing.T) {
		calls := 0
		c := testClient(t, 5, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"input too long"}}`)
		})

		_, err := c.EmbedBatch(ctx, []string{"hello"})
		require.ErrorIs(t, err, openai.ErrInvalidInput)
		assert.Contains(t, err.Error(), "input too long")
		assert.Equal(t, 1, calls)
	})

	t.Run("rejects blank input without calling the API", func(t *testing.T) {
		calls := 0
		c := testClient(t, 5, func(w http.ResponseWriter, r *http.Request) {
			calls++
		})

		_, err := c.EmbedBatch(ctx, []string{"ok", "   "})
		require.ErrorIs(t, err, openai.ErrInvalidInput)
		assert.Equal(t, 0, calls)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		c := testClient(t, 1, func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected API call")
		})
		vectors, err := c.EmbedBatch(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, vectors)
	})
}

func TestClientEmbed(t *testing.T) {
	c := testClient(t, 1, func(w http.ResponseWriter, r *http.Request) {
		w.Write(embeddingBody(t, map[int][]float32{0: {0.7, 0.8}}))
	})

	vector, err := c.Embed(context.Background(), "single text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.7, 0.8}, vector)
}

func TestClientDimension(t *testing.T) {
	cases := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"future-model", 1536},
	}
	for _, tc := range cases {
		c := NewClient(Config{Model: tc.model})
		assert.Equal(t, tc.want, c.Dimension(), tc.model)
	}
}
