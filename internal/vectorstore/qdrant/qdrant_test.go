package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihelp/cli/internal/vectorstore"
)

func testStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, APIKey: "qd-key", Collection: "docs"})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestStoreInit(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a missing collection", func(t *testing.T) {
		var created map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("GET /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "qd-key", r.Header.Get("api-key"))
			w.WriteHeader(http.StatusNotFound)
		})
		mux.HandleFunc("PUT /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			created = decodeBody(t, r)
			fmt.Fprint(w, `{"result":true}`)
		})

		s := testStore(t, mux)
		require.NoError(t, s.Init(ctx, 1536))

		require.NotNil(t, created)
		vectors := created["vectors"].(map[string]any)
		assert.Equal(t, float64(1536), vectors["size"])
		assert.Equal(t, "Cosine", vectors["distance"])
	})

	t.Run("accepts an existing collection of the same size", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"result":{"config":{"params":{"vectors":{"size":1536}}}}}`)
		})
		mux.HandleFunc("PUT /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			t.Error("collection must not be recreated")
		})

		s := testStore(t, mux)
		require.NoError(t, s.Init(ctx, 1536))
	})

	t.Run("rejects an existing collection of a different size", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"result":{"config":{"params":{"vectors":{"size":768}}}}}`)
		})

		s := testStore(t, mux)
		require.ErrorIs(t, s.Init(ctx, 1536), vectorstore.ErrDimensionMismatch)
	})
}

func TestStoreUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("sends points with their payload", func(t *testing.T) {
		var got map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("PUT /collections/docs/points", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			got = decodeBody(t, r)
			fmt.Fprint(w, `{"result":{"status":"completed"}}`)
		})

		s := testStore(t, mux)
		e := vectorstore.Entry{
			ID:       vectorstore.EntryID("fees.txt", 2),
			Vector:   []float32{0.1, 0.2},
			Document: "fees.txt",
			Ordinal:  2,
			Content:  "tuition is due in May",
			DocHash:  "abc123",
			Title:    "fees",
		}
		require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{e}))

		points := got["points"].([]any)
		require.Len(t, points, 1)
		point := points[0].(map[string]any)
		assert.Equal(t, e.ID.String(), point["id"])
		payload := point["payload"].(map[string]any)
		assert.Equal(t, "fees.txt", payload["document"])
		assert.Equal(t, float64(2), payload["ordinal"])
		assert.Equal(t, "tuition is due in May", payload["content"])
		assert.Equal(t, "abc123", payload["doc_hash"])
	})

	t.Run("rejects a mismatched dimension before sending", func(t *testing.T) {
		s := testStore(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("unexpected request")
		}))
		s.dimension = 3
		err := s.Upsert(ctx, []vectorstore.Entry{{Vector: []float32{1}}})
		require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})

	t.Run("empty upsert is a no-op", func(t *testing.T) {
		s := testStore(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("unexpected request")
		}))
		require.NoError(t, s.Upsert(ctx, nil))
	})
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("parses hits and re-sorts equal scores", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /collections/docs/points/search", func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			assert.Equal(t, float64(3), body["limit"])
			assert.Equal(t, true, body["with_payload"])
			fmt.Fprintf(w, `{"result":[
				{"id":%q,"score":0.9,"payload":{"document":"visa.txt","ordinal":1,"content":"later twin"}},
				{"id":%q,"score":0.9,"payload":{"document":"fees.txt","ordinal":0,"content":"earlier twin"}},
				{"id":%q,"score":0.95,"payload":{"document":"fees.txt","ordinal":3,"content":"best"}}
			]}`,
				vectorstore.EntryID("visa.txt", 1),
				vectorstore.EntryID("fees.txt", 0),
				vectorstore.EntryID("fees.txt", 3))
		})

		s := testStore(t, mux)
		hits, err := s.Search(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "best", hits[0].Content)
		assert.Equal(t, "earlier twin", hits[1].Content)
		assert.Equal(t, "later twin", hits[2].Content)
		assert.Equal(t, vectorstore.EntryID("fees.txt", 3), hits[0].ID)
		assert.Equal(t, 3, hits[0].Ordinal)
	})

	t.Run("zero k searches nothing", func(t *testing.T) {
		s := testStore(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("unexpected request")
		}))
		hits, err := s.Search(ctx, []float32{1, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("delete document filters by document", func(t *testing.T) {
		var got map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("POST /collections/docs/points/delete", func(w http.ResponseWriter, r *http.Request) {
			got = decodeBody(t, r)
			fmt.Fprint(w, `{"result":{"status":"completed"}}`)
		})

		s := testStore(t, mux)
		require.NoError(t, s.DeleteDocument(ctx, "fees.txt"))

		filter := got["filter"].(map[string]any)
		must := filter["must"].([]any)
		require.Len(t, must, 1)
		cond := must[0].(map[string]any)
		assert.Equal(t, "document", cond["key"])
		assert.Equal(t, "fees.txt", cond["match"].(map[string]any)["value"])
	})

	t.Run("prune adds an ordinal range", func(t *testing.T) {
		var got map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("POST /collections/docs/points/delete", func(w http.ResponseWriter, r *http.Request) {
			got = decodeBody(t, r)
			fmt.Fprint(w, `{"result":{"status":"completed"}}`)
		})

		s := testStore(t, mux)
		require.NoError(t, s.Prune(ctx, "fees.txt", 4))

		must := got["filter"].(map[string]any)["must"].([]any)
		require.Len(t, must, 2)
		rng := must[1].(map[string]any)
		assert.Equal(t, "ordinal", rng["key"])
		assert.Equal(t, float64(4), rng["range"].(map[string]any)["gte"])
	})
}

func TestStoreScrollers(t *testing.T) {
	ctx := context.Background()

	t.Run("sources scrolls every page", func(t *testing.T) {
		calls := 0
		mux := http.NewServeMux()
		mux.HandleFunc("POST /collections/docs/points/scroll", func(w http.ResponseWriter, r *http.Request) {
			calls++
			body := decodeBody(t, r)
			if calls == 1 {
				assert.Nil(t, body["offset"])
				fmt.Fprint(w, `{"result":{"points":[
					{"payload":{"document":"visa.txt"}},
					{"payload":{"document":"fees.txt"}}
				],"next_page_offset":"page-2"}}`)
				return
			}
			assert.Equal(t, "page-2", body["offset"])
			fmt.Fprint(w, `{"result":{"points":[
				{"payload":{"document":"fees.txt"}}
			],"next_page_offset":null}}`)
		})

		s := testStore(t, mux)
		sources, err := s.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"fees.txt", "visa.txt"}, sources)
		assert.Equal(t, 2, calls)
	})

	t.Run("document hash reads one filtered point", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /collections/docs/points/scroll", func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			assert.Equal(t, float64(1), body["limit"])
			assert.NotNil(t, body["filter"])
			fmt.Fprint(w, `{"result":{"points":[{"payload":{"doc_hash":"abc123"}}]}}`)
		})

		s := testStore(t, mux)
		hash, err := s.DocumentHash(ctx, "fees.txt")
		require.NoError(t, err)
		assert.Equal(t, "abc123", hash)
	})

	t.Run("hash of an unknown document is empty", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /collections/docs/points/scroll", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"result":{"points":[]}}`)
		})

		s := testStore(t, mux)
		hash, err := s.DocumentHash(ctx, "absent.txt")
		require.NoError(t, err)
		assert.Empty(t, hash)
	})

	t.Run("count asks for the exact total", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /collections/docs/points/count", func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			assert.Equal(t, true, body["exact"])
			fmt.Fprint(w, `{"result":{"count":42}}`)
		})

		s := testStore(t, mux)
		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, count)
	})
}

func TestStoreClear(t *testing.T) {
	t.Run("drops and recreates the collection", func(t *testing.T) {
		deleted, recreated := false, false
		mux := http.NewServeMux()
		mux.HandleFunc("DELETE /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			deleted = true
			fmt.Fprint(w, `{"result":true}`)
		})
		mux.HandleFunc("GET /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		mux.HandleFunc("PUT /collections/docs", func(w http.ResponseWriter, r *http.Request) {
			recreated = true
			fmt.Fprint(w, `{"result":true}`)
		})

		s := testStore(t, mux)
		s.dimension = 1536
		require.NoError(t, s.Clear(context.Background()))
		assert.True(t, deleted)
		assert.True(t, recreated)
	})
}

func TestStoreUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	s := New(Config{URL: srv.URL, Collection: "docs"})

	_, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.ErrorIs(t, err, vectorstore.ErrIndexUnavailable)

	_, err = s.Count(context.Background())
	require.ErrorIs(t, err, vectorstore.ErrIndexUnavailable)
}
