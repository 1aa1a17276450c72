package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unihelp/cli/internal/vectorstore"
)

// Store is a minimal REST client to Qdrant. It assumes cosine distance and
// creates the collection on Init if missing.
type Store struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// Config holds the connection settings for a Qdrant instance.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

var _ vectorstore.Store = (*Store)(nil)

// New creates a store for the configured collection.
func New(cfg Config) *Store {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "unihelp_docs"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Store{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Init creates the collection if it does not exist and verifies the vector
// size of an existing one.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	found, err := s.getJSON(ctx, s.collectionURL(), &info)
	if err != nil {
		return err
	}
	if found {
		if size := info.Result.Config.Params.Vectors.Size; size != dimension {
			return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, embedder produces %d",
				vectorstore.ErrDimensionMismatch, s.collection, size, dimension)
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.putJSON(ctx, s.collectionURL(), body)
}

// Upsert writes points, overwriting any point with the same ID.
func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		if s.dimension != 0 && len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, collection expects %d",
				vectorstore.ErrDimensionMismatch, e.ID, len(e.Vector), s.dimension)
		}
		points[i] = map[string]any{
			"id":     e.ID.String(),
			"vector": e.Vector,
			"payload": map[string]any{
				"document": e.Document,
				"ordinal":  e.Ordinal,
				"content":  e.Content,
				"doc_hash": e.DocHash,
				"title":    e.Title,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, s.collectionURL()+"/points?wait=true", body)
}

// Search returns up to k points ranked by cosine similarity. Qdrant orders
// equal scores arbitrarily, so ties are re-sorted by document and ordinal
// for a deterministic ranking.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := vectorstore.Hit{Score: r.Score}
		if id, ok := r.ID.(string); ok {
			if parsed, err := uuid.Parse(id); err == nil {
				hit.ID = parsed
			}
		}
		if v, ok := r.Payload["document"].(string); ok {
			hit.Document = v
		}
		if v, ok := r.Payload["ordinal"].(float64); ok {
			hit.Ordinal = int(v)
		}
		if v, ok := r.Payload["content"].(string); ok {
			hit.Content = v
		}
		if v, ok := r.Payload["doc_hash"].(string); ok {
			hit.DocHash = v
		}
		if v, ok := r.Payload["title"].(string); ok {
			hit.Title = v
		}
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Document != hits[j].Document {
			return hits[i].Document < hits[j].Document
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	return hits, nil
}

// DeleteDocument removes every point of one document.
func (s *Store) DeleteDocument(ctx context.Context, document string) error {
	body := map[string]any{"filter": documentFilter(document)}
	return s.postJSON(ctx, s.collectionURL()+"/points/delete?wait=true", body, nil)
}

// Prune removes points of a document whose ordinal is >= keep.
func (s *Store) Prune(ctx context.Context, document string, keep int) error {
	filter := documentFilter(document)
	filter["must"] = append(filter["must"].([]map[string]any), map[string]any{
		"key":   "ordinal",
		"range": map[string]any{"gte": keep},
	})
	body := map[string]any{"filter": filter}
	return s.postJSON(ctx, s.collectionURL()+"/points/delete?wait=true", body, nil)
}

// Sources lists the distinct documents in the collection by scrolling all
// points with only the document field of the payload.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var offset any
	for {
		body := map[string]any{
			"limit":        256,
			"with_payload": []string{"document"},
		}
		if offset != nil {
			body["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.postJSON(ctx, s.collectionURL()+"/points/scroll", body, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			if v, ok := p.Payload["document"].(string); ok {
				seen[v] = struct{}{}
			}
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	sources := make([]string, 0, len(seen))
	for doc := range seen {
		sources = append(sources, doc)
	}
	sort.Strings(sources)
	return sources, nil
}

// DocumentHash returns the hash recorded for a document, or "" when the
// document is not indexed.
func (s *Store) DocumentHash(ctx context.Context, document string) (string, error) {
	body := map[string]any{
		"filter":       documentFilter(document),
		"limit":        1,
		"with_payload": []string{"doc_hash"},
	}
	var resp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, s.collectionURL()+"/points/scroll", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Result.Points) == 0 {
		return "", nil
	}
	if v, ok := resp.Result.Points[0].Payload["doc_hash"].(string); ok {
		return v, nil
	}
	return "", nil
}

// Count returns the exact number of points in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection and recreates it when the dimension is known.
func (s *Store) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.collectionURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrIndexUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: DELETE %s failed: %s", vectorstore.ErrIndexUnavailable, s.collection, resp.Status)
	}
	if s.dimension > 0 {
		return s.Init(ctx, s.dimension)
	}
	return nil
}

func (s *Store) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func documentFilter(document string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "document", "match": map[string]any{"value": document}},
		},
	}
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

func (s *Store) putJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: PUT %s failed: %s", vectorstore.ErrIndexUnavailable, url, resp.Status)
	}
	return nil
}

func (s *Store) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: POST %s failed: %s", vectorstore.ErrIndexUnavailable, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, url string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", vectorstore.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: GET %s failed: %s", vectorstore.ErrIndexUnavailable, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return true, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return true, nil
}
