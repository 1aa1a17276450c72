package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/unihelp/cli/internal/vectorstore"
)

// Embedder is the slice of the embeddings client the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds a question and finds the closest indexed chunks.
type Retriever struct {
	embedder  Embedder
	store     vectorstore.Store
	topK      int
	threshold float64
}

// NewRetriever creates a retriever. Hits scoring below threshold are
// dropped; a zero threshold keeps everything the store returns.
func NewRetriever(embedder Embedder, store vectorstore.Store, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	if threshold < 0 {
		threshold = 0
	}
	return &Retriever{
		embedder:  embedder,
		store:     store,
		topK:      topK,
		threshold: threshold,
	}
}

// Retrieve returns the chunks most similar to the query, best first. An
// empty result means nothing in the index is relevant enough to ground an
// answer on.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectorstore.Hit, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %v", ErrRetrievalUnavailable, err)
	}

	hits, err := r.store.Search(ctx, vector, r.topK)
	if err != nil {
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	// Low-scoring hits are noise, not grounding.
	var kept []vectorstore.Hit
	for _, h := range hits {
		if h.Score >= r.threshold {
			kept = append(kept, h)
		}
	}
	return kept, nil
}
