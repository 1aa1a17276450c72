package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Entry is the durable unit held by a vector store: one embedded chunk
// together with the payload needed to rebuild context and cite sources.
type Entry struct {
	ID       uuid.UUID
	Vector   []float32
	Document string // source document identity (base filename)
	Ordinal  int    // chunk position within the document
	Content  string
	DocHash  string // SHA-256 of the source file, shared by all entries of a document
	Title    string
}

// Hit is one search result: an entry plus its cosine similarity to the query.
type Hit struct {
	Entry
	Score float64
}

// Store is the contract the pipeline and the retrieval engine require of a
// vector index. Implementations must tolerate concurrent Upsert calls.
type Store interface {
	// Init ensures the backing collection exists and records the embedding
	// dimensionality all later calls are checked against.
	Init(ctx context.Context, dimension int) error

	// Upsert writes entries, overwriting any existing entry with the same ID.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to k entries ranked by similarity descending.
	// Equal scores rank deterministically: by insertion order where the
	// backend tracks it, by document and ordinal otherwise.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// DeleteDocument removes every entry belonging to one document.
	DeleteDocument(ctx context.Context, document string) error

	// Prune removes entries of a document whose ordinal is >= keep. Used when
	// re-ingestion produces fewer chunks than the previous run.
	Prune(ctx context.Context, document string, keep int) error

	// Sources lists the distinct document identities currently indexed.
	Sources(ctx context.Context) ([]string, error)

	// DocumentHash returns the content hash recorded for a document at
	// ingestion time, or "" when the document is not indexed.
	DocumentHash(ctx context.Context, document string) (string, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error
}

// EntryID derives the stable point ID for a chunk. The same
// (document, ordinal) pair always maps to the same ID, so re-ingesting a
// document overwrites its entries instead of duplicating them.
func EntryID(document string, ordinal int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("unihelp://%s/%d", document, ordinal)))
}
