package documents

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/unihelp/cli/internal/vectorstore"
)

// Embedder is the slice of the embeddings client the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the pieces a pipeline is assembled from.
type Config struct {
	Extractor *Extractor
	Chunker   *Chunker
	Embedder  Embedder
	Store     vectorstore.Store
	// Workers bounds how many chunks embed concurrently. Clamped to [1, 8].
	Workers int
	Logger  *log.Logger
}

// Pipeline ingests document files into the vector store: extract, chunk,
// embed, index. Running it twice over unchanged files writes nothing new.
type Pipeline struct {
	extractor *Extractor
	chunker   *Chunker
	embedder  Embedder
	store     vectorstore.Store
	workers   int
	logger    *log.Logger
}

// Summary reports the outcome of one ingestion run.
type Summary struct {
	Indexed int // documents written or rewritten
	Skipped int // documents already up to date
	Failed  int // documents with errors, including partially embedded ones
	Removed int // indexed documents whose source file is gone
	Chunks  int // chunks written across this run
}

// Result reports what ingesting one file did.
type Result struct {
	Document string
	Skipped  bool
	Chunks   int // chunks written
	Failures int // chunks that could not be embedded
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > 8 {
		workers = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[INGEST] ", log.LstdFlags)
	}
	return &Pipeline{
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		workers:   workers,
		logger:    logger,
	}
}

// IngestDirectory synchronizes the index with the supported files of one
// directory: new and changed files are (re)indexed, unchanged files are
// skipped, and indexed documents whose file is gone are removed. With force
// set, every file is re-embedded regardless of recorded hashes.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, force bool) (*Summary, error) {
	files, err := p.listSupported(dir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	present := make(map[string]struct{}, len(files))
	for _, path := range files {
		present[filepath.Base(path)] = struct{}{}
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := p.IngestFile(ctx, path, force)
		switch {
		case err != nil:
			p.logger.Printf("failed to ingest %s: %v", filepath.Base(path), err)
			summary.Failed++
		case res.Skipped:
			summary.Skipped++
		case res.Failures > 0:
			summary.Failed++
			summary.Chunks += res.Chunks
		default:
			summary.Indexed++
			summary.Chunks += res.Chunks
		}
	}

	sources, err := p.store.Sources(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list indexed sources: %w", err)
	}
	for _, src := range sources {
		if _, ok := present[src]; ok {
			continue
		}
		if err := p.store.DeleteDocument(ctx, src); err != nil {
			return summary, fmt.Errorf("failed to remove %s: %w", src, err)
		}
		p.logger.Printf("removed %s, source file is gone", src)
		summary.Removed++
	}

	return summary, nil
}

// IngestFile indexes one file. Unchanged files are skipped unless force is
// set. Chunks that fail to embed after retries are skipped and counted in
// the result; the document is then left unhashed so the next run retries it.
func (p *Pipeline) IngestFile(ctx context.Context, path string, force bool) (*Result, error) {
	doc := filepath.Base(path)
	res := &Result{Document: doc}

	hash, err := fileHash(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	if !force {
		existing, err := p.store.DocumentHash(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to check index: %w", err)
		}
		if existing != "" && existing == hash {
			res.Skipped = true
			return res, nil
		}
	}

	ext, err := p.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	if ext.Partial {
		p.logger.Printf("%s: some pages could not be read, indexing the rest", doc)
	}

	chunks := p.chunker.Split(ext.Text)
	if len(chunks) == 0 {
		// Nothing to index; drop any previous entries so the index
		// converges with the source.
		if err := p.store.DeleteDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to remove empty document: %w", err)
		}
		return res, nil
	}

	entries, failures := p.embedChunks(ctx, doc, hash, chunks)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Failures = failures
	if failures > 0 {
		// Without a recorded hash the next run will not skip this file.
		for i := range entries {
			entries[i].DocHash = ""
		}
		p.logger.Printf("%s: %d of %d chunks failed to embed", doc, failures, len(chunks))
	}

	if len(entries) > 0 {
		if err := p.store.Upsert(ctx, entries); err != nil {
			return nil, fmt.Errorf("failed to index %s: %w", doc, err)
		}
	}
	res.Chunks = len(entries)

	// A shorter re-ingestion must not leave stale tail chunks behind.
	if err := p.store.Prune(ctx, doc, len(chunks)); err != nil {
		return nil, fmt.Errorf("failed to prune %s: %w", doc, err)
	}
	return res, nil
}

// embedChunks embeds chunks through a bounded worker pool. Ordinals are
// fixed before any work starts, so concurrency cannot reorder entries.
func (p *Pipeline) embedChunks(ctx context.Context, doc, hash string, chunks []Chunk) ([]vectorstore.Entry, int) {
	title := documentTitle(doc)
	entries := make([]vectorstore.Entry, len(chunks))
	ok := make([]bool, len(chunks))

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, chunk Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			vector, err := p.embedder.Embed(ctx, chunk.Text)
			if err != nil {
				p.logger.Printf("%s: chunk %d: %v", doc, chunk.Ordinal, err)
				return
			}
			entries[i] = vectorstore.Entry{
				ID:       vectorstore.EntryID(doc, chunk.Ordinal),
				Vector:   vector,
				Document: doc,
				Ordinal:  chunk.Ordinal,
				Content:  chunk.Text,
				DocHash:  hash,
				Title:    title,
			}
			ok[i] = true
		}(i, chunks[i])
	}
	wg.Wait()

	var kept []vectorstore.Entry
	failures := 0
	for i, succeeded := range ok {
		if succeeded {
			kept = append(kept, entries[i])
		} else {
			failures++
		}
	}
	return kept, failures
}

// Supported reports whether the pipeline can ingest a file, by extension.
func (p *Pipeline) Supported(path string) bool {
	return p.extractor.Supported(path)
}

// Remove drops a document from the index.
func (p *Pipeline) Remove(ctx context.Context, document string) error {
	if err := p.store.DeleteDocument(ctx, document); err != nil {
		return fmt.Errorf("failed to remove %s: %w", document, err)
	}
	return nil
}

// listSupported returns the supported files of a flat directory, sorted by
// name. Hidden files and subdirectories are ignored.
func (p *Pipeline) listSupported(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		if !p.extractor.Supported(de.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, de.Name()))
	}
	return files, nil
}

func documentTitle(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
