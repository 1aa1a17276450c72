package documents

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrInvalidChunkConfig indicates chunking parameters that cannot produce
// a terminating sequence of chunks.
var ErrInvalidChunkConfig = errors.New("invalid chunking configuration")

// Default chunking parameters, in whitespace-delimited tokens.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// Chunk is one contiguous span of a document's text. Text is a byte-exact
// substring of the input, so inner whitespace survives untouched.
type Chunk struct {
	Ordinal int
	Text    string
	Tokens  int
}

// Chunker splits normalized text into fixed-size overlapping chunks.
// Splitting is deterministic: the same text always yields the same chunks.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the parameters and returns a chunker. Size is the
// chunk length in tokens, overlap the number of tokens consecutive chunks
// share. Overlap must be smaller than size or the split would never advance.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunkConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunkConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split breaks text into chunks of up to size tokens, each sharing overlap
// tokens with its predecessor. Every token lands in at least one chunk, and
// the final chunk simply ends at the last token. Empty or whitespace-only
// text yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []Chunk
	for start := 0; ; {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    text[tokens[start].start:tokens[end-1].end],
			Tokens:  end - start,
		})
		if end == len(tokens) {
			return chunks
		}
		start = end - c.overlap
	}
}

// span marks the byte range of one token within the source text.
type span struct {
	start int
	end   int
}

// tokenize locates maximal runs of non-whitespace characters.
func tokenize(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}
