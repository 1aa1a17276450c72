package rag

import (
	"fmt"
	"strings"

	"github.com/unihelp/cli/internal/vectorstore"
)

// ContextBuilder formats retrieved chunks into the context block of a
// prompt, capped in size so an oversized retrieval cannot blow the prompt.
type ContextBuilder struct {
	maxChars int
}

// NewContextBuilder creates a new context builder.
func NewContextBuilder(maxChars int) *ContextBuilder {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &ContextBuilder{maxChars: maxChars}
}

// BuildContext renders hits as numbered, source-annotated blocks in rank
// order. Hits that would push the context past the cap are dropped, except
// that the best hit is always kept. The returned slice holds exactly the
// hits that made it into the context, so citations can be derived from it.
func (cb *ContextBuilder) BuildContext(hits []vectorstore.Hit) (string, []vectorstore.Hit) {
	var b strings.Builder
	var included []vectorstore.Hit
	for _, h := range hits {
		block := fmt.Sprintf("[Document %d - %s]\n%s", len(included)+1, h.Document, h.Content)
		if len(included) > 0 {
			if b.Len()+len(block)+2 > cb.maxChars {
				break
			}
			b.WriteString("\n\n")
		}
		b.WriteString(block)
		included = append(included, h)
	}
	return b.String(), included
}

// BuildPrompt assembles the final user message from the context block and
// the question.
func (cb *ContextBuilder) BuildPrompt(contextText, question string) string {
	return fmt.Sprintf("CONTEXT:\n%s\n\nQUESTION: %s", contextText, question)
}

// Sources lists the distinct documents behind hits, in the order they are
// first cited.
func Sources(hits []vectorstore.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	var sources []string
	for _, h := range hits {
		if _, ok := seen[h.Document]; ok {
			continue
		}
		seen[h.Document] = struct{}{}
		sources = append(sources, h.Document)
	}
	return sources
}
