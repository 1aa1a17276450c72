package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/unihelp/cli/internal/openai"
	"github.com/unihelp/cli/internal/rag"
)

// RequestTypes lists the administrative request kinds the generator knows
// how to draft. Free-form types are accepted too; this list feeds help text
// and pickers.
var RequestTypes = []string{
	"enrollment certificate",
	"certificate of completion",
	"internship agreement",
	"absence justification",
	"make-up exam request",
	"complaint",
	"scholarship application",
	"administrative appointment",
	"file transfer",
	"registration certificate",
}

const systemPrompt = `You draft formal administrative emails on behalf of university students.
Write in a polite, professional register. Use the provided context for
correct office names, addresses, deadlines and procedures; never invent
them. Begin your reply with a single line "SUBJECT: <subject>", then an
empty line, then the body of the email.`

const (
	temperature = 0.5
	maxTokens   = 600
)

// Email is a drafted administrative message.
type Email struct {
	Subject string
	Body    string
	// Sources lists the documents whose content informed the draft, in
	// first-cited order. Empty when nothing relevant was indexed.
	Sources []string
}

// Generator drafts administrative emails grounded in the indexed documents.
// Unlike question answering, drafting proceeds even when retrieval finds
// nothing: a form letter needs no grounding, it just cites no sources.
type Generator struct {
	retriever *rag.Retriever
	builder   *rag.ContextBuilder
	generator rag.Generator
}

// NewGenerator creates an email generator.
func NewGenerator(retriever *rag.Retriever, builder *rag.ContextBuilder, generator rag.Generator) *Generator {
	return &Generator{
		retriever: retriever,
		builder:   builder,
		generator: generator,
	}
}

// Generate drafts an email for one request type, optionally shaped by
// free-form details from the student.
func (g *Generator) Generate(ctx context.Context, requestType, details string) (*Email, error) {
	requestType = strings.TrimSpace(requestType)
	if requestType == "" {
		return nil, fmt.Errorf("%w: empty request type", openai.ErrInvalidInput)
	}

	query := requestType
	if details = strings.TrimSpace(details); details != "" {
		query += " " + details
	}
	hits, err := g.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	contextText, included := g.builder.BuildContext(hits)

	reply, err := g.generator.Chat(ctx, []openai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildRequest(contextText, requestType, details)},
	}, openai.ChatOptions{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrGenerationUnavailable, err)
	}

	subject, body := parseReply(reply)
	return &Email{
		Subject: subject,
		Body:    body,
		Sources: rag.Sources(included),
	}, nil
}

func buildRequest(contextText, requestType, details string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONTEXT:\n%s\n\nREQUEST TYPE: %s", contextText, requestType)
	if details != "" {
		fmt.Fprintf(&b, "\nDETAILS: %s", details)
	}
	return b.String()
}

// parseReply splits the model output into subject and body. The subject is
// taken from the first line starting with "SUBJECT:" wherever it appears,
// case-insensitive; every other line belongs to the body. Without such a
// line the whole reply is the body under a neutral subject.
func parseReply(reply string) (subject, body string) {
	subject = "Administrative request"
	found := false

	var bodyLines []string
	for _, line := range strings.Split(reply, "\n") {
		if !found && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "SUBJECT:") {
			_, after, _ := strings.Cut(line, ":")
			if s := strings.TrimSpace(after); s != "" {
				subject = s
			}
			found = true
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	return subject, strings.TrimSpace(strings.Join(bodyLines, "\n"))
}
