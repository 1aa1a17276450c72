package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/unihelp/cli/internal/openai"
)

// NoAnswerText is the fixed reply when retrieval finds nothing relevant
// enough to ground an answer on. It is returned without calling the
// generator at all.
const NoAnswerText = "No relevant information found in the indexed documents."

const answerSystemPrompt = `You are UniHelp, an assistant for university administrative questions.
Answer using only the information in the provided context. If the context
does not contain the answer, say that you do not have that information.
Be precise and concise, and do not invent facts, dates, or amounts.`

const chatSystemPrompt = `You are UniHelp, a conversational assistant for university administrative
questions. Ground every reply in the provided context and the conversation
so far. If the context does not contain the answer, say that you do not have
that information rather than guessing.`

// Generator is the slice of the chat client the engine needs.
type Generator interface {
	Chat(ctx context.Context, messages []openai.Message, opts openai.ChatOptions) (string, error)
}

// Answer is a grounded reply with the documents it drew from.
type Answer struct {
	Text string
	// Sources lists the documents whose chunks were placed in the prompt,
	// in first-cited order. Never derived from the model's own output.
	Sources []string
	// Grounded is false when nothing relevant was found and Text is the
	// fixed fallback.
	Grounded bool
}

// Options tune how answers are generated.
type Options struct {
	AnswerTemperature float64
	AnswerMaxTokens   int
	ChatTemperature   float64
	ChatMaxTokens     int
	// MaxHistory bounds how many prior turns a chat request carries.
	MaxHistory int
}

// Engine answers questions over the indexed documents: embed the question,
// search, assemble a cited context, generate. When retrieval comes back
// empty the engine answers with NoAnswerText and never touches the
// generator.
type Engine struct {
	retriever *Retriever
	builder   *ContextBuilder
	generator Generator
	opts      Options
}

// NewEngine creates an engine. Zero options fall back to moderate defaults.
func NewEngine(retriever *Retriever, builder *ContextBuilder, generator Generator, opts Options) *Engine {
	if opts.AnswerTemperature <= 0 {
		opts.AnswerTemperature = 0.3
	}
	if opts.AnswerMaxTokens <= 0 {
		opts.AnswerMaxTokens = 800
	}
	if opts.ChatTemperature <= 0 {
		opts.ChatTemperature = 0.4
	}
	if opts.ChatMaxTokens <= 0 {
		opts.ChatMaxTokens = 800
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 6
	}
	return &Engine{
		retriever: retriever,
		builder:   builder,
		generator: generator,
		opts:      opts,
	}
}

// Answer runs one standalone question through the full pipeline.
func (e *Engine) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", openai.ErrInvalidInput)
	}

	hits, err := e.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &Answer{Text: NoAnswerText}, nil
	}

	contextText, included := e.builder.BuildContext(hits)
	reply, err := e.generator.Chat(ctx, []openai.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: e.builder.BuildPrompt(contextText, question)},
	}, openai.ChatOptions{
		Temperature: e.opts.AnswerTemperature,
		MaxTokens:   e.opts.AnswerMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	return &Answer{Text: reply, Sources: Sources(included), Grounded: true}, nil
}

// Chat answers the latest question of a conversation. Retrieval only sees
// the new question; the prior turns travel with the prompt, truncated to
// the configured history window.
func (e *Engine) Chat(ctx context.Context, question string, history []openai.Message) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", openai.ErrInvalidInput)
	}

	hits, err := e.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &Answer{Text: NoAnswerText}, nil
	}

	if n := len(history); n > e.opts.MaxHistory {
		history = history[n-e.opts.MaxHistory:]
	}

	contextText, included := e.builder.BuildContext(hits)
	messages := make([]openai.Message, 0, len(history)+2)
	messages = append(messages, openai.Message{Role: "system", Content: chatSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, openai.Message{Role: "user", Content: e.builder.BuildPrompt(contextText, question)})

	reply, err := e.generator.Chat(ctx, messages, openai.ChatOptions{
		Temperature: e.opts.ChatTemperature,
		MaxTokens:   e.opts.ChatMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	return &Answer{Text: reply, Sources: Sources(included), Grounded: true}, nil
}
