package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unihelp/cli/internal/openai"
	"github.com/unihelp/cli/internal/rag"
)

// ChatPort is the TUI-facing subset of the answer engine.
type ChatPort interface {
	Chat(ctx context.Context, question string, history []openai.Message) (*rag.Answer, error)
}

// exchange is one question and its answer in the transcript.
type exchange struct {
	question string
	answer   string
	sources  []string
	pending  bool
}

type answerDoneMsg struct {
	answer *rag.Answer
	err    error
}

type chatView struct {
	ctx       context.Context
	port      ChatPort
	input     textinput.Model
	viewport  viewport.Model
	exchanges []exchange
	history   []openai.Message
	status    string
	busy      bool
}

func newChatView(ctx context.Context, port ChatPort) chatView {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return chatView{
		ctx:      ctx,
		port:     port,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Ready.",
	}
}

func (v chatView) setSize(width, height int) chatView {
	_, ch := chatBoxStyle.GetFrameSize()
	_, ih := inputBoxStyle.GetFrameSize()
	vh := height - ih - 1 // input box plus its prompt line
	if vh < 3 {
		vh = 3
	}
	v.viewport.Width = max(20, width)
	v.viewport.Height = max(3, vh-ch)
	v.input.Width = max(20, width-8)
	v.viewport.SetContent(v.renderTranscript())
	return v
}

func (v chatView) update(msg tea.Msg) (chatView, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			question := strings.TrimSpace(v.input.Value())
			if question == "" || v.busy {
				return v, nil
			}
			v.input.SetValue("")
			v.busy = true
			v.status = "Thinking..."
			v.exchanges = append(v.exchanges, exchange{question: question, pending: true})
			v.viewport.SetContent(v.renderTranscript())
			v.viewport.GotoBottom()
			return v, v.ask(question)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			v.viewport, cmd = v.viewport.Update(msg)
			return v, cmd
		}

	case answerDoneMsg:
		v.busy = false
		if msg.err != nil {
			// Drop the pending bubble, the status line carries the error.
			v.exchanges = v.exchanges[:len(v.exchanges)-1]
			v.status = "Error: " + msg.err.Error()
			v.viewport.SetContent(v.renderTranscript())
			return v, nil
		}
		last := len(v.exchanges) - 1
		question := v.exchanges[last].question
		v.exchanges[last].answer = msg.answer.Text
		v.exchanges[last].sources = msg.answer.Sources
		v.exchanges[last].pending = false
		v.history = append(v.history,
			openai.Message{Role: "user", Content: question},
			openai.Message{Role: "assistant", Content: msg.answer.Text},
		)
		if msg.answer.Grounded {
			v.status = fmt.Sprintf("Answered from %d source(s).", len(msg.answer.Sources))
		} else {
			v.status = "Nothing relevant indexed for that question."
		}
		v.viewport.SetContent(v.renderTranscript())
		v.viewport.GotoBottom()
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// ask runs the engine off the update loop and reports back as a message.
func (v chatView) ask(question string) tea.Cmd {
	history := append([]openai.Message(nil), v.history...)
	return func() tea.Msg {
		answer, err := v.port.Chat(v.ctx, question, history)
		return answerDoneMsg{answer: answer, err: err}
	}
}

func (v chatView) view() string {
	transcript := chatBoxStyle.Render(v.viewport.View())
	input := inputBoxStyle.Render(v.input.View())
	return transcript + "\n" + input
}

func (v chatView) renderTranscript() string {
	if len(v.exchanges) == 0 {
		return "Ask a question about the indexed documents."
	}
	width := max(20, v.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, ex := range v.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: ") + wrap.Render(ex.question))
		b.WriteString("\n")
		if ex.pending {
			b.WriteString(pendingStyle.Render("Thinking..."))
			continue
		}
		b.WriteString(wrap.Render(ex.answer))
		if len(ex.sources) > 0 {
			b.WriteString("\n" + sourceStyle.Render("Sources: "+strings.Join(ex.sources, ", ")))
		}
	}
	return b.String()
}
