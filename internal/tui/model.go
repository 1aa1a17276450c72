package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type view int

const (
	viewChat view = iota
	viewDocuments
)

// Model is the Bubble Tea model for the application: a chat view over the
// indexed documents and a view of the index itself, switched with tab.
type Model struct {
	chat      chatView
	documents documentsView
	active    view
	summary   string
	ready     bool
}

// New creates the application model.
func New(ctx context.Context, chat ChatPort, index IndexPort, ingest IngestPort, docsDir, summary string) Model {
	return Model{
		chat:      newChatView(ctx, chat),
		documents: newDocumentsView(ctx, index, ingest, docsDir),
		summary:   summary,
	}
}

// Init starts the input cursor blink and the first index load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.documents.load())
}

// Update handles global keys and window sizing, delivers completion
// messages to the view that asked for them, and routes everything else to
// the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		body := msg.Height - 3 // header, summary, status
		m.chat = m.chat.setSize(msg.Width, body)
		m.documents = m.documents.setSize(msg.Width, body)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "tab" {
			if m.active == viewChat {
				m.active = viewDocuments
				return m, m.documents.load()
			}
			m.active = viewChat
			return m, nil
		}

	case answerDoneMsg:
		var cmd tea.Cmd
		m.chat, cmd = m.chat.update(msg)
		return m, cmd

	case docsLoadedMsg, ingestDoneMsg, docDeletedMsg:
		var cmd tea.Cmd
		m.documents, cmd = m.documents.update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.active == viewChat {
		m.chat, cmd = m.chat.update(msg)
	} else {
		m.documents, cmd = m.documents.update(msg)
	}
	return m, cmd
}

// View renders the header, the active view and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("UniHelp") + "  " + m.tabs()
	summary := summaryStyle.Render(m.summary)

	var body, status, help string
	if m.active == viewChat {
		body = m.chat.view()
		status = m.chat.status
		help = "enter: send | tab: documents | ctrl+c: quit"
	} else {
		body = m.documents.view()
		status = m.documents.status
		help = "i: reindex | d: delete | r: reload | tab: chat | ctrl+c: quit"
	}
	statusLine := statusStyle.Render(status) + "  " + helpStyle.Render(help)
	return header + "\n" + summary + "\n" + body + "\n" + statusLine
}

func (m Model) tabs() string {
	chat := tabStyle.Render("Chat")
	docs := tabStyle.Render("Documents")
	if m.active == viewChat {
		chat = activeTabStyle.Render("Chat")
	} else {
		docs = activeTabStyle.Render("Documents")
	}
	return chat + " " + docs
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	questionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	activeTabStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Underline(true)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)
