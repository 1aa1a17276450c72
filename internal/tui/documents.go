package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unihelp/cli/internal/documents"
)

// IndexPort is the TUI-facing subset of the vector store.
type IndexPort interface {
	Sources(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	DeleteDocument(ctx context.Context, document string) error
}

// IngestPort re-synchronizes the index with the documents directory.
type IngestPort interface {
	IngestDirectory(ctx context.Context, dir string, force bool) (*documents.Summary, error)
}

type docsLoadedMsg struct {
	sources []string
	chunks  int
	err     error
}

type ingestDoneMsg struct {
	summary *documents.Summary
	err     error
}

type docDeletedMsg struct {
	document string
	err      error
}

type documentsView struct {
	ctx     context.Context
	index   IndexPort
	ingest  IngestPort
	docsDir string

	sources []string
	chunks  int
	cursor  int
	height  int
	status  string
	busy    bool
}

func newDocumentsView(ctx context.Context, index IndexPort, ingest IngestPort, docsDir string) documentsView {
	return documentsView{
		ctx:     ctx,
		index:   index,
		ingest:  ingest,
		docsDir: docsDir,
		height:  10,
		status:  "Loading...",
	}
}

func (v documentsView) setSize(width, height int) documentsView {
	_, ch := chatBoxStyle.GetFrameSize()
	v.height = max(3, height-ch-1)
	return v
}

func (v documentsView) update(msg tea.Msg) (documentsView, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up":
			if v.cursor > 0 {
				v.cursor--
			}
		case "down":
			if v.cursor < len(v.sources)-1 {
				v.cursor++
			}
		case "r":
			return v, v.load()
		case "i":
			if v.busy {
				return v, nil
			}
			v.busy = true
			v.status = "Reindexing " + v.docsDir + "..."
			return v, v.reindex()
		case "d":
			if v.busy || len(v.sources) == 0 {
				return v, nil
			}
			return v, v.remove(v.sources[v.cursor])
		}

	case docsLoadedMsg:
		if msg.err != nil {
			v.status = "Error: " + msg.err.Error()
			return v, nil
		}
		v.sources = msg.sources
		v.chunks = msg.chunks
		if v.cursor >= len(v.sources) {
			v.cursor = len(v.sources) - 1
		}
		if v.cursor < 0 {
			v.cursor = 0
		}
		v.status = fmt.Sprintf("%d document(s), %d chunk(s) indexed.", len(v.sources), v.chunks)
		return v, nil

	case ingestDoneMsg:
		v.busy = false
		if msg.err != nil {
			v.status = "Error: " + msg.err.Error()
			return v, nil
		}
		s := msg.summary
		v.status = fmt.Sprintf("Indexed %d, skipped %d, failed %d, removed %d.", s.Indexed, s.Skipped, s.Failed, s.Removed)
		return v, v.load()

	case docDeletedMsg:
		if msg.err != nil {
			v.status = "Error: " + msg.err.Error()
			return v, nil
		}
		v.status = "Removed " + msg.document + " from the index."
		return v, v.load()
	}

	return v, nil
}

func (v documentsView) load() tea.Cmd {
	return func() tea.Msg {
		sources, err := v.index.Sources(v.ctx)
		if err != nil {
			return docsLoadedMsg{err: err}
		}
		chunks, err := v.index.Count(v.ctx)
		if err != nil {
			return docsLoadedMsg{err: err}
		}
		return docsLoadedMsg{sources: sources, chunks: chunks}
	}
}

func (v documentsView) reindex() tea.Cmd {
	return func() tea.Msg {
		summary, err := v.ingest.IngestDirectory(v.ctx, v.docsDir, false)
		return ingestDoneMsg{summary: summary, err: err}
	}
}

func (v documentsView) remove(document string) tea.Cmd {
	return func() tea.Msg {
		err := v.index.DeleteDocument(v.ctx, document)
		return docDeletedMsg{document: document, err: err}
	}
}

func (v documentsView) view() string {
	return chatBoxStyle.Render(v.renderList())
}

// renderList shows a cursor-centered window of the indexed documents.
func (v documentsView) renderList() string {
	if len(v.sources) == 0 {
		return "No documents indexed. Press i to index " + v.docsDir + "."
	}
	start, end := listWindow(v.cursor, len(v.sources), v.height)

	var b strings.Builder
	for i := start; i < end; i++ {
		if i > start {
			b.WriteString("\n")
		}
		line := "  " + v.sources[i]
		if i == v.cursor {
			line = selectedStyle.Render("> " + v.sources[i])
		}
		b.WriteString(line)
	}
	return b.String()
}

// listWindow clamps a window of size lines around the cursor to [0, total).
func listWindow(cursor, total, size int) (start, end int) {
	if size >= total {
		return 0, total
	}
	start = cursor - size/2
	if start < 0 {
		start = 0
	}
	if start > total-size {
		start = total - size
	}
	return start, start + size
}
