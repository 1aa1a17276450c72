package documents

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/gen2brain/go-fitz"
)

// ErrUnsupportedFormat indicates a file whose extension no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extraction is the normalized text pulled out of one source file.
type Extraction struct {
	Text string
	// Partial is set when some pages could not be read and were skipped.
	Partial bool
}

// Extractor turns a source file into normalized plain text. The same file
// content always yields the same text.
type Extractor struct{}

// NewExtractor creates a new extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether the file's extension has an extractor.
func (e *Extractor) Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

// Extract reads the file and returns its normalized text. Unsupported
// extensions fail with ErrUnsupportedFormat.
func (e *Extractor) Extract(path string) (*Extraction, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return e.extractPlain(path)
	case ".pdf":
		return e.extractPDF(path)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}

func (e *Extractor) extractPlain(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return &Extraction{Text: Normalize(string(data))}, nil
}

func (e *Extractor) extractPDF(path string) (*Extraction, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textParts []string
	partial := false

	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			partial = true
			continue
		}
		if strings.TrimSpace(text) != "" {
			textParts = append(textParts, text)
		}
	}

	return &Extraction{
		Text:    Normalize(strings.Join(textParts, "\n\n")),
		Partial: partial,
	}, nil
}

var (
	spaceRuns      = regexp.MustCompile(`[ \t]+`)
	newlineSpacing = regexp.MustCompile(` *\n *`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans raw extracted text into the canonical form the chunker
// operates on: valid UTF-8, LF line endings, no control characters, single
// spaces within lines and at most one blank line between paragraphs.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineSpacing.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
