// Package export renders boards and notes to PDF and DOCX.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts "pdf" or "docx" in any case.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Board is a board with its cards, ready for rendering.
type Board struct {
	Name       string
	Owner      string
	ExportedAt time.Time
	Cards      []Card
}

type Card struct {
	Title       string
	Summary     string
	Tags        []string
	Progress    int
	Complete    bool
	Items       []Item
	Attachments []string
}

// Item is one checklist entry of a card.
type Item struct {
	Text string
	Done bool
}

// Note is a user note. Content must already be sanitized HTML.
type Note struct {
	Title      string
	Content    string
	FontSize   int
	Folder     string
	UpdatedAt  time.Time
	ExportedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
