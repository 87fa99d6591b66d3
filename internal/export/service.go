package export

import (
	"context"
	"fmt"
	"time"
)

// converter turns a rendered HTML page into the output format.
type converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides board and note export.
type Service struct {
	pdf  converter
	docx converter
	now  func() time.Time
}

// NewService creates an export service backed by headless Chrome and pandoc.
func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX, now: time.Now}
}

// ExportBoard renders a board with its cards.
func (s *Service) ExportBoard(ctx context.Context, board Board, format Format) (*Result, error) {
	if board.ExportedAt.IsZero() {
		board.ExportedAt = s.now()
	}
	html, err := RenderBoardHTML(board)
	if err != nil {
		return nil, fmt.Errorf("render board: %w", err)
	}
	return s.convert(ctx, html, board.Name, format)
}

// ExportNote renders a single user note.
func (s *Service) ExportNote(ctx context.Context, note Note, format Format) (*Result, error) {
	if note.ExportedAt.IsZero() {
		note.ExportedAt = s.now()
	}
	html, err := RenderNoteHTML(note)
	if err != nil {
		return nil, fmt.Errorf("render note: %w", err)
	}
	return s.convert(ctx, html, note.Title, format)
}

func (s *Service) convert(ctx context.Context, html, title string, format Format) (*Result, error) {
	switch format {
	case FormatPDF:
		return s.pdf(ctx, html, title)
	case FormatDOCX:
		return s.docx(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
