package app

import (
	"context"
	"net/http"
	"strings"

	"checklist/api/internal/export"
	"checklist/api/internal/search"
)

func (s *Service) Search(ctx context.Context, userID, text, resultType string, limit, offset int) (search.Response, error) {
	filter := search.ResultType(strings.TrimSpace(resultType))
	switch filter {
	case "", search.ResultCard, search.ResultNote:
	default:
		return search.Response{}, badRequest("type must be card or note")
	}
	if offset < 0 {
		offset = 0
	}
	text = strings.TrimSpace(text)
	if s.search == nil || text == "" {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: filter,
		UserID:     userID,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

func exportUnavailable() *DomainError {
	return domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available", nil)
}

func (s *Service) ExportBoard(ctx context.Context, session Session, boardID, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, exportUnavailable()
	}
	board, err := s.store.GetBoard(ctx, session.UserID, boardID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, session.UserID, boardID)
	if err != nil {
		return nil, err
	}

	doc := export.Board{
		Name:       board.Name,
		Owner:      firstNonBlank(session.Name, session.Email),
		ExportedAt: s.now(),
		Cards:      make([]export.Card, 0, len(cards)),
	}
	for _, card := range cards {
		progress, complete := Progress(card.Notes)
		item := export.Card{
			Title:    card.Title,
			Summary:  card.Summary,
			Tags:     card.Tags,
			Progress: progress,
			Complete: complete,
		}
		for _, note := range card.Notes {
			item.Items = append(item.Items, export.Item{Text: note.Text, Done: note.Done})
		}
		for _, attachment := range card.Attachments {
			item.Attachments = append(item.Attachments, attachment.Name)
		}
		doc.Cards = append(doc.Cards, item)
	}
	return s.exporter.ExportBoard(ctx, doc, format)
}

func (s *Service) ExportNote(ctx context.Context, session Session, noteID, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, exportUnavailable()
	}
	note, err := s.store.GetUserNote(ctx, session.UserID, noteID)
	if err != nil {
		return nil, err
	}
	doc := export.Note{
		Title:      note.Title,
		Content:    note.Content,
		FontSize:   note.FontSize,
		UpdatedAt:  note.UpdatedAt,
		ExportedAt: s.now(),
	}
	if note.FolderID != nil {
		if folder, err := s.store.GetFolder(ctx, session.UserID, *note.FolderID); err == nil {
			doc.Folder = folder.Name
		}
	}
	return s.exporter.ExportNote(ctx, doc, format)
}
