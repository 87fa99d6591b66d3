package app

import (
	"context"
	"math"
	"strings"

	"checklist/api/internal/ownership"
	"checklist/api/internal/search"
	"checklist/api/internal/store"

	"go.uber.org/zap"
)

const (
	defaultBoardName = "General"
	defaultCardTitle = "New project"
)

// CardInput is a partial card update. Nil fields are left untouched.
type CardInput struct {
	Title   *string   `json:"title"`
	Summary *string   `json:"summary"`
	Tags    *[]string `json:"tags"`
}

func (s *Service) ListBoards(ctx context.Context, userID string) (map[string]any, error) {
	boards, err := s.ensureBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"boards": boardViews(boards)}, nil
}

// DefaultBoard returns the user's oldest board, creating General when the
// user has none.
func (s *Service) DefaultBoard(ctx context.Context, userID string) (map[string]any, error) {
	boards, err := s.ensureBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"board": boardView(boards[0])}, nil
}

func (s *Service) ensureBoards(ctx context.Context, userID string) ([]store.Board, error) {
	boards, err := s.store.ListBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(boards) > 0 {
		return boards, nil
	}
	board, err := s.store.InsertBoard(ctx, store.Board{UserID: userID, Name: defaultBoardName})
	if err != nil {
		return nil, err
	}
	return []store.Board{board}, nil
}

func (s *Service) GetBoard(ctx context.Context, userID, boardID string) (map[string]any, error) {
	board, err := s.store.GetBoard(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	boards, err := s.store.ListBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	cardItems := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		cardItems = append(cardItems, cardView(card))
	}
	return map[string]any{
		"board":  boardView(board),
		"boards": boardViews(boards),
		"cards":  cardItems,
	}, nil
}

func (s *Service) CreateBoard(ctx context.Context, userID, name string) (map[string]any, error) {
	board, err := s.store.InsertBoard(ctx, store.Board{
		UserID: userID,
		Name:   firstNonBlank(name, defaultBoardName),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"board": boardView(board)}, nil
}

func (s *Service) RenameBoard(ctx context.Context, userID, boardID, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	board, err := s.store.RenameBoard(ctx, userID, boardID, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"board": boardView(board)}, nil
}

// DeleteBoard removes the board and its cards, then clears their
// attachment objects and index entries.
func (s *Service) DeleteBoard(ctx context.Context, userID, boardID string) (map[string]any, error) {
	if _, err := s.store.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListBoardAttachments(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	deleted, err := s.store.DeleteBoard(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, notFound()
	}
	s.removeObjects(ctx, attachments)
	if s.search != nil {
		for _, card := range cards {
			s.search.DeleteCard(card.ID)
		}
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) CreateCard(ctx context.Context, userID, boardID, title string) (map[string]any, error) {
	if _, err := s.store.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	card, err := s.store.InsertCard(ctx, store.Card{
		UserID:  userID,
		BoardID: boardID,
		Title:   firstNonBlank(title, defaultCardTitle),
		Tags:    []string{},
	})
	if err != nil {
		return nil, err
	}
	card.Notes = []store.Note{}
	card.Attachments = []store.Attachment{}
	s.indexCard(ctx, card)
	return map[string]any{"card": cardView(card)}, nil
}

// UpdateCard writes the present fields as given. Tags are trimmed and
// blank entries dropped.
func (s *Service) UpdateCard(ctx context.Context, userID, cardID string, input CardInput) (map[string]any, error) {
	patch := store.CardPatch{Title: input.Title, Summary: input.Summary}
	if input.Tags != nil {
		patch.SetTags = true
		patch.Tags = cleanTags(*input.Tags)
	}
	card, err := s.store.UpdateCard(ctx, userID, cardID, patch)
	if err != nil {
		return nil, err
	}
	s.indexCard(ctx, card)
	return map[string]any{"card": cardView(card)}, nil
}

func (s *Service) DeleteCard(ctx context.Context, userID, cardID string) (map[string]any, error) {
	attachments, err := s.store.ListCardAttachments(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	deleted, err := s.store.DeleteCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, notFound()
	}
	s.removeObjects(ctx, attachments)
	if s.search != nil {
		s.search.DeleteCard(cardID)
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) ReorderCards(ctx context.Context, userID, boardID string, orderedIDs []string) (map[string]any, error) {
	if _, err := s.store.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	if err := s.store.ReorderCards(ctx, userID, boardID, orderedIDs); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) AddTag(ctx context.Context, userID, cardID, tag string) (map[string]any, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, validationError("tag is required")
	}
	card, err := s.store.AppendCardTag(ctx, userID, cardID, tag)
	if err != nil {
		return nil, err
	}
	s.indexCard(ctx, card)
	return map[string]any{"tags": card.Tags}, nil
}

func (s *Service) RemoveTag(ctx context.Context, userID, cardID, tag string) (map[string]any, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, validationError("tag is required")
	}
	card, err := s.store.RemoveCardTag(ctx, userID, cardID, tag)
	if err != nil {
		return nil, err
	}
	s.indexCard(ctx, card)
	return map[string]any{"tags": card.Tags}, nil
}

func (s *Service) AddNote(ctx context.Context, userID, cardID, text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("text is required")
	}
	card, err := s.store.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	note, err := s.store.InsertNote(ctx, store.Note{CardID: card.ID, Text: text})
	if err != nil {
		return nil, err
	}
	s.indexCard(ctx, card)
	return map[string]any{"note": noteView(note)}, nil
}

func (s *Service) ToggleNote(ctx context.Context, userID, noteID string) (map[string]any, error) {
	if _, err := s.ownedNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	note, err := s.store.ToggleNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": note.ID, "done": note.Done}, nil
}

// EditNote replaces the checklist text as given.
func (s *Service) EditNote(ctx context.Context, userID, noteID, text string) (map[string]any, error) {
	if _, err := s.ownedNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	note, err := s.store.UpdateNoteText(ctx, userID, noteID, text)
	if err != nil {
		return nil, err
	}
	s.reindexCard(ctx, userID, note.CardID)
	return map[string]any{"note": noteView(note)}, nil
}

func (s *Service) RemoveNote(ctx context.Context, userID, noteID string) (map[string]any, error) {
	note, err := s.ownedNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	deleted, err := s.store.DeleteNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, notFound()
	}
	s.reindexCard(ctx, userID, note.CardID)
	return map[string]any{"ok": true}, nil
}

// ownedNote loads a checklist note and hides notes on other users' cards.
func (s *Service) ownedNote(ctx context.Context, userID, noteID string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if !ownership.Owns(note.OwnerID, userID) {
		return store.Note{}, notFound()
	}
	return note, nil
}

func (s *Service) reindexCard(ctx context.Context, userID, cardID string) {
	if s.search == nil {
		return
	}
	card, err := s.store.GetCard(ctx, userID, cardID)
	if err != nil {
		s.log.Warn("reload card for index", zap.String("card_id", cardID), zap.Error(err))
		return
	}
	s.indexCard(ctx, card)
}

func (s *Service) indexCard(ctx context.Context, card store.Card) {
	if s.search == nil {
		return
	}
	notes, err := s.store.ListCardNotes(ctx, card.ID)
	if err != nil {
		s.log.Warn("load checklist for index", zap.String("card_id", card.ID), zap.Error(err))
		return
	}
	texts := make([]string, 0, len(notes))
	for _, note := range notes {
		texts = append(texts, note.Text)
	}
	s.search.IndexCard(search.CardRecord{
		ID:      card.ID,
		UserID:  card.UserID,
		BoardID: card.BoardID,
		Title:   card.Title,
		Summary: card.Summary,
		Tags:    card.Tags,
		Notes:   strings.Join(texts, "\n"),
	})
}

// removeObjects deletes attachment objects whose rows are already gone.
// Failures leave orphans and are only logged.
func (s *Service) removeObjects(ctx context.Context, attachments []store.Attachment) {
	for _, attachment := range attachments {
		if err := s.blobs.Remove(ctx, attachment.URL); err != nil {
			s.log.Warn("remove attachment object",
				zap.String("attachment_id", attachment.ID),
				zap.String("path", attachment.URL),
				zap.Error(err))
		}
	}
}

// Progress returns the rounded percentage of done notes and whether the
// checklist is complete. An empty checklist is 0 and not complete.
func Progress(notes []store.Note) (int, bool) {
	if len(notes) == 0 {
		return 0, false
	}
	done := 0
	for _, note := range notes {
		if note.Done {
			done++
		}
	}
	percent := int(math.Round(float64(done) * 100 / float64(len(notes))))
	return percent, done == len(notes)
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func boardViews(boards []store.Board) []map[string]any {
	items := make([]map[string]any, 0, len(boards))
	for _, board := range boards {
		items = append(items, boardView(board))
	}
	return items
}

func boardView(board store.Board) map[string]any {
	return map[string]any{
		"id":        board.ID,
		"name":      board.Name,
		"createdAt": board.CreatedAt,
		"updatedAt": board.UpdatedAt,
	}
}

func cardView(card store.Card) map[string]any {
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	notes := make([]map[string]any, 0, len(card.Notes))
	for _, note := range card.Notes {
		notes = append(notes, noteView(note))
	}
	attachments := make([]map[string]any, 0, len(card.Attachments))
	for _, attachment := range card.Attachments {
		attachments = append(attachments, attachmentView(attachment))
	}
	progress, complete := Progress(card.Notes)
	return map[string]any{
		"id":          card.ID,
		"boardId":     card.BoardID,
		"title":       card.Title,
		"summary":     card.Summary,
		"tags":        tags,
		"position":    card.Position,
		"createdAt":   card.CreatedAt,
		"updatedAt":   card.UpdatedAt,
		"notes":       notes,
		"attachments": attachments,
		"progress":    progress,
		"complete":    complete,
	}
}

func noteView(note store.Note) map[string]any {
	return map[string]any{
		"id":     note.ID,
		"cardId": note.CardID,
		"text":   note.Text,
		"done":   note.Done,
	}
}

func attachmentView(attachment store.Attachment) map[string]any {
	return map[string]any{
		"id":        attachment.ID,
		"cardId":    attachment.CardID,
		"name":      attachment.Name,
		"url":       attachment.URL,
		"mime":      attachment.Mime,
		"size":      attachment.Size,
		"createdAt": attachment.CreatedAt,
	}
}
