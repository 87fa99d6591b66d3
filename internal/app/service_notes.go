package app

import (
	"context"
	"math"
	"strings"

	"checklist/api/internal/ownership"
	"checklist/api/internal/revisions"
	"checklist/api/internal/richtext"
	"checklist/api/internal/search"
	"checklist/api/internal/store"

	"go.uber.org/zap"
)

const (
	defaultNoteTitle  = "New note"
	defaultFolderName = "New folder"
	defaultFontSize   = 16
	minFontSize       = 12
	maxFontSize       = 40
	revisionListLimit = 50
	snippetLength     = 160
	generalFolderName = "General"
)

// NoteInput is the body of a note save. A nil FontSize keeps the current size.
type NoteInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	FontSize *float64 `json:"fontSize"`
}

// Workspace returns the user's folders and notes. A first visit creates a
// General folder and an empty note.
func (s *Service) Workspace(ctx context.Context, userID string) (map[string]any, error) {
	folders, err := s.store.ListFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		folder, err := s.store.CreateFolder(ctx, userID, generalFolderName)
		if err != nil {
			return nil, err
		}
		folders = []store.NoteFolder{folder}
	}

	notes, err := s.store.ListUserNotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		note, err := s.store.CreateUserNote(ctx, store.UserNote{
			UserID:   userID,
			Title:    defaultNoteTitle,
			FontSize: defaultFontSize,
		})
		if err != nil {
			return nil, err
		}
		s.indexUserNote(note)
		notes = []store.UserNote{note}
	}

	folderItems := make([]map[string]any, 0, len(folders))
	for _, folder := range folders {
		folderItems = append(folderItems, folderView(folder))
	}
	noteItems := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		noteItems = append(noteItems, userNoteView(note))
	}
	return map[string]any{"folders": folderItems, "notes": noteItems}, nil
}

func (s *Service) CreateNote(ctx context.Context, userID string, folderID *string) (map[string]any, error) {
	folderID, err := s.ownedFolderID(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	note, err := s.store.CreateUserNote(ctx, store.UserNote{
		UserID:   userID,
		FolderID: folderID,
		Title:    defaultNoteTitle,
		FontSize: defaultFontSize,
	})
	if err != nil {
		return nil, err
	}
	s.indexUserNote(note)
	return map[string]any{"note": userNoteView(note)}, nil
}

func (s *Service) GetNote(ctx context.Context, userID, noteID string) (map[string]any, error) {
	note, err := s.store.GetUserNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"note": userNoteView(note)}, nil
}

// UpdateNote saves a note. The content is sanitized before it is stored and
// every change is recorded as a revision.
func (s *Service) UpdateNote(ctx context.Context, session Session, noteID string, input NoteInput) (map[string]any, error) {
	current, err := s.store.GetUserNote(ctx, session.UserID, noteID)
	if err != nil {
		return nil, err
	}
	fontSize := current.FontSize
	if input.FontSize != nil {
		fontSize = ClampFontSize(*input.FontSize)
	}
	content := richtext.Sanitize(input.Content)
	note, err := s.store.UpdateUserNote(ctx, session.UserID, store.UserNote{
		ID:        noteID,
		Title:     firstNonBlank(input.Title, defaultNoteTitle),
		Content:   content,
		PlainText: richtext.PlainText(content),
		FontSize:  fontSize,
	})
	if err != nil {
		return nil, err
	}
	s.recordRevision(session, current, note)
	s.indexUserNote(note)
	return map[string]any{"note": userNoteView(note)}, nil
}

func (s *Service) recordRevision(session Session, before, after store.UserNote) {
	if s.revisions == nil {
		return
	}
	prev := revisions.Content{Title: before.Title, Content: before.Content, FontSize: before.FontSize}
	next := revisions.Content{Title: after.Title, Content: after.Content, FontSize: after.FontSize}
	message := "Save note"
	if changes := revisions.Changes(prev, next); len(changes) > 0 {
		message = "Update " + strings.Join(changes, ", ")
	}
	author := firstNonBlank(session.Name, session.Email, session.UserID)
	if _, _, err := s.revisions.Commit(after.ID, next, author, message); err != nil {
		s.log.Warn("commit note revision", zap.String("note_id", after.ID), zap.Error(err))
	}
}

func (s *Service) DeleteNote(ctx context.Context, userID, noteID string) (map[string]any, error) {
	deleted, err := s.store.DeleteUserNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, notFound()
	}
	if s.revisions != nil {
		if err := s.revisions.Delete(noteID); err != nil {
			s.log.Warn("delete note revisions", zap.String("note_id", noteID), zap.Error(err))
		}
	}
	if s.search != nil {
		s.search.DeleteNote(noteID)
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) MoveNote(ctx context.Context, userID, noteID string, folderID *string) (map[string]any, error) {
	folderID, err := s.ownedFolderID(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	note, err := s.store.MoveUserNote(ctx, userID, noteID, folderID)
	if err != nil {
		return nil, err
	}
	s.indexUserNote(note)
	return map[string]any{"note": userNoteView(note)}, nil
}

func (s *Service) ReorderNotes(ctx context.Context, userID string, folderID *string, orderedIDs []string) (map[string]any, error) {
	folderID, err := s.ownedFolderID(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReorderUserNotes(ctx, userID, folderID, orderedIDs); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// ownedFolderID normalizes an optional folder id and checks the caller owns
// the folder. A blank id means no folder.
func (s *Service) ownedFolderID(ctx context.Context, userID string, folderID *string) (*string, error) {
	if folderID == nil || strings.TrimSpace(*folderID) == "" {
		return nil, nil
	}
	folder, err := s.store.GetFolder(ctx, userID, strings.TrimSpace(*folderID))
	if err != nil {
		return nil, err
	}
	if !ownership.Owns(folder.UserID, userID) {
		return nil, notFound()
	}
	return &folder.ID, nil
}

func (s *Service) CreateFolder(ctx context.Context, userID, name string) (map[string]any, error) {
	folder, err := s.store.CreateFolder(ctx, userID, firstNonBlank(name, defaultFolderName))
	if err != nil {
		return nil, err
	}
	return map[string]any{"folder": folderView(folder)}, nil
}

func (s *Service) RenameFolder(ctx context.Context, userID, folderID, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	folder, err := s.store.RenameFolder(ctx, userID, folderID, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"folder": folderView(folder)}, nil
}

func (s *Service) DeleteFolder(ctx context.Context, userID, folderID string) (map[string]any, error) {
	deleted, err := s.store.DeleteFolder(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, notFound()
	}
	return map[string]any{"ok": true}, nil
}

func (s *Service) NoteRevisions(ctx context.Context, userID, noteID string) (map[string]any, error) {
	if _, err := s.store.GetUserNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return map[string]any{"revisions": []revisions.Revision{}}, nil
	}
	history, err := s.revisions.History(noteID, revisionListLimit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"revisions": history}, nil
}

func (s *Service) NoteRevision(ctx context.Context, userID, noteID, hash string) (map[string]any, error) {
	if _, err := s.store.GetUserNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return nil, notFound()
	}
	content, revision, err := s.revisions.Get(noteID, hash)
	if err != nil {
		return nil, err
	}
	return map[string]any{"revision": revision, "content": content}, nil
}

func (s *Service) indexUserNote(note store.UserNote) {
	if s.search == nil {
		return
	}
	record := search.NoteRecord{
		ID:     note.ID,
		UserID: note.UserID,
		Title:  note.Title,
		Text:   note.PlainText,
	}
	if note.FolderID != nil {
		record.FolderID = *note.FolderID
	}
	s.search.IndexNote(record)
}

// ClampFontSize rounds size to a whole pixel value within the allowed range.
func ClampFontSize(size float64) int {
	if math.IsNaN(size) {
		return defaultFontSize
	}
	rounded := int(math.Round(size))
	if rounded < minFontSize {
		return minFontSize
	}
	if rounded > maxFontSize {
		return maxFontSize
	}
	return rounded
}

func folderView(folder store.NoteFolder) map[string]any {
	return map[string]any{
		"id":        folder.ID,
		"name":      folder.Name,
		"position":  folder.Position,
		"createdAt": folder.CreatedAt,
		"updatedAt": folder.UpdatedAt,
	}
}

func userNoteView(note store.UserNote) map[string]any {
	return map[string]any{
		"id":        note.ID,
		"folderId":  note.FolderID,
		"title":     note.Title,
		"content":   note.Content,
		"snippet":   richtext.Snippet(note.Content, snippetLength),
		"fontSize":  note.FontSize,
		"position":  note.Position,
		"createdAt": note.CreatedAt,
		"updatedAt": note.UpdatedAt,
	}
}
