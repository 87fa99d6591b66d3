package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"checklist/api/internal/export"
	"checklist/api/internal/objectstore"
	"checklist/api/internal/search"
	"checklist/api/internal/store"
)

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

type resetRecord struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// memStore keeps every table in maps and mirrors the ordering and
// ownership rules of the Postgres store.
type memStore struct {
	mu          sync.Mutex
	seq         int
	clock       time.Time
	users       map[string]store.User
	boards      map[string]store.Board
	cards       map[string]store.Card
	notes       map[string]store.Note
	attachments map[string]store.Attachment
	folders     map[string]store.NoteFolder
	userNotes   map[string]store.UserNote
	refresh     map[string]refreshRecord
	revoked     map[string]time.Time
	resets      map[string]resetRecord
	pingErr     error
	purged      int
}

func newMemStore() *memStore {
	return &memStore{
		clock:       time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		users:       map[string]store.User{},
		boards:      map[string]store.Board{},
		cards:       map[string]store.Card{},
		notes:       map[string]store.Note{},
		attachments: map[string]store.Attachment{},
		folders:     map[string]store.NoteFolder{},
		userNotes:   map[string]store.UserNote{},
		refresh:     map[string]refreshRecord{},
		revoked:     map[string]time.Time{},
		resets:      map[string]resetRecord{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return store.User{}, store.ErrConflict
		}
	}
	user.ID = m.nextID("user")
	user.CreatedAt = m.tick()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[tokenHash] = resetRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) ConsumePasswordReset(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset, ok := m.resets[tokenHash]
	if !ok || reset.used || time.Now().After(reset.expiresAt) {
		return "", sql.ErrNoRows
	}
	reset.used = true
	m.resets[tokenHash] = reset
	return reset.userID, nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = refreshRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) ConsumeRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.refresh[tokenHash]
	if !ok || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	delete(m.refresh, tokenHash)
	return m.users[record.userID], nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = exp
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *memStore) PurgeExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged++
	return 0, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) ListBoards(_ context.Context, userID string) ([]store.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	boards := make([]store.Board, 0)
	for _, board := range m.boards {
		if board.UserID == userID {
			boards = append(boards, board)
		}
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].CreatedAt.Before(boards[j].CreatedAt) })
	return boards, nil
}

func (m *memStore) GetBoard(_ context.Context, userID, boardID string) (store.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	board, ok := m.boards[boardID]
	if !ok || board.UserID != userID {
		return store.Board{}, sql.ErrNoRows
	}
	return board, nil
}

func (m *memStore) InsertBoard(_ context.Context, board store.Board) (store.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	board.ID = m.nextID("board")
	board.CreatedAt = m.tick()
	board.UpdatedAt = board.CreatedAt
	m.boards[board.ID] = board
	return board, nil
}

func (m *memStore) RenameBoard(_ context.Context, userID, boardID, name string) (store.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	board, ok := m.boards[boardID]
	if !ok || board.UserID != userID {
		return store.Board{}, sql.ErrNoRows
	}
	board.Name = name
	m.boards[boardID] = board
	return board, nil
}

func (m *memStore) DeleteBoard(_ context.Context, userID, boardID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	board, ok := m.boards[boardID]
	if !ok || board.UserID != userID {
		return false, nil
	}
	delete(m.boards, boardID)
	for id, card := range m.cards {
		if card.BoardID == boardID {
			m.deleteCardLocked(id)
		}
	}
	return true, nil
}

func (m *memStore) deleteCardLocked(cardID string) {
	delete(m.cards, cardID)
	for id, note := range m.notes {
		if note.CardID == cardID {
			delete(m.notes, id)
		}
	}
	for id, attachment := range m.attachments {
		if attachment.CardID == cardID {
			delete(m.attachments, id)
		}
	}
}

func (m *memStore) ListCards(_ context.Context, userID, boardID string) ([]store.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cards := make([]store.Card, 0)
	for _, card := range m.cards {
		if card.UserID == userID && card.BoardID == boardID {
			card.Notes = m.cardNotesLocked(card.ID)
			card.Attachments = m.cardAttachmentsLocked(card.ID)
			cards = append(cards, card)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Position != cards[j].Position {
			return cards[i].Position < cards[j].Position
		}
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

func (m *memStore) cardNotesLocked(cardID string) []store.Note {
	notes := make([]store.Note, 0)
	for _, note := range m.notes {
		if note.CardID == cardID {
			notes = append(notes, note)
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt.Before(notes[j].CreatedAt) })
	return notes
}

func (m *memStore) cardAttachmentsLocked(cardID string) []store.Attachment {
	items := make([]store.Attachment, 0)
	for _, attachment := range m.attachments {
		if attachment.CardID == cardID {
			items = append(items, attachment)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items
}

func (m *memStore) GetCard(_ context.Context, userID, cardID string) (store.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok || card.UserID != userID {
		return store.Card{}, sql.ErrNoRows
	}
	return card, nil
}

func (m *memStore) InsertCard(_ context.Context, card store.Card) (store.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card.ID = m.nextID("card")
	card.CreatedAt = m.tick()
	card.UpdatedAt = card.CreatedAt
	m.cards[card.ID] = card
	return card, nil
}

func (m *memStore) UpdateCard(_ context.Context, userID, cardID string, patch store.CardPatch) (store.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok || card.UserID != userID {
		return store.Card{}, sql.ErrNoRows
	}
	if patch.Title != nil {
		card.Title = *patch.Title
	}
	if patch.Summary != nil {
		card.Summary = *patch.Summary
	}
	if patch.SetTags {
		card.Tags = patch.Tags
	}
	m.cards[cardID] = card
	return card, nil
}

func (m *memStore) DeleteCard(_ context.Context, userID, cardID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok || card.UserID != userID {
		return false, nil
	}
	m.deleteCardLocked(cardID)
	return true, nil
}

func (m *memStore) ReorderCards(_ context.Context, userID, boardID string, orderedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range orderedIDs {
		card, ok := m.cards[id]
		if !ok || card.UserID != userID || card.BoardID != boardID {
			continue
		}
		card.Position = i * 10
		m.cards[id] = card
	}
	return nil
}

func (m *memStore) AppendCardTag(_ context.Context, userID, cardID, tag string) (store.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok || card.UserID != userID {
		return store.Card{}, sql.ErrNoRows
	}
	card.Tags = append(append([]string{}, card.Tags...), tag)
	m.cards[cardID] = card
	return card, nil
}

func (m *memStore) RemoveCardTag(_ context.Context, userID, cardID, tag string) (store.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok || card.UserID != userID {
		return store.Card{}, sql.ErrNoRows
	}
	kept := make([]string, 0, len(card.Tags))
	for _, existing := range card.Tags {
		if existing != tag {
			kept = append(kept, existing)
		}
	}
	card.Tags = kept
	m.cards[cardID] = card
	return card, nil
}

func (m *memStore) ListCardNotes(_ context.Context, cardID string) ([]store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cardNotesLocked(cardID), nil
}

func (m *memStore) InsertNote(_ context.Context, note store.Note) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note.ID = m.nextID("note")
	note.CreatedAt = m.tick()
	m.notes[note.ID] = note
	return note, nil
}

func (m *memStore) GetNote(_ context.Context, noteID string) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[noteID]
	if !ok {
		return store.Note{}, sql.ErrNoRows
	}
	note.OwnerID = m.cards[note.CardID].UserID
	return note, nil
}

func (m *memStore) ownedNoteLocked(userID, noteID string) (store.Note, bool) {
	note, ok := m.notes[noteID]
	if !ok || m.cards[note.CardID].UserID != userID {
		return store.Note{}, false
	}
	return note, true
}

func (m *memStore) ToggleNote(_ context.Context, userID, noteID string) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.ownedNoteLocked(userID, noteID)
	if !ok {
		return store.Note{}, sql.ErrNoRows
	}
	note.Done = !note.Done
	m.notes[noteID] = note
	return note, nil
}

func (m *memStore) UpdateNoteText(_ context.Context, userID, noteID, text string) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.ownedNoteLocked(userID, noteID)
	if !ok {
		return store.Note{}, sql.ErrNoRows
	}
	note.Text = text
	m.notes[noteID] = note
	return note, nil
}

func (m *memStore) DeleteNote(_ context.Context, userID, noteID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ownedNoteLocked(userID, noteID); !ok {
		return false, nil
	}
	delete(m.notes, noteID)
	return true, nil
}

func (m *memStore) InsertAttachments(_ context.Context, attachments []store.Attachment) ([]store.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make([]store.Attachment, 0, len(attachments))
	for _, attachment := range attachments {
		attachment.ID = m.nextID("attachment")
		attachment.CreatedAt = m.tick()
		m.attachments[attachment.ID] = attachment
		saved = append(saved, attachment)
	}
	return saved, nil
}

func (m *memStore) GetAttachment(_ context.Context, userID, attachmentID string) (store.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attachment, ok := m.attachments[attachmentID]
	if !ok || m.cards[attachment.CardID].UserID != userID {
		return store.Attachment{}, sql.ErrNoRows
	}
	attachment.OwnerID = userID
	return attachment, nil
}

func (m *memStore) DeleteAttachment(_ context.Context, userID, attachmentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attachment, ok := m.attachments[attachmentID]
	if !ok || m.cards[attachment.CardID].UserID != userID {
		return false, nil
	}
	delete(m.attachments, attachmentID)
	return true, nil
}

func (m *memStore) ListCardAttachments(_ context.Context, userID, cardID string) ([]store.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cards[cardID].UserID != userID {
		return []store.Attachment{}, nil
	}
	return m.cardAttachmentsLocked(cardID), nil
}

func (m *memStore) ListBoardAttachments(_ context.Context, userID, boardID string) ([]store.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Attachment, 0)
	for _, card := range m.cards {
		if card.BoardID == boardID && card.UserID == userID {
			items = append(items, m.cardAttachmentsLocked(card.ID)...)
		}
	}
	return items, nil
}

func (m *memStore) ListFolders(_ context.Context, userID string) ([]store.NoteFolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folders := make([]store.NoteFolder, 0)
	for _, folder := range m.folders {
		if folder.UserID == userID {
			folders = append(folders, folder)
		}
	}
	sort.Slice(folders, func(i, j int) bool {
		if folders[i].Position != folders[j].Position {
			return folders[i].Position < folders[j].Position
		}
		return folders[i].CreatedAt.Before(folders[j].CreatedAt)
	})
	return folders, nil
}

func (m *memStore) GetFolder(_ context.Context, userID, folderID string) (store.NoteFolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folder, ok := m.folders[folderID]
	if !ok || folder.UserID != userID {
		return store.NoteFolder{}, sql.ErrNoRows
	}
	return folder, nil
}

func (m *memStore) CreateFolder(_ context.Context, userID, name string) (store.NoteFolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	position := 0
	for _, folder := range m.folders {
		if folder.UserID == userID && folder.Position >= position {
			position = folder.Position + 1
		}
	}
	folder := store.NoteFolder{ID: m.nextID("folder"), UserID: userID, Name: name, Position: position, CreatedAt: m.tick()}
	m.folders[folder.ID] = folder
	return folder, nil
}

func (m *memStore) RenameFolder(_ context.Context, userID, folderID, name string) (store.NoteFolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folder, ok := m.folders[folderID]
	if !ok || folder.UserID != userID {
		return store.NoteFolder{}, sql.ErrNoRows
	}
	folder.Name = name
	m.folders[folderID] = folder
	return folder, nil
}

func (m *memStore) DeleteFolder(_ context.Context, userID, folderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folder, ok := m.folders[folderID]
	if !ok || folder.UserID != userID {
		return false, nil
	}
	delete(m.folders, folderID)
	next := m.nextPositionLocked(userID, nil)
	for _, note := range m.folderNotesLocked(userID, &folderID) {
		note.FolderID = nil
		note.Position = next
		next++
		m.userNotes[note.ID] = note
	}
	return true, nil
}

func (m *memStore) folderNotesLocked(userID string, folderID *string) []store.UserNote {
	notes := make([]store.UserNote, 0)
	for _, note := range m.userNotes {
		if note.UserID == userID && sameFolderID(note.FolderID, folderID) {
			notes = append(notes, note)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Position != notes[j].Position {
			return notes[i].Position < notes[j].Position
		}
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes
}

func (m *memStore) nextPositionLocked(userID string, folderID *string) int {
	next := 0
	for _, note := range m.folderNotesLocked(userID, folderID) {
		if note.Position >= next {
			next = note.Position + 1
		}
	}
	return next
}

func (m *memStore) renumberLocked(userID string, folderID *string) {
	for i, note := range m.folderNotesLocked(userID, folderID) {
		note.Position = i
		m.userNotes[note.ID] = note
	}
}

func sameFolderID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memStore) ListUserNotes(_ context.Context, userID string) ([]store.UserNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	notes := make([]store.UserNote, 0)
	for _, note := range m.userNotes {
		if note.UserID == userID {
			notes = append(notes, note)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		fi, fj := folderKey(notes[i].FolderID), folderKey(notes[j].FolderID)
		if fi != fj {
			return fi < fj
		}
		if notes[i].Position != notes[j].Position {
			return notes[i].Position < notes[j].Position
		}
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func folderKey(folderID *string) string {
	if folderID == nil {
		return "~"
	}
	return *folderID
}

func (m *memStore) GetUserNote(_ context.Context, userID, noteID string) (store.UserNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.userNotes[noteID]
	if !ok || note.UserID != userID {
		return store.UserNote{}, sql.ErrNoRows
	}
	return note, nil
}

func (m *memStore) CreateUserNote(_ context.Context, note store.UserNote) (store.UserNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note.ID = m.nextID("usernote")
	note.Position = m.nextPositionLocked(note.UserID, note.FolderID)
	note.CreatedAt = m.tick()
	note.UpdatedAt = note.CreatedAt
	m.userNotes[note.ID] = note
	return note, nil
}

func (m *memStore) UpdateUserNote(_ context.Context, userID string, note store.UserNote) (store.UserNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.userNotes[note.ID]
	if !ok || current.UserID != userID {
		return store.UserNote{}, sql.ErrNoRows
	}
	current.Title = note.Title
	current.Content = note.Content
	current.PlainText = note.PlainText
	current.FontSize = note.FontSize
	current.UpdatedAt = m.tick()
	m.userNotes[note.ID] = current
	return current, nil
}

func (m *memStore) DeleteUserNote(_ context.Context, userID, noteID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.userNotes[noteID]
	if !ok || note.UserID != userID {
		return false, nil
	}
	delete(m.userNotes, noteID)
	m.renumberLocked(userID, note.FolderID)
	return true, nil
}

func (m *memStore) MoveUserNote(_ context.Context, userID, noteID string, folderID *string) (store.UserNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.userNotes[noteID]
	if !ok || note.UserID != userID {
		return store.UserNote{}, sql.ErrNoRows
	}
	if sameFolderID(note.FolderID, folderID) {
		return note, nil
	}
	source := note.FolderID
	note.Position = m.nextPositionLocked(userID, folderID)
	note.FolderID = folderID
	m.userNotes[noteID] = note
	m.renumberLocked(userID, source)
	return note, nil
}

func (m *memStore) ReorderUserNotes(_ context.Context, userID string, folderID *string, orderedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range orderedIDs {
		note, ok := m.userNotes[id]
		if !ok || note.UserID != userID || !sameFolderID(note.FolderID, folderID) {
			continue
		}
		note.Position = i
		m.userNotes[id] = note
	}
	return nil
}

type storedObject struct {
	data        []byte
	contentType string
}

type fakeBlobs struct {
	mu         sync.Mutex
	objects    map[string]storedObject
	putErr     error
	removeErr  error
	presignErr error
	removed    []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string]storedObject{}}
}

func (f *fakeBlobs) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = storedObject{data: data, contentType: contentType}
	return nil
}

func (f *fakeBlobs) Remove(_ context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeBlobs) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return fmt.Sprintf("https://storage.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) (objectstore.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	object, ok := f.objects[key]
	if !ok {
		return objectstore.Object{}, objectstore.ErrNotFound
	}
	return objectstore.Object{
		Body:        io.NopCloser(bytes.NewReader(object.data)),
		ContentType: object.contentType,
		Size:        int64(len(object.data)),
	}, nil
}

func (f *fakeBlobs) Ping(context.Context) error { return nil }

func (f *fakeBlobs) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type fakeSearch struct {
	mu           sync.Mutex
	cards        map[string]search.CardRecord
	notes        map[string]search.NoteRecord
	lastQuery    search.Query
	reindexCalls int
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{cards: map[string]search.CardRecord{}, notes: map[string]search.NoteRecord{}}
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	results := make([]search.Result, 0)
	for _, card := range f.cards {
		if card.UserID == q.UserID && strings.Contains(strings.ToLower(card.Title+" "+card.Notes), strings.ToLower(q.Text)) {
			results = append(results, search.Result{Type: search.ResultCard, ID: card.ID, Title: card.Title, BoardID: card.BoardID})
		}
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeSearch) IndexCard(card search.CardRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[card.ID] = card
}

func (f *fakeSearch) IndexNote(note search.NoteRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[note.ID] = note
}

func (f *fakeSearch) DeleteCard(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cards, id)
}

func (f *fakeSearch) DeleteNote(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, id)
}

func (f *fakeSearch) ReindexAll(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindexCalls++
	return len(f.cards) + len(f.notes), nil
}

type sentReset struct {
	to, userName, resetURL string
}

type fakeMailer struct {
	configured bool
	sent       []sentReset
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendPasswordReset(to, userName, resetURL string) error {
	if !f.configured {
		return errors.New("email not configured")
	}
	f.sent = append(f.sent, sentReset{to: to, userName: userName, resetURL: resetURL})
	return nil
}

type fakeExporter struct {
	board  export.Board
	note   export.Note
	format export.Format
	err    error
}

func (f *fakeExporter) ExportBoard(_ context.Context, board export.Board, format export.Format) (*export.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.board, f.format = board, format
	return &export.Result{Data: []byte("%PDF-board"), Filename: "board.pdf", MimeType: "application/pdf"}, nil
}

func (f *fakeExporter) ExportNote(_ context.Context, note export.Note, format export.Format) (*export.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.note, f.format = note, format
	return &export.Result{Data: []byte("docx-note"), Filename: "note.docx", MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, nil
}
