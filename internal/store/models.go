package store

import (
	"errors"
	"time"
)

var (
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Board struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Card struct {
	ID          string
	UserID      string
	BoardID     string
	Title       string
	Summary     string
	Tags        []string
	Position    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Notes       []Note
	Attachments []Attachment
}

// CardPatch carries the optional fields of a card update. Nil means untouched.
type CardPatch struct {
	Title   *string
	Summary *string
	Tags    []string
	SetTags bool
}

// Note is a checklist item on a card.
type Note struct {
	ID        string
	CardID    string
	Text      string
	Done      bool
	CreatedAt time.Time
	// OwnerID is the user id of the owning card, filled by GetNote.
	OwnerID string
}

type Attachment struct {
	ID        string
	CardID    string
	Name      string
	URL       string
	Mime      string
	Size      int64
	CreatedAt time.Time
	OwnerID   string
}

type NoteFolder struct {
	ID        string
	UserID    string
	Name      string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserNote is a rich-text note in the personal notes workspace.
type UserNote struct {
	ID        string
	UserID    string
	FolderID  *string
	Title     string
	Content   string
	PlainText string
	FontSize  int
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PasswordReset struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	UsedAt    *time.Time
}
