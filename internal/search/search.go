package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCard ResultType = "card"
	ResultNote ResultType = "note"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	BoardID  string     `json:"boardId,omitempty"`
	FolderID string     `json:"folderId,omitempty"`
}

// Query describes a search request. UserID is mandatory: every backend
// restricts hits to the caller's own records.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	UserID     string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push records into a search index.
type Indexer interface {
	IndexCards(cards []CardRecord) error
	IndexNotes(notes []NoteRecord) error
	DeleteCard(id string) error
	DeleteNote(id string) error
	ReplaceCards(cards []CardRecord) error
	ReplaceNotes(notes []NoteRecord) error
}

// Index is a primary search backend that is both queried and fed.
type Index interface {
	Searcher
	Indexer
}

// Fallback answers queries when the primary index is down and supplies
// the records for a full reindex.
type Fallback interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]CardRecord, []NoteRecord, error)
}

// CardRecord is the data we index for a card.
type CardRecord struct {
	ID      string   `json:"id"`
	UserID  string   `json:"userId"`
	BoardID string   `json:"boardId"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Notes   string   `json:"notes"`
}

// NoteRecord is the data we index for a user note.
type NoteRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	FolderID string `json:"folderId"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

const defaultLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
