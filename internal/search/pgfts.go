package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// PgFTS implements Fallback using PostgreSQL full-text search.
type PgFTS struct {
	db    *sql.DB
	types *pgtype.Map
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db, types: pgtype.NewMap()}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// cardVector extends the stored title/summary vector with tags and the
// checklist text, which live outside the row.
const cardVector = `(c.search_vector
	|| to_tsvector('simple', array_to_string(c.tags, ' '))
	|| to_tsvector('simple', coalesce((SELECT string_agg(n.text, ' ') FROM notes n WHERE n.card_id = c.id), '')))`

// Search executes a UNION ALL query across cards and user notes using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.UserID == "" {
		return nil, 0, nil
	}
	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('simple', $1)"
	args := []any{q.Text, q.UserID}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultCard {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'card'::text AS type, c.id, c.title,
				ts_headline('simple', coalesce(c.summary, ''), %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.board_id AS board_id, ''::text AS folder_id,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM cards c
			WHERE c.user_id = $2 AND %[2]s @@ %[1]s`, tsQuery, cardVector))
	}
	if q.FilterType == "" || q.FilterType == ResultNote {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'note'::text AS type, un.id, un.title,
				ts_headline('simple', un.plain_text, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS board_id, coalesce(un.folder_id, '') AS folder_id,
				ts_rank(un.search_vector, %[1]s) AS rank
			FROM user_notes un
			WHERE un.user_id = $2 AND un.search_vector @@ %[1]s`, tsQuery))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+union+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, board_id, folder_id
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`, union, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.BoardID, &r.FolderID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CardRecord, []NoteRecord, error) {
	cardRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.board_id, c.title, c.summary, c.tags,
			coalesce((SELECT string_agg(n.text, ' ' ORDER BY n.created_at) FROM notes n WHERE n.card_id = c.id), '')
		FROM cards c
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load cards: %w", err)
	}
	defer cardRows.Close()

	cards := make([]CardRecord, 0)
	for cardRows.Next() {
		var c CardRecord
		if err := cardRows.Scan(&c.ID, &c.UserID, &c.BoardID, &c.Title, &c.Summary, p.types.SQLScanner(&c.Tags), &c.Notes); err != nil {
			return nil, nil, fmt.Errorf("scan card: %w", err)
		}
		if c.Tags == nil {
			c.Tags = []string{}
		}
		cards = append(cards, c)
	}
	if err := cardRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate cards: %w", err)
	}

	noteRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, coalesce(folder_id, ''), title, plain_text
		FROM user_notes
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load notes: %w", err)
	}
	defer noteRows.Close()

	notes := make([]NoteRecord, 0)
	for noteRows.Next() {
		var n NoteRecord
		if err := noteRows.Scan(&n.ID, &n.UserID, &n.FolderID, &n.Title, &n.Text); err != nil {
			return nil, nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := noteRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate notes: %w", err)
	}
	return cards, notes, nil
}
