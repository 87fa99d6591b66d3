package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) ListBoards(ctx context.Context, userID string) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM boards
		WHERE user_id=$1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var item Board
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, userID, boardID string) (Board, error) {
	var item Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM boards
		WHERE id=$1 AND user_id=$2
	`, boardID, userID).Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) (Board, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO boards (user_id, name)
		VALUES ($1, $2)
		RETURNING id, user_id, name, created_at, updated_at
	`, board.UserID, board.Name).Scan(&board.ID, &board.UserID, &board.Name, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return Board{}, fmt.Errorf("insert board: %w", err)
	}
	return board, nil
}

func (s *PostgresStore) RenameBoard(ctx context.Context, userID, boardID, name string) (Board, error) {
	var item Board
	err := s.db.QueryRowContext(ctx, `
		UPDATE boards SET name=$3, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING id, user_id, name, created_at, updated_at
	`, boardID, userID, name).Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	return item, nil
}

// DeleteBoard removes the board; cards, notes and attachment rows cascade.
func (s *PostgresStore) DeleteBoard(ctx context.Context, userID, boardID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1 AND user_id=$2`, boardID, userID)
	if err != nil {
		return false, fmt.Errorf("delete board: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete board rows: %w", err)
	}
	return affected > 0, nil
}

const cardColumns = `id, user_id, board_id, title, summary, tags, position, created_at, updated_at`

func (s *PostgresStore) scanCard(row rowScanner) (Card, error) {
	var item Card
	err := row.Scan(&item.ID, &item.UserID, &item.BoardID, &item.Title, &item.Summary, s.tags(&item.Tags), &item.Position, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return item, nil
}

// ListCards returns the board's cards ordered by position, newest first on
// ties, each carrying its checklist notes and attachments.
func (s *PostgresStore) ListCards(ctx context.Context, userID, boardID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE board_id=$1 AND user_id=$2
		ORDER BY position ASC, created_at DESC
	`, boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := make([]Card, 0)
	index := map[string]int{}
	for rows.Next() {
		card, err := s.scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		card.Notes = []Note{}
		card.Attachments = []Attachment{}
		index[card.ID] = len(cards)
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	if len(cards) == 0 {
		return cards, nil
	}

	noteRows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.card_id, n.text, n.done, n.created_at
		FROM notes n
		JOIN cards c ON c.id = n.card_id
		WHERE c.board_id=$1 AND c.user_id=$2
		ORDER BY n.created_at ASC
	`, boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("list card notes: %w", err)
	}
	defer noteRows.Close()
	for noteRows.Next() {
		var note Note
		if err := noteRows.Scan(&note.ID, &note.CardID, &note.Text, &note.Done, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		if i, ok := index[note.CardID]; ok {
			cards[i].Notes = append(cards[i].Notes, note)
		}
	}
	if err := noteRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	attachments, err := s.ListBoardAttachments(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	for _, attachment := range attachments {
		if i, ok := index[attachment.CardID]; ok {
			cards[i].Attachments = append(cards[i].Attachments, attachment)
		}
	}
	return cards, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, userID, cardID string) (Card, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id=$1 AND user_id=$2`, cardID, userID)
	return s.scanCard(row)
}

func (s *PostgresStore) InsertCard(ctx context.Context, card Card) (Card, error) {
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO cards (user_id, board_id, title, summary, tags, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+cardColumns,
		card.UserID, card.BoardID, card.Title, card.Summary, tags, card.Position)
	created, err := s.scanCard(row)
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	return created, nil
}

// UpdateCard writes only the fields present in patch.
func (s *PostgresStore) UpdateCard(ctx context.Context, userID, cardID string, patch CardPatch) (Card, error) {
	tags := patch.Tags
	if tags == nil {
		tags = []string{}
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE cards
		SET title = COALESCE($3, title),
			summary = COALESCE($4, summary),
			tags = CASE WHEN $5 THEN $6::text[] ELSE tags END,
			updated_at = NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING `+cardColumns,
		cardID, userID, patch.Title, patch.Summary, patch.SetTags, tags)
	return s.scanCard(row)
}

func (s *PostgresStore) DeleteCard(ctx context.Context, userID, cardID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id=$1 AND user_id=$2`, cardID, userID)
	if err != nil {
		return false, fmt.Errorf("delete card: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete card rows: %w", err)
	}
	return affected > 0, nil
}

// ReorderCards assigns position i*10 to the card at index i. Ids that are
// not on the caller's board are skipped.
func (s *PostgresStore) ReorderCards(ctx context.Context, userID, boardID string, orderedIDs []string) error {
	return s.withTx(ctx, "reorder cards", func(tx *sql.Tx) error {
		for i, id := range orderedIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE cards SET position=$1, updated_at=NOW()
				WHERE id=$2 AND user_id=$3 AND board_id=$4
			`, i*10, id, userID, boardID); err != nil {
				return fmt.Errorf("reorder card %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) AppendCardTag(ctx context.Context, userID, cardID, tag string) (Card, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE cards SET tags=array_append(tags, $3), updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING `+cardColumns, cardID, userID, tag)
	return s.scanCard(row)
}

func (s *PostgresStore) RemoveCardTag(ctx context.Context, userID, cardID, tag string) (Card, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE cards SET tags=array_remove(tags, $3), updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING `+cardColumns, cardID, userID, tag)
	return s.scanCard(row)
}

func (s *PostgresStore) ListCardNotes(ctx context.Context, cardID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, text, done, created_at
		FROM notes
		WHERE card_id=$1
		ORDER BY created_at ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.CardID, &item.Text, &item.Done, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) (Note, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (card_id, text, done)
		VALUES ($1, $2, FALSE)
		RETURNING id, card_id, text, done, created_at
	`, note.CardID, note.Text).Scan(&note.ID, &note.CardID, &note.Text, &note.Done, &note.CreatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

// GetNote returns a checklist note along with the user id of its card.
func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		SELECT n.id, n.card_id, n.text, n.done, n.created_at, c.user_id
		FROM notes n
		JOIN cards c ON c.id = n.card_id
		WHERE n.id=$1
	`, noteID).Scan(&item.ID, &item.CardID, &item.Text, &item.Done, &item.CreatedAt, &item.OwnerID)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

// ToggleNote flips done in a single statement and returns the new note.
func (s *PostgresStore) ToggleNote(ctx context.Context, userID, noteID string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		UPDATE notes n SET done = NOT n.done
		FROM cards c
		WHERE n.id=$1 AND c.id = n.card_id AND c.user_id=$2
		RETURNING n.id, n.card_id, n.text, n.done, n.created_at, c.user_id
	`, noteID, userID).Scan(&item.ID, &item.CardID, &item.Text, &item.Done, &item.CreatedAt, &item.OwnerID)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateNoteText(ctx context.Context, userID, noteID, text string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		UPDATE notes n SET text=$3
		FROM cards c
		WHERE n.id=$1 AND c.id = n.card_id AND c.user_id=$2
		RETURNING n.id, n.card_id, n.text, n.done, n.created_at, c.user_id
	`, noteID, userID, text).Scan(&item.ID, &item.CardID, &item.Text, &item.Done, &item.CreatedAt, &item.OwnerID)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, userID, noteID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notes n
		USING cards c
		WHERE n.id=$1 AND c.id = n.card_id AND c.user_id=$2
	`, noteID, userID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete note rows: %w", err)
	}
	return affected > 0, nil
}

// InsertAttachments records every attachment in one transaction.
func (s *PostgresStore) InsertAttachments(ctx context.Context, attachments []Attachment) ([]Attachment, error) {
	saved := make([]Attachment, 0, len(attachments))
	err := s.withTx(ctx, "insert attachments", func(tx *sql.Tx) error {
		for _, attachment := range attachments {
			item := attachment
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO attachments (card_id, name, url, mime, size)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, created_at
			`, item.CardID, item.Name, item.URL, item.Mime, item.Size).Scan(&item.ID, &item.CreatedAt); err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
			saved = append(saved, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, userID, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.card_id, a.name, a.url, a.mime, a.size, a.created_at, c.user_id
		FROM attachments a
		JOIN cards c ON c.id = a.card_id
		WHERE a.id=$1 AND c.user_id=$2
	`, attachmentID, userID).Scan(&item.ID, &item.CardID, &item.Name, &item.URL, &item.Mime, &item.Size, &item.CreatedAt, &item.OwnerID)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, userID, attachmentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM attachments a
		USING cards c
		WHERE a.id=$1 AND c.id = a.card_id AND c.user_id=$2
	`, attachmentID, userID)
	if err != nil {
		return false, fmt.Errorf("delete attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete attachment rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListCardAttachments(ctx context.Context, userID, cardID string) ([]Attachment, error) {
	return s.queryAttachments(ctx, `
		SELECT a.id, a.card_id, a.name, a.url, a.mime, a.size, a.created_at, c.user_id
		FROM attachments a
		JOIN cards c ON c.id = a.card_id
		WHERE a.card_id=$1 AND c.user_id=$2
		ORDER BY a.created_at DESC
	`, cardID, userID)
}

func (s *PostgresStore) ListBoardAttachments(ctx context.Context, userID, boardID string) ([]Attachment, error) {
	return s.queryAttachments(ctx, `
		SELECT a.id, a.card_id, a.name, a.url, a.mime, a.size, a.created_at, c.user_id
		FROM attachments a
		JOIN cards c ON c.id = a.card_id
		WHERE c.board_id=$1 AND c.user_id=$2
		ORDER BY a.created_at DESC
	`, boardID, userID)
}

func (s *PostgresStore) queryAttachments(ctx context.Context, query string, args ...any) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.CardID, &item.Name, &item.URL, &item.Mime, &item.Size, &item.CreatedAt, &item.OwnerID); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}
