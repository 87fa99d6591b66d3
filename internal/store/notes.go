package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userNoteColumns = `id, user_id, folder_id, title, content, plain_text, font_size, position, created_at, updated_at`

type rowScanner interface {
	Scan(...any) error
}

func scanUserNote(row rowScanner) (UserNote, error) {
	var item UserNote
	var folderID sql.NullString
	err := row.Scan(&item.ID, &item.UserID, &folderID, &item.Title, &item.Content, &item.PlainText, &item.FontSize, &item.Position, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return UserNote{}, err
	}
	if folderID.Valid {
		value := folderID.String
		item.FolderID = &value
	}
	return item, nil
}

func scanFolder(row rowScanner) (NoteFolder, error) {
	var item NoteFolder
	if err := row.Scan(&item.ID, &item.UserID, &item.Name, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return NoteFolder{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListFolders(ctx context.Context, userID string) ([]NoteFolder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, position, created_at, updated_at
		FROM note_folders
		WHERE user_id=$1
		ORDER BY position ASC, created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	items := make([]NoteFolder, 0)
	for rows.Next() {
		item, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, userID, folderID string) (NoteFolder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, position, created_at, updated_at
		FROM note_folders
		WHERE id=$1 AND user_id=$2
	`, folderID, userID)
	return scanFolder(row)
}

// CreateFolder appends a folder after the user's existing ones.
func (s *PostgresStore) CreateFolder(ctx context.Context, userID, name string) (NoteFolder, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO note_folders (user_id, name, position)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position) + 1, 0) FROM note_folders WHERE user_id=$1))
		RETURNING id, user_id, name, position, created_at, updated_at
	`, userID, name)
	item, err := scanFolder(row)
	if err != nil {
		return NoteFolder{}, fmt.Errorf("create folder: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) RenameFolder(ctx context.Context, userID, folderID, name string) (NoteFolder, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE note_folders SET name=$3, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING id, user_id, name, position, created_at, updated_at
	`, folderID, userID, name)
	return scanFolder(row)
}

// DeleteFolder moves the folder's notes to the uncategorized group, appended
// after the notes already there, then removes the folder.
func (s *PostgresStore) DeleteFolder(ctx context.Context, userID, folderID string) (bool, error) {
	deleted := false
	err := s.withTx(ctx, "delete folder", func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM note_folders WHERE id=$1 AND user_id=$2 FOR UPDATE`, folderID, userID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock folder: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_notes n
			SET folder_id = NULL,
				position = base.next + moved.rn - 1,
				updated_at = NOW()
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY position ASC, created_at ASC) AS rn
				FROM user_notes
				WHERE user_id=$1 AND folder_id=$2
			) moved,
			(
				SELECT COALESCE(MAX(position) + 1, 0) AS next
				FROM user_notes
				WHERE user_id=$1 AND folder_id IS NULL
			) base
			WHERE n.id = moved.id
		`, userID, folderID); err != nil {
			return fmt.Errorf("move folder notes: %w", err)
		}

		if err := renumberNotes(ctx, tx, userID, nil); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM note_folders WHERE id=$1 AND user_id=$2`, folderID, userID); err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// renumberNotes rewrites positions of a folder's notes to 0..n-1, keeping
// their current order.
func renumberNotes(ctx context.Context, tx *sql.Tx, userID string, folderID *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_notes n
		SET position = ordered.rn - 1
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY position ASC, created_at ASC) AS rn
			FROM user_notes
			WHERE user_id=$1 AND folder_id IS NOT DISTINCT FROM $2
		) ordered
		WHERE n.id = ordered.id AND n.position <> ordered.rn - 1
	`, userID, folderID)
	if err != nil {
		return fmt.Errorf("renumber notes: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUserNotes(ctx context.Context, userID string) ([]UserNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userNoteColumns+`
		FROM user_notes
		WHERE user_id=$1
		ORDER BY folder_id ASC, position ASC, created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user notes: %w", err)
	}
	defer rows.Close()

	items := make([]UserNote, 0)
	for rows.Next() {
		item, err := scanUserNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetUserNote(ctx context.Context, userID, noteID string) (UserNote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userNoteColumns+` FROM user_notes WHERE id=$1 AND user_id=$2`, noteID, userID)
	return scanUserNote(row)
}

// CreateUserNote inserts the note at the end of its folder.
func (s *PostgresStore) CreateUserNote(ctx context.Context, note UserNote) (UserNote, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO user_notes (user_id, folder_id, title, content, plain_text, font_size, position)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM user_notes WHERE user_id=$1 AND folder_id IS NOT DISTINCT FROM $2))
		RETURNING `+userNoteColumns,
		note.UserID, note.FolderID, note.Title, note.Content, note.PlainText, note.FontSize)
	item, err := scanUserNote(row)
	if err != nil {
		return UserNote{}, fmt.Errorf("create user note: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateUserNote(ctx context.Context, userID string, note UserNote) (UserNote, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE user_notes
		SET title=$3, content=$4, plain_text=$5, font_size=$6, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING `+userNoteColumns,
		note.ID, userID, note.Title, note.Content, note.PlainText, note.FontSize)
	return scanUserNote(row)
}

// DeleteUserNote removes the note and closes the gap in its folder.
func (s *PostgresStore) DeleteUserNote(ctx context.Context, userID, noteID string) (bool, error) {
	deleted := false
	err := s.withTx(ctx, "delete user note", func(tx *sql.Tx) error {
		var folderID sql.NullString
		err := tx.QueryRowContext(ctx, `
			DELETE FROM user_notes WHERE id=$1 AND user_id=$2
			RETURNING folder_id
		`, noteID, userID).Scan(&folderID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete user note: %w", err)
		}
		deleted = true
		return renumberNotes(ctx, tx, userID, nullableString(folderID))
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// MoveUserNote appends the note to the target folder and renumbers the folder
// it came from. Moving within the same folder leaves positions untouched.
func (s *PostgresStore) MoveUserNote(ctx context.Context, userID, noteID string, folderID *string) (UserNote, error) {
	var moved UserNote
	err := s.withTx(ctx, "move user note", func(tx *sql.Tx) error {
		current, err := scanUserNote(tx.QueryRowContext(ctx, `
			SELECT `+userNoteColumns+` FROM user_notes WHERE id=$1 AND user_id=$2 FOR UPDATE
		`, noteID, userID))
		if err != nil {
			return err
		}
		if sameFolder(current.FolderID, folderID) {
			moved = current
			return nil
		}

		moved, err = scanUserNote(tx.QueryRowContext(ctx, `
			UPDATE user_notes
			SET folder_id=$3,
				position=(SELECT COALESCE(MAX(position) + 1, 0) FROM user_notes WHERE user_id=$2 AND folder_id IS NOT DISTINCT FROM $3),
				updated_at=NOW()
			WHERE id=$1 AND user_id=$2
			RETURNING `+userNoteColumns,
			noteID, userID, folderID))
		if err != nil {
			return fmt.Errorf("move user note: %w", err)
		}
		return renumberNotes(ctx, tx, userID, current.FolderID)
	})
	if err != nil {
		return UserNote{}, err
	}
	return moved, nil
}

// ReorderUserNotes sets position i on the note at index i. Notes outside the
// folder or owned by someone else are skipped.
func (s *PostgresStore) ReorderUserNotes(ctx context.Context, userID string, folderID *string, orderedIDs []string) error {
	return s.withTx(ctx, "reorder user notes", func(tx *sql.Tx) error {
		for i, id := range orderedIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE user_notes SET position=$1
				WHERE id=$2 AND user_id=$3 AND folder_id IS NOT DISTINCT FROM $4
			`, i, id, userID, folderID); err != nil {
				return fmt.Errorf("reorder user note %s: %w", id, err)
			}
		}
		return nil
	})
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func sameFolder(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
