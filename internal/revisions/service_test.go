package revisions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteHistoryLifecycle(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir)

	history, err := svc.History("note-1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	first, changed, err := svc.Commit("note-1", Content{Title: "New note", FontSize: 16}, "Riley", "Save note")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, first.Hash, 7)
	_, err = os.Stat(filepath.Join(dir, "note-1", ".git"))
	require.NoError(t, err)

	second, changed, err := svc.Commit("note-1", Content{Title: "Groceries", Content: "<p>milk</p>", FontSize: 18}, "Riley", "Save note")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotEqual(t, first.Hash, second.Hash)

	t.Run("unchanged content makes no commit", func(t *testing.T) {
		same, changed, err := svc.Commit("note-1", Content{Title: "Groceries", Content: "<p>milk</p>", FontSize: 18}, "Riley", "Save note")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, second.Hash, same.Hash)
	})

	t.Run("history is newest first", func(t *testing.T) {
		history, err := svc.History("note-1", 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, second.Hash, history[0].Hash)
		assert.Equal(t, first.Hash, history[1].Hash)
		assert.Equal(t, "Riley", history[0].Author)
		assert.Equal(t, "Save note", history[0].Message)

		limited, err := svc.History("note-1", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("get by abbreviated hash", func(t *testing.T) {
		content, rev, err := svc.Get("note-1", first.Hash)
		require.NoError(t, err)
		assert.Equal(t, first.Hash, rev.Hash)
		assert.Equal(t, Content{Title: "New note", FontSize: 16}, content)
	})

	t.Run("unknown hash", func(t *testing.T) {
		_, _, err := svc.Get("note-1", "deadbee")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
		_, _, err = svc.Get("note-2", first.Hash)
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("delete drops the history", func(t *testing.T) {
		require.NoError(t, svc.Delete("note-1"))
		history, err := svc.History("note-1", 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestRejectsPathTraversal(t *testing.T) {
	svc := New(t.TempDir())
	for _, id := range []string{"", "../escape", "a/b", ".git"} {
		_, _, err := svc.Commit(id, Content{Title: "x"}, "Riley", "Save note")
		assert.Error(t, err, "note id %q", id)
	}
}

func TestConcurrentCommitsAreSerialized(t *testing.T) {
	svc := New(t.TempDir())
	_, _, err := svc.Commit("note-1", Content{Title: "start"}, "Riley", "Save note")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.Commit("note-1", Content{Title: fmt.Sprintf("v%d", i)}, "Riley", "Save note")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := svc.History("note-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 6)
}

func TestChanges(t *testing.T) {
	from := Content{Title: "a", Content: "<p>x</p>", FontSize: 16}
	assert.Empty(t, Changes(from, from))
	assert.Equal(t, []string{"content", "fontSize", "title"}, Changes(from, Content{Title: "b", Content: "<p>y</p>", FontSize: 18}))
	assert.Equal(t, []string{"title"}, Changes(from, Content{Title: "b", Content: "<p>x</p>", FontSize: 16}))
}

func TestSanitizeEmail(t *testing.T) {
	assert.Equal(t, "Riley.Stone", sanitizeEmail("Riley Stone"))
	assert.Equal(t, "user", sanitizeEmail("!!!"))
}
