package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreLoadAbsent(t *testing.T) {
	store := NewFileStore(t.TempDir(), newTestGenerator(""))

	doc, err := store.Load("alice")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestFileStoreSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rss")
	store := NewFileStore(dir, newTestGenerator(""))

	doc := &Document{
		Metadata: Metadata{Title: "Alice", Link: "https://x.com/alice", Language: "en"},
		Entries:  []Entry{{GUID: "t1", Title: "One", PublishedAt: "Mon, 01 Jan 2024 10:00:00 +0000"}},
	}

	path, err := store.Save("alice", doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alice.xml"), path)

	loaded, err := store.Load("alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, doc.Entries, loaded.Entries)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temporary files should not be left behind")
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.xml"), []byte("not a feed"), 0o644))

	_, err := NewFileStore(dir, newTestGenerator("")).Load("alice")
	assert.Error(t, err)
}

func TestFileStoreReadAndHandles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, newTestGenerator(""))

	_, _, err := store.Read("alice")
	assert.ErrorIs(t, err, ErrFeedNotFound)

	for _, handle := range []string{"bob", "alice"} {
		_, err := store.Save(handle, &Document{Metadata: Metadata{Title: handle}})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	data, modTime, err := store.Read("alice")
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>alice</title>")
	assert.False(t, modTime.IsZero())

	handles, err := store.Handles()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, handles)
}
