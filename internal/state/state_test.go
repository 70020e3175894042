package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_LoadMissingFileOK(t *testing.T) {
	root := t.TempDir()
	m := New(filepath.Join(root, ".chatsync", "state.json"))
	require.NoError(t, m.Load())
	_, ok := m.Draft("conv_1")
	require.False(t, ok)
}

func TestManager_DraftRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".chatsync", "state.json")
	m := New(path)
	require.NoError(t, m.Load())

	m.SaveDraft("conv_1", "half-written reply")
	m.SaveDraft("new:user_7", "first hello")
	require.NoError(t, m.SaveNow())

	loaded := New(path)
	require.NoError(t, loaded.Load())

	content, ok := loaded.Draft("conv_1")
	require.True(t, ok)
	require.Equal(t, "half-written reply", content)

	content, ok = loaded.Draft("new:user_7")
	require.True(t, ok)
	require.Equal(t, "first hello", content)

	loaded.DeleteDraft("conv_1")
	require.NoError(t, loaded.SaveNow())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	_, ok = reloaded.Draft("conv_1")
	require.False(t, ok)
}

func TestManager_EmptyContentDeletes(t *testing.T) {
	m := New("")
	m.SaveDraft("conv_1", "text")
	m.SaveDraft("conv_1", "")

	_, ok := m.Draft("conv_1")
	require.False(t, ok)
}

func TestManager_PrunesStaleDraftsOnSave(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".chatsync", "state.json")
	m := New(path)

	now := time.Now().UTC()
	m.mu.Lock()
	m.state.Drafts["fresh"] = Draft{Content: "keep", UpdatedAt: now}
	m.state.Drafts["stale"] = Draft{Content: "drop", UpdatedAt: now.Add(-(draftMaxAge + time.Hour))}
	m.dirty = true
	m.mu.Unlock()

	require.NoError(t, m.SaveNow())
	require.NoError(t, m.Load())

	_, ok := m.Draft("fresh")
	require.True(t, ok)
	_, ok = m.Draft("stale")
	require.False(t, ok)
}

func TestManager_LastConversationPersists(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".chatsync", "state.json")
	m := New(path)
	require.NoError(t, m.Load())

	m.SetLastConversation("conv_42")
	require.NoError(t, m.SaveNow())

	loaded := New(path)
	require.NoError(t, loaded.Load())
	require.Equal(t, "conv_42", loaded.LastConversation())
}

func TestManager_CloseFlushesDirtyState(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".chatsync", "state.json")
	m := New(path)
	require.NoError(t, m.Load())

	m.SaveDraft("conv_1", "unsaved")
	require.NoError(t, m.Close())

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(payload), "unsaved")
}

func TestManager_CorruptFileSurfacesError(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".chatsync", "state.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m := New(path)
	require.Error(t, m.Load())
}
