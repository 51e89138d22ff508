package artifacts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	store := &FileStore{BaseDir: t.TempDir(), BaseURL: "http://localhost:8700/"}

	ref, err := store.Save("alice@example.com", "sess_1", "cover_letter", "Dear team,")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref.URL, "http://localhost:8700/artifacts/"))
	require.NotContains(t, ref.URL, "//artifacts")

	content, err := store.Load("alice@example.com", "sess_1", "cover_letter")
	require.NoError(t, err)
	require.Equal(t, "Dear team,", content)
}

func TestSaveOverwrites(t *testing.T) {
	store := &FileStore{BaseDir: t.TempDir(), BaseURL: "http://localhost:8700"}

	_, err := store.Save("alice", "sess_1", "cold_email", "v1")
	require.NoError(t, err)
	_, err = store.Save("alice", "sess_1", "cold_email", "v2")
	require.NoError(t, err)

	content, err := store.Load("alice", "sess_1", "cold_email")
	require.NoError(t, err)
	require.Equal(t, "v2", content)
}

func TestSaveConfinesTraversingSessionID(t *testing.T) {
	base := t.TempDir()
	store := &FileStore{BaseDir: base, BaseURL: "http://localhost:8700"}

	ref, err := store.Save("alice", "../../../escape", "cv", "payload")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref.Path, base), "path %q escaped base dir", ref.Path)
	require.NotContains(t, ref.URL, "..")

	content, err := store.Load("alice", "../../../escape", "cv")
	require.NoError(t, err)
	require.Equal(t, "payload", content)
}

func TestLoadMissing(t *testing.T) {
	store := &FileStore{BaseDir: t.TempDir(), BaseURL: "http://localhost:8700"}

	_, err := store.Load("alice", "sess_1", "missing")
	require.Error(t, err)
}
