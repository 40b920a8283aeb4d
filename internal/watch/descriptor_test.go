package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDescriptorMissingFile(t *testing.T) {
	d := NewDescriptor(filepath.Join(t.TempDir(), "nope.toml"))

	_, _, err := d.Check()
	require.Error(t, err)
}

func TestDescriptorStaleOnlyAfterCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.toml")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	require.NoError(t, os.WriteFile(path, []byte("a = 1\n"), 0644))
	require.NoError(t, os.Chtimes(path, base, base))

	d := NewDescriptor(path)

	// Before any commit everything is stale.
	stale, mtime, err := d.Check()
	require.NoError(t, err)
	require.True(t, stale)
	require.Equal(t, base, mtime)

	d.Commit(mtime)

	stale, _, err = d.Check()
	require.NoError(t, err)
	require.False(t, stale)

	// Advancing the file's mtime makes it stale again.
	require.NoError(t, os.Chtimes(path, base.Add(2*time.Second), base.Add(2*time.Second)))
	stale, mtime, err = d.Check()
	require.NoError(t, err)
	require.True(t, stale)

	// A failed reload never commits, so the next check still reports stale.
	stale, _, err = d.Check()
	require.NoError(t, err)
	require.True(t, stale)

	d.Commit(mtime)
	stale, _, err = d.Check()
	require.NoError(t, err)
	require.False(t, stale)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "unchanged", Unchanged.String())
	require.Equal(t, "reloaded", Reloaded.String())
	require.Equal(t, "failed", Failed.String())
}
