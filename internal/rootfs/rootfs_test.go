package rootfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileWithinRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))

	root, err := Open(dir)
	require.NoError(t, err)

	f, err := root.OpenFile("hello.txt")
	require.NoError(t, err)
	defer f.Close()

	size, err := f.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)
}

func TestOpenFileContainsTraversalWithinRoot(t *testing.T) {
	outer := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outer, "secret.txt"), []byte("secret"), 0o644))
	inner := filepath.Join(outer, "served")
	require.NoError(t, os.Mkdir(inner, 0o755))

	root, err := Open(inner)
	require.NoError(t, err)

	// A "../secret.txt" request must not escape inner and read outer's file;
	// it is remapped to stay under inner, where nothing exists.
	_, err = root.OpenFile("../secret.txt")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestOpenFileMissingIsClassifiedNotFound(t *testing.T) {
	dir := t.TempDir()
	root, err := Open(dir)
	require.NoError(t, err)

	_, err = root.OpenFile("missing.txt")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestCreateWithinRootTruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content"), 0o644))

	root, err := Open(dir)
	require.NoError(t, err)

	f, err := root.Create("out.txt")
	require.NoError(t, err)
	_, err = f.WriteString("new")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(contents))
}
