package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/denkmit/denkmit"
	"github.com/denkmit/denkmit/persist/persisttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	p, err := NewPersistForPath(filepath.Join(dir, "blocks"))
	require.NoError(t, err)

	err = p.Store(ctx, "foo", []byte("hello"))
	require.NoError(t, err)
	loaded, err := p.Load(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), loaded)

	// blocks are immutable, a second store is a no-op
	err = p.Store(ctx, "foo", []byte("other"))
	require.NoError(t, err)
	loaded, err = p.Load(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), loaded)

	entries, err := os.ReadDir(filepath.Join(dir, "blocks"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFilesNotFound(t *testing.T) {
	t.Parallel()
	p, err := NewPersistForPath(t.TempDir())
	require.NoError(t, err)
	_, err = p.Load(ctx, "missing")
	assert.ErrorIs(t, err, denkmit.ErrNotFound)
}

func TestFilesDataset(t *testing.T) {
	t.Parallel()
	p, err := NewPersistForPath(t.TempDir())
	require.NoError(t, err)

	db, err := denkmit.Create[string](ctx, denkmit.Config{Persist: p, Name: "files"}, denkmit.StringCodec{})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Set(ctx, "a", "1"))
	require.NoError(t, db.Set(ctx, "b", "2"))
	head, err := db.CreateHead(ctx)
	require.NoError(t, err)

	other, err := denkmit.Open[string](ctx, db.Address(), denkmit.Config{Persist: p}, denkmit.StringCodec{})
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.Load(ctx, head))
	v, err := other.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestFilesConformance(t *testing.T) {
	p, err := NewPersistForPath(t.TempDir())
	require.NoError(t, err)
	persisttest.Run(t, p)
}
