package leveldb

import (
	"context"
	"testing"

	"github.com/denkmit/denkmit/persist/persisttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersist(t *testing.T) {
	p, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer p.Close()
	persisttest.Run(t, p)
}

func TestReadOnly(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Store(context.Background(), "k", []byte("v")))
	require.NoError(t, p.Close())

	ro, err := Open(dir, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	v, err := ro.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
