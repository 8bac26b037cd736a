// Package persisttest checks that a denkmit.Persist behaves the way the
// block store expects.
package persisttest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/denkmit/denkmit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises p with raw blocks and with a small dataset.
func Run(t *testing.T, p denkmit.Persist) {
	ctx := context.Background()

	t.Run("roundtrip", func(t *testing.T) {
		require.NoError(t, p.Store(ctx, "k1", []byte("v1")))
		v, err := p.Load(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), v)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := p.Load(ctx, "no-such-key")
		assert.ErrorIs(t, err, denkmit.ErrNotFound)
	})

	t.Run("concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("c%d", i)
				assert.NoError(t, p.Store(ctx, key, []byte(key)))
			}(i)
		}
		wg.Wait()
		for i := 0; i < 8; i++ {
			key := fmt.Sprintf("c%d", i)
			v, err := p.Load(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, key, string(v))
		}
	})

	t.Run("dataset", func(t *testing.T) {
		db, err := denkmit.Create[string](ctx, denkmit.Config{Persist: p, Name: "persisttest", Order: 1}, denkmit.StringCodec{})
		require.NoError(t, err)
		defer db.Close()
		for i := 0; i < 10; i++ {
			require.NoError(t, db.Set(ctx, fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)))
		}
		head, err := db.CreateHead(ctx)
		require.NoError(t, err)

		blocks := denkmit.NewBlocks(p, db.Blocks().Hash(), nil)
		got, err := denkmit.FetchHead(ctx, blocks, denkmit.NewVerifier(blocks, 16), head.ID)
		require.NoError(t, err)
		assert.Equal(t, head.Root, got.Root)
		assert.Equal(t, 10, got.Size)
	})
}
