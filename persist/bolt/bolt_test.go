package bolt

import (
	"path/filepath"
	"testing"

	"github.com/denkmit/denkmit/persist/persisttest"
	"github.com/stretchr/testify/require"
)

func TestPersist(t *testing.T) {
	p, err := Open(filepath.Join(t.TempDir(), "db", "blocks.bolt"))
	require.NoError(t, err)
	defer p.Close()
	persisttest.Run(t, p)
}
