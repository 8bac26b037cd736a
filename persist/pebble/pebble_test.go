package pebble

import (
	"testing"

	"github.com/denkmit/denkmit/persist/persisttest"
	"github.com/stretchr/testify/require"
)

func TestPersist(t *testing.T) {
	p, err := Open(t.TempDir(), true)
	require.NoError(t, err)
	defer p.Close()
	persisttest.Run(t, p)
}
