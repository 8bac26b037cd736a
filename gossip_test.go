package denkmit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (i *inbox) add(b []byte) {
	i.mu.Lock()
	i.msgs = append(i.msgs, string(b))
	i.mu.Unlock()
}

func (i *inbox) get() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.msgs...)
}

func TestLocalGossip(t *testing.T) {
	t.Parallel()
	g := NewLocalGossip()
	a, b, c := g.Join(), g.Join(), g.Join()
	var inA, inB, inC, other inbox
	_, err := a.Subscribe("t", inA.add)
	require.NoError(t, err)
	unsubB, err := b.Subscribe("t", inB.add)
	require.NoError(t, err)
	_, err = c.Subscribe("t", inC.add)
	require.NoError(t, err)
	_, err = c.Subscribe("elsewhere", other.add)
	require.NoError(t, err)

	require.NoError(t, a.Publish(ctx, "t", []byte("one")))
	assert.Empty(t, inA.get())
	assert.Equal(t, []string{"one"}, inB.get())
	assert.Equal(t, []string{"one"}, inC.get())

	unsubB()
	unsubB()
	require.NoError(t, c.Publish(ctx, "t", []byte("two")))
	assert.Equal(t, []string{"two"}, inA.get())
	assert.Equal(t, []string{"one"}, inB.get())
	assert.Equal(t, []string{"one"}, inC.get())
	assert.Empty(t, other.get())
}

func TestLocalGossipCopiesData(t *testing.T) {
	t.Parallel()
	g := NewLocalGossip()
	a, b := g.Join(), g.Join()
	var got []byte
	_, err := b.Subscribe("t", func(data []byte) { got = data })
	require.NoError(t, err)
	msg := []byte("abc")
	require.NoError(t, a.Publish(ctx, "t", msg))
	msg[0] = 'x'
	assert.Equal(t, []byte("abc"), got)
}
