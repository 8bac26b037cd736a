package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/denkmit/denkmit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var ctx = context.Background()

func newHub(t *testing.T) string {
	srv := httptest.NewServer(NewHub(zap.NewNop()))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	c, err := Dial(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRelay(t *testing.T) {
	t.Parallel()
	url := newHub(t)
	a, b := dial(t, url), dial(t, url)

	gotA := make(chan []byte, 16)
	gotB := make(chan []byte, 16)
	_, err := a.Subscribe("topic", func(data []byte) { gotA <- data })
	require.NoError(t, err)
	_, err = b.Subscribe("topic", func(data []byte) { gotB <- data })
	require.NoError(t, err)

	// subscriptions reach the hub asynchronously
	require.Eventually(t, func() bool {
		assert.NoError(t, b.Publish(ctx, "topic", []byte("hello")))
		select {
		case data := <-gotA:
			assert.Equal(t, []byte("hello"), data)
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case data := <-gotB:
		t.Fatalf("publisher received its own frame %q", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	url := newHub(t)
	a, b := dial(t, url), dial(t, url)

	got := make(chan []byte, 64)
	unsubscribe, err := a.Subscribe("t", func(data []byte) { got <- data })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		assert.NoError(t, b.Publish(ctx, "t", []byte("x")))
		select {
		case <-got:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	time.Sleep(50 * time.Millisecond)
	for len(got) > 0 {
		<-got
	}
	require.NoError(t, b.Publish(ctx, "t", []byte("y")))
	select {
	case data := <-got:
		t.Fatalf("received %q after unsubscribe", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClosedClient(t *testing.T) {
	t.Parallel()
	c := dial(t, newHub(t))
	require.NoError(t, c.Close())
	<-c.Done()
	err := c.Publish(ctx, "t", []byte("x"))
	assert.ErrorIs(t, err, denkmit.ErrClosed)
}

func TestReplicasConverge(t *testing.T) {
	t.Parallel()
	url := newHub(t)
	store := denkmit.NewInMemoryStore()

	a, err := denkmit.Create[string](ctx, denkmit.Config{
		Persist:           store,
		Gossip:            dial(t, url),
		BroadcastInterval: 20 * time.Millisecond,
		Logger:            zaptest.NewLogger(t),
		Name:              "ws",
	}, denkmit.StringCodec{})
	require.NoError(t, err)
	defer a.Close()

	b, err := denkmit.Open[string](ctx, a.Address(), denkmit.Config{
		Persist:           store,
		Gossip:            dial(t, url),
		BroadcastInterval: 20 * time.Millisecond,
		Logger:            zaptest.NewLogger(t),
	}, denkmit.StringCodec{})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Set(ctx, "one", "1"))
	require.NoError(t, a.Set(ctx, "two", "2"))
	require.NoError(t, b.Set(ctx, "three", "3"))

	require.Eventually(t, func() bool {
		return a.Size() == 3 && b.Size() == 3
	}, 10*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		ra, errA := a.Root()
		rb, errB := b.Root()
		return errA == nil && errB == nil && ra.Equal(rb)
	}, 10*time.Second, 20*time.Millisecond)

	v, err := b.Get(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
