package websocket

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// subscriptions holds the local handlers of each topic.
type subscriptions struct {
	topics *xsync.MapOf[string, *topicHandlers]
	next   *atomic.Uint64
}

type topicHandlers struct {
	mu       sync.Mutex
	handlers map[uint64]func([]byte)
}

func newSubscriptions() subscriptions {
	return subscriptions{
		topics: xsync.NewMapOf[string, *topicHandlers](),
		next:   new(atomic.Uint64),
	}
}

// add registers fn. first reports whether it is the topic's only handler;
// remove unregisters it and reports whether none are left.
func (s subscriptions) add(topic string, fn func([]byte)) (first bool, remove func() bool) {
	t, _ := s.topics.LoadOrCompute(topic, func() *topicHandlers {
		return &topicHandlers{handlers: map[uint64]func([]byte){}}
	})
	key := s.next.Add(1)
	t.mu.Lock()
	first = len(t.handlers) == 0
	t.handlers[key] = fn
	t.mu.Unlock()
	return first, func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, key)
		return len(t.handlers) == 0
	}
}

func (s subscriptions) dispatch(topic string, data []byte) {
	t, ok := s.topics.Load(topic)
	if !ok {
		return
	}
	t.mu.Lock()
	handlers := make([]func([]byte), 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}
