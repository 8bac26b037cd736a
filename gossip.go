package denkmit

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Gossip carries head announcements between replicas. Messages are opaque
// bytes; delivery is best effort and a publisher does not receive its own
// messages.
type Gossip interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(topic string, onMessage func(data []byte)) (unsubscribe func(), err error)
}

// LocalGossip connects replicas that live in one process.
type LocalGossip struct {
	topics *xsync.MapOf[string, *localTopic]
	peers  atomic.Uint64
}

type localTopic struct {
	mu   sync.RWMutex
	subs map[uint64]localSub
	next uint64
}

type localSub struct {
	peer      uint64
	onMessage func([]byte)
}

func NewLocalGossip() *LocalGossip {
	return &LocalGossip{topics: xsync.NewMapOf[string, *localTopic]()}
}

// Join returns a Gossip endpoint on the hub.
func (g *LocalGossip) Join() Gossip {
	return &localPeer{hub: g, id: g.peers.Add(1)}
}

func (g *LocalGossip) topic(name string) *localTopic {
	t, _ := g.topics.LoadOrCompute(name, func() *localTopic {
		return &localTopic{subs: map[uint64]localSub{}}
	})
	return t
}

type localPeer struct {
	hub *LocalGossip
	id  uint64
}

func (p *localPeer) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := p.hub.topic(topic)
	t.mu.RLock()
	subs := make([]localSub, 0, len(t.subs))
	for _, s := range t.subs {
		if s.peer != p.id {
			subs = append(subs, s)
		}
	}
	t.mu.RUnlock()
	for _, s := range subs {
		s.onMessage(bytes.Clone(data))
	}
	return nil
}

func (p *localPeer) Subscribe(topic string, onMessage func([]byte)) (func(), error) {
	t := p.hub.topic(topic)
	t.mu.Lock()
	t.next++
	key := t.next
	t.subs[key] = localSub{peer: p.id, onMessage: onMessage}
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, key)
			t.mu.Unlock()
		})
	}, nil
}
