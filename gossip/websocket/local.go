package websocket

import (
	"context"
	"sync"

	"github.com/denkmit/denkmit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalPeer is a Gossip endpoint living in the hub's own process. It
// exchanges frames with remote clients without a network round trip.
type LocalPeer struct {
	hub  *Hub
	peer *hubPeer
	id   string
	subs subscriptions

	done      chan struct{}
	closeOnce sync.Once
}

var _ denkmit.Gossip = (*LocalPeer)(nil)

// Local joins the hub from inside its process.
func (h *Hub) Local() *LocalPeer {
	p := &LocalPeer{
		hub:  h,
		peer: &hubPeer{send: make(chan []byte, sendBufSize), topics: map[string]struct{}{}},
		id:   uuid.NewString(),
		subs: newSubscriptions(),
		done: make(chan struct{}),
	}
	go p.reads()
	return p
}

func (p *LocalPeer) Publish(ctx context.Context, topic string, data []byte) error {
	select {
	case <-p.done:
		return denkmit.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	f := &frame{ID: uuid.NewString(), From: p.id, Op: opPublish, Topic: topic, Data: data}
	msg, err := f.marshal()
	if err != nil {
		return err
	}
	p.hub.relay(topic, p.peer, msg, f.ID)
	return nil
}

func (p *LocalPeer) Subscribe(topic string, onMessage func([]byte)) (func(), error) {
	select {
	case <-p.done:
		return nil, denkmit.ErrClosed
	default:
	}
	first, remove := p.subs.add(topic, onMessage)
	if first {
		p.hub.subscribers(topic).Store(p.peer, struct{}{})
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if remove() {
				p.hub.leave(topic, p.peer)
			}
		})
	}, nil
}

func (p *LocalPeer) reads() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.peer.send:
			f, err := unmarshalFrame(msg)
			if err != nil {
				p.hub.log.Debug("bad frame", zap.Error(err))
				continue
			}
			p.subs.dispatch(f.Topic, f.Data)
		}
	}
}

// Close leaves every topic.
func (p *LocalPeer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.hub.topics.Range(func(topic string, subs *peerSet) bool {
			subs.Delete(p.peer)
			return true
		})
	})
	return nil
}
