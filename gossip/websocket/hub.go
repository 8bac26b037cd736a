package websocket

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

type peerSet = xsync.MapOf[*hubPeer, struct{}]

// Hub relays frames between websocket connections and local peers.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	topics   *xsync.MapOf[string, *peerSet]
	peers    atomic.Int64
}

type hubPeer struct {
	send   chan []byte
	topics map[string]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		topics:   xsync.NewMapOf[string, *peerSet](),
	}
}

// Peers is the number of open websocket connections.
func (h *Hub) Peers() int {
	return int(h.peers.Load())
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	p := &hubPeer{send: make(chan []byte, sendBufSize), topics: map[string]struct{}{}}
	h.peers.Add(1)
	done := make(chan struct{})
	go h.writes(ws, p, done)
	h.reads(ws, p)
	close(done)
	for topic := range p.topics {
		h.leave(topic, p)
	}
	h.peers.Add(-1)
}

func (h *Hub) subscribers(topic string) *peerSet {
	subs, _ := h.topics.LoadOrCompute(topic, func() *peerSet {
		return xsync.NewMapOf[*hubPeer, struct{}]()
	})
	return subs
}

func (h *Hub) leave(topic string, p *hubPeer) {
	if subs, ok := h.topics.Load(topic); ok {
		subs.Delete(p)
	}
}

func (h *Hub) reads(ws *websocket.Conn, p *hubPeer) {
	ws.SetReadLimit(wsReadLimit)
	if err := ws.SetReadDeadline(time.Now().Add(wsPongLimit)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(wsPongLimit)) })
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := unmarshalFrame(msg)
		if err != nil {
			h.log.Debug("bad frame", zap.Error(err))
			return
		}
		switch f.Op {
		case opSubscribe:
			p.topics[f.Topic] = struct{}{}
			h.subscribers(f.Topic).Store(p, struct{}{})
		case opUnsubscribe:
			delete(p.topics, f.Topic)
			h.leave(f.Topic, p)
		case opPublish:
			h.relay(f.Topic, p, msg, f.ID)
		default:
			h.log.Debug("unknown frame op", zap.String("op", f.Op))
		}
	}
}

func (h *Hub) relay(topic string, from *hubPeer, msg []byte, id string) {
	subs, ok := h.topics.Load(topic)
	if !ok {
		return
	}
	subs.Range(func(p *hubPeer, _ struct{}) bool {
		if p == from {
			return true
		}
		select {
		case p.send <- msg:
		default:
			h.log.Debug("peer too slow, dropping frame", zap.String("frame", id), zap.String("topic", topic))
		}
		return true
	})
}

func (h *Hub) writes(ws *websocket.Conn, p *hubPeer, done <-chan struct{}) {
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		ws.Close()
	}()
	for {
		select {
		case <-done:
			return
		case msg := <-p.send:
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
