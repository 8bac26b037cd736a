package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/denkmit/denkmit"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is a denkmit.Gossip connected to a Hub. Handlers run on the
// client's read goroutine and must not block.
type Client struct {
	log  *zap.Logger
	id   string
	ws   *websocket.Conn
	send chan []byte

	subs subscriptions

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	err       atomic.Value
}

var _ denkmit.Gossip = (*Client)(nil)

// Dial connects to the hub at endpoint, a ws:// or wss:// URL.
func Dial(ctx context.Context, endpoint string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	c := &Client{
		log:      log,
		id:       uuid.NewString(),
		ws:       ws,
		send:     make(chan []byte, sendBufSize),
		subs:     newSubscriptions(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.reads()
	go c.writes()
	return c, nil
}

// ID identifies the client in the frames it sends.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) enqueue(ctx context.Context, f *frame) error {
	f.ID = uuid.NewString()
	f.From = c.id
	msg, err := f.marshal()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return c.closedErr()
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) closedErr() error {
	if err, ok := c.err.Load().(error); ok {
		return fmt.Errorf("%w: %v", denkmit.ErrClosed, err)
	}
	return denkmit.ErrClosed
}

func (c *Client) Publish(ctx context.Context, topic string, data []byte) error {
	return c.enqueue(ctx, &frame{Op: opPublish, Topic: topic, Data: data})
}

func (c *Client) Subscribe(topic string, onMessage func([]byte)) (func(), error) {
	first, remove := c.subs.add(topic, onMessage)
	if first {
		if err := c.enqueue(context.Background(), &frame{Op: opSubscribe, Topic: topic}); err != nil {
			remove()
			return nil, err
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if remove() {
				ctx, cancel := context.WithTimeout(context.Background(), wsWriteLimit)
				defer cancel()
				_ = c.enqueue(ctx, &frame{Op: opUnsubscribe, Topic: topic})
			}
		})
	}, nil
}

func (c *Client) reads() {
	defer c.stop(nil)
	c.ws.SetReadLimit(wsReadLimit)
	if err := c.ws.SetReadDeadline(time.Now().Add(wsPongLimit)); err != nil {
		c.stop(err)
		return
	}
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(wsPongLimit)) })
	c.ws.SetPingHandler(func(data string) error {
		if err := c.ws.SetReadDeadline(time.Now().Add(wsPongLimit)); err != nil {
			return err
		}
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wsWriteLimit))
	})
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.shutdown:
			default:
				c.log.Debug("websocket read failed", zap.Error(err))
				c.stop(err)
			}
			return
		}
		f, err := unmarshalFrame(msg)
		if err != nil {
			c.log.Debug("bad frame", zap.Error(err))
			continue
		}
		if f.Op == opPublish && f.From != c.id {
			c.subs.dispatch(f.Topic, f.Data)
		}
	}
}

func (c *Client) writes() {
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case <-c.shutdown:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteLimit))
			return
		case msg := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				c.stop(err)
				return
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.stop(err)
				return
			}
		case <-ping.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				c.stop(err)
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				c.stop(err)
				return
			}
		}
	}
}

func (c *Client) stop(err error) {
	c.closeOnce.Do(func() {
		if err != nil && !errors.Is(err, denkmit.ErrClosed) {
			c.err.Store(err)
		}
		close(c.shutdown)
		close(c.done)
	})
}

// Close disconnects from the hub.
func (c *Client) Close() error {
	c.stop(nil)
	return nil
}

// Done is closed once the connection has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
