// Package websocket carries denkmit gossip through a websocket hub. A Hub
// relays published frames to every other connection subscribed to the
// topic; a Client connects one process to a hub and implements
// denkmit.Gossip.
package websocket

import (
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	opSubscribe   = "sub"
	opUnsubscribe = "unsub"
	opPublish     = "pub"
)

const (
	// Maximum frame size.
	wsReadLimit = 1 << 20
	// Disconnection timeout.
	wsPongLimit = 60 * time.Second
	// Ping period for connection liveness check.
	wsPingPeriod = wsPongLimit / 2
	// Write deadline.
	wsWriteLimit = wsPingPeriod / 2
	// Frames queued per connection before new ones are dropped.
	sendBufSize = 64
)

type frame struct {
	ID    string `cbor:"id"`
	From  string `cbor:"from"`
	Op    string `cbor:"op"`
	Topic string `cbor:"topic"`
	Data  []byte `cbor:"data,omitempty"`
}

var frameEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func (f *frame) marshal() ([]byte, error) {
	return frameEnc.Marshal(f)
}

func unmarshalFrame(b []byte) (*frame, error) {
	var f frame
	if err := cbor.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
