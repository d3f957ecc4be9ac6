package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nhle/taskpulse/internal/realtime"
)

// Sent is a message a client published to a destination.
type Sent struct {
	Destination string
	Body        []byte
}

// Broker is an in-memory message broker implementing realtime.Dialer.
type Broker struct {
	mu      sync.Mutex
	conns   map[*brokerConn]struct{}
	dialErr error
	dials   int
	sent    []Sent
}

// NewBroker returns an empty broker that accepts every dial.
func NewBroker() *Broker {
	return &Broker{conns: make(map[*brokerConn]struct{})}
}

// Dial implements realtime.Dialer.
func (b *Broker) Dial(ctx context.Context) (realtime.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	c := &brokerConn{
		broker: b,
		frames: make(chan realtime.Frame, 256),
		done:   make(chan struct{}),
		subs:   make(map[string]bool),
	}
	b.conns[c] = struct{}{}
	return c, nil
}

// FailDials makes every following dial fail with err until called with nil.
func (b *Broker) FailDials(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// Dials returns how many dials were attempted.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Publish delivers body on topic to every live subscribed session and
// returns how many received it.
func (b *Broker) Publish(topic string, body []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for c := range b.conns {
		if c.subs[topic] && !c.closed {
			c.frames <- realtime.Frame{Topic: topic, Body: body}
			n++
		}
	}
	return n
}

// PublishJSON encodes v and publishes it on topic.
func (b *Broker) PublishJSON(t *testing.T, topic string, v interface{}) int {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encoding %T: %v", v, err)
	}
	return b.Publish(topic, body)
}

// Reject sends a broker error frame on topic to every live session.
func (b *Broker) Reject(topic, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.conns {
		if !c.closed {
			c.frames <- realtime.Frame{Topic: topic, Err: &realtime.ProtocolError{Message: message}}
		}
	}
}

// DropAll ends every live session as a socket failure would.
func (b *Broker) DropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.conns {
		c.closeLocked()
	}
}

// Subscribed reports whether any live session is subscribed to topic.
func (b *Broker) Subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.conns {
		if !c.closed && c.subs[topic] {
			return true
		}
	}
	return false
}

// Sent returns every message clients published, in order.
func (b *Broker) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// SentTo returns the bodies published to destination.
func (b *Broker) SentTo(destination string) [][]byte {
	var out [][]byte
	for _, s := range b.Sent() {
		if s.Destination == destination {
			out = append(out, s.Body)
		}
	}
	return out
}

// WaitFor polls cond until it holds or a second passes.
func WaitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

var errClosed = errors.New("connection closed")

type brokerConn struct {
	broker *Broker
	frames chan realtime.Frame
	done   chan struct{}
	subs   map[string]bool
	closed bool
}

func (c *brokerConn) Subscribe(topic string) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.subs[topic] = true
	return nil
}

func (c *brokerConn) Unsubscribe(topic string) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	delete(c.subs, topic)
	return nil
}

func (c *brokerConn) Send(destination string, body []byte) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.broker.sent = append(c.broker.sent, Sent{Destination: destination, Body: body})
	return nil
}

func (c *brokerConn) Frames() <-chan realtime.Frame { return c.frames }
func (c *brokerConn) Done() <-chan struct{}         { return c.done }

func (c *brokerConn) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *brokerConn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	delete(c.broker.conns, c)
}
