// Package realtime maintains the publish/subscribe connection to the
// task service's message broker.
//
// A Channel owns one background connection loop. It dials, re-subscribes
// every live topic, dispatches inbound frames to handlers and delivers
// queued publishes. When the session is lost it waits ReconnectDelay and
// starts over; only Close ends the loop.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// State is the connection state of a Channel.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Message is an inbound frame delivered to a Handler.
type Message struct {
	Topic string
	Body  []byte
}

// Handler receives messages for one topic. Handlers run on the channel's
// goroutine and must not block.
type Handler func(Message)

// Options configures a Channel. Zero values take the defaults.
type Options struct {
	ReconnectDelay    time.Duration
	PublishRetryDelay time.Duration
	Logger            *log.Logger
}

const (
	defaultReconnectDelay    = 5 * time.Second
	defaultPublishRetryDelay = 500 * time.Millisecond
)

type outbound struct {
	destination string
	body        []byte
}

// Channel is a self-healing broker connection.
type Channel struct {
	dialer Dialer
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	state    State
	lastErr  error
	conn     Conn
	subs     map[string][]*Subscription
	watchers map[int]func(State)
	nextID   int
	outbox   []outbound
	started  bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Channel. Nothing is dialed until Connect.
func New(dialer Dialer, opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.PublishRetryDelay <= 0 {
		opts.PublishRetryDelay = defaultPublishRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "realtime: ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		dialer:   dialer,
		opts:     opts,
		logger:   logger,
		subs:     make(map[string][]*Subscription),
		watchers: make(map[int]func(State)),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect starts the background connection loop. Calling it again is a
// no-op.
func (c *Channel) Connect() *Channel {
	c.mu.Lock()
	if c.started || c.ctx.Err() != nil {
		c.mu.Unlock()
		return c
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
	return c
}

// Close stops the connection loop and closes the live session, if any.
func (c *Channel) Close() error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if started {
		<-c.done
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.setState(Disconnected, nil)
	return err
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent TransportError or ProtocolError.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Watch registers fn to be called on every state change. The returned
// func removes it.
func (c *Channel) Watch(fn func(State)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Subscription is one handler registered on a topic. Subscriptions
// survive reconnects.
type Subscription struct {
	ch      *Channel
	topic   string
	handler Handler
	once    sync.Once
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe removes the handler. The broker subscription is dropped
// once the topic has no handlers left.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.ch.unsubscribe(s) })
}

// Subscribe registers handler for topic. If the channel is connected the
// broker subscription is made immediately, otherwise on the next connect.
func (c *Channel) Subscribe(topic string, handler Handler) *Subscription {
	sub := &Subscription{ch: c, topic: topic, handler: handler}

	c.mu.Lock()
	first := len(c.subs[topic]) == 0
	c.subs[topic] = append(c.subs[topic], sub)
	conn := c.conn
	var err error
	if first && conn != nil {
		err = conn.Subscribe(topic)
		if err != nil {
			c.lastErr = &TransportError{Op: "subscribe " + topic, Err: err}
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Printf("subscribe %s: %v", topic, err)
	}
	return sub
}

func (c *Channel) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	subs := c.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	var err error
	if len(subs) == 0 {
		delete(c.subs, sub.topic)
		if c.conn != nil {
			err = c.conn.Unsubscribe(sub.topic)
		}
	} else {
		c.subs[sub.topic] = subs
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Printf("unsubscribe %s: %v", sub.topic, err)
	}
}

// Publish queues payload, JSON-encoded, for destination. Delivery happens
// in the background and is retried while the channel is disconnected, so
// Publish may be called before the first connect. Only an encoding
// failure is returned.
func (c *Channel) Publish(destination string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding message for %s: %w", destination, err)
	}

	c.mu.Lock()
	c.outbox = append(c.outbox, outbound{destination: destination, body: body})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of publishes not yet handed to the broker.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}

// run is the connection loop.
func (c *Channel) run() {
	defer close(c.done)

	for {
		if c.ctx.Err() != nil {
			return
		}

		c.setState(Connecting, nil)
		conn, err := c.dialer.Dial(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.fail(&TransportError{Op: "dial", Err: err})
			if !c.sleep(c.opts.ReconnectDelay) {
				return
			}
			continue
		}
		if c.ctx.Err() != nil {
			_ = conn.Close()
			return
		}

		if err := c.attach(conn); err != nil {
			_ = conn.Close()
			c.fail(&TransportError{Op: "subscribe", Err: err})
			if !c.sleep(c.opts.ReconnectDelay) {
				return
			}
			continue
		}

		c.logger.Printf("connected")
		if !c.serve(conn) {
			return
		}
		if !c.sleep(c.opts.ReconnectDelay) {
			return
		}
	}
}

// attach re-subscribes every live topic on conn and then publishes it as
// the current session.
func (c *Channel) attach(conn Conn) error {
	c.mu.Lock()
	for topic, subs := range c.subs {
		if len(subs) == 0 {
			continue
		}
		if err := conn.Subscribe(topic); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%s: %w", topic, err)
		}
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)
	return nil
}

// serve pumps conn until it is lost (returns true) or the channel is
// closed (returns false).
func (c *Channel) serve(conn Conn) bool {
	retry := time.NewTicker(c.opts.PublishRetryDelay)
	defer retry.Stop()

	c.flush(conn)

	for {
		select {
		case <-c.ctx.Done():
			return false

		case f := <-conn.Frames():
			c.handleFrame(f)

		case <-conn.Done():
			c.drain(conn)
			c.detach(conn, &TransportError{Op: "receive", Err: ErrConnectionLost})
			return true

		case <-c.wake:
			c.flush(conn)

		case <-retry.C:
			c.flush(conn)
		}
	}
}

// drain delivers frames that were buffered before the session ended.
func (c *Channel) drain(conn Conn) {
	for {
		select {
		case f := <-conn.Frames():
			c.handleFrame(f)
		default:
			return
		}
	}
}

func (c *Channel) handleFrame(f Frame) {
	if f.Err != nil {
		var pe *ProtocolError
		if !errors.As(f.Err, &pe) {
			pe = &ProtocolError{Message: f.Err.Error()}
		}
		c.record(pe)
		c.logger.Printf("%s: %v", f.Topic, pe)
		return
	}

	c.mu.Lock()
	subs := append([]*Subscription(nil), c.subs[f.Topic]...)
	c.mu.Unlock()

	msg := Message{Topic: f.Topic, Body: f.Body}
	for _, s := range subs {
		s.handler(msg)
	}
}

// flush hands queued publishes to conn. On a send failure the remainder
// stays queued for the next attempt.
func (c *Channel) flush(conn Conn) {
	c.mu.Lock()
	pending := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	for i, m := range pending {
		err := conn.Send(m.destination, m.body)
		if err == nil {
			continue
		}

		if IsProtocolError(err) {
			c.record(err)
			c.logger.Printf("publish %s rejected: %v", m.destination, err)
			continue
		}

		rest := append([]outbound(nil), pending[i:]...)
		c.mu.Lock()
		c.outbox = append(rest, c.outbox...)
		c.mu.Unlock()

		c.record(&TransportError{Op: "send " + m.destination, Err: err})
		c.logger.Printf("publish %s: %v (will retry)", m.destination, err)
		return
	}
}

// detach forgets conn after it was lost.
func (c *Channel) detach(conn Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	_ = conn.Close()
	c.fail(err)
}

// fail records err and moves to Disconnected.
func (c *Channel) fail(err error) {
	c.logger.Printf("%v", err)
	c.setState(Disconnected, err)
}

func (c *Channel) record(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// setState updates the state (and the last error when err is non-nil)
// and notifies watchers if the state changed.
func (c *Channel) setState(s State, err error) {
	c.mu.Lock()
	if err != nil {
		c.lastErr = err
	}
	changed := c.state != s
	c.state = s
	var watchers []func(State)
	if changed {
		for _, w := range c.watchers {
			watchers = append(watchers, w)
		}
	}
	c.mu.Unlock()

	for _, w := range watchers {
		w(s)
	}
}

func (c *Channel) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
