package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// StompDialer opens STOMP 1.2 sessions over a WebSocket. URL is the raw
// WebSocket endpoint of a SockJS broker, e.g. ws://localhost:8080/ws/websocket.
type StompDialer struct {
	URL string

	// Heartbeat is used for both the outgoing and incoming interval.
	Heartbeat time.Duration
	// HeartbeatGrace is added to the incoming interval before a silent
	// broker counts as gone. Zero keeps the go-stomp default of 5s.
	HeartbeatGrace time.Duration

	Login    string
	Passcode string
	Header   http.Header

	// WebSocket defaults to websocket.DefaultDialer.
	WebSocket *websocket.Dialer
}

// Dial implements Dialer.
func (d *StompDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url %q: %w", d.URL, err)
	}

	wsd := d.WebSocket
	if wsd == nil {
		wsd = websocket.DefaultDialer
	}
	ws, resp, err := wsd.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.URL, err)
	}

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(u.Hostname()),
		stomp.ConnOpt.HeartBeat(d.Heartbeat, d.Heartbeat),
	}
	if d.HeartbeatGrace > 0 {
		opts = append(opts, stomp.ConnOpt.HeartBeatError(d.HeartbeatGrace))
	}
	if d.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(d.Login, d.Passcode))
	}

	stream := newWSStream(ws)
	sc, err := stomp.Connect(stream, opts...)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("stomp handshake with %s: %w", d.URL, err)
	}
	return newStompConn(sc, stream), nil
}

// stompConn adapts a *stomp.Conn to Conn, fanning every subscription into
// a single frame channel.
type stompConn struct {
	sc     *stomp.Conn
	frames chan Frame
	done   chan struct{}

	mu    sync.Mutex
	subs  map[string]*stomp.Subscription
	pumps sync.WaitGroup
	once  sync.Once
}

// go-stomp closes the stream whenever its session ends, including on
// heartbeat timeout with no subscriptions open, so the stream closing is
// the authoritative loss signal.
func newStompConn(sc *stomp.Conn, stream *wsStream) *stompConn {
	c := &stompConn{
		sc:     sc,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
		subs:   make(map[string]*stomp.Subscription),
	}
	go c.watch(stream)
	return c
}

// pumpSettle bounds how long a closed stream waits for subscription
// pumps to report the frame that ended the session.
const pumpSettle = time.Second

func (c *stompConn) watch(stream *wsStream) {
	select {
	case <-stream.closed:
	case <-c.done:
		return
	}

	settled := make(chan struct{})
	go func() {
		c.pumps.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-time.After(pumpSettle):
	}
	c.lose()
}

func (c *stompConn) Frames() <-chan Frame  { return c.frames }
func (c *stompConn) Done() <-chan struct{} { return c.done }

func (c *stompConn) Subscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[topic]; ok {
		return nil
	}
	sub, err := c.sc.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		c.lose()
		return err
	}
	c.subs[topic] = sub
	c.pumps.Add(1)
	go c.pump(topic, sub)
	return nil
}

func (c *stompConn) Unsubscribe(topic string) error {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

func (c *stompConn) Send(destination string, body []byte) error {
	select {
	case <-c.done:
		return ErrConnectionLost
	default:
	}
	if err := c.sc.Send(destination, "application/json", body); err != nil {
		c.lose()
		return err
	}
	return nil
}

func (c *stompConn) Close() error {
	c.lose()
	return c.sc.MustDisconnect()
}

// pump forwards one subscription. A closed subscription channel that is
// still registered means the session ended underneath it. Any error ends
// the session: go-stomp drops the connection after a broker ERROR too.
func (c *stompConn) pump(topic string, sub *stomp.Subscription) {
	defer c.pumps.Done()

	for msg := range sub.C {
		if msg.Err != nil {
			if pe, ok := asProtocolError(msg.Err); ok {
				c.emit(Frame{Topic: topic, Err: pe})
			}
			c.lose()
			return
		}
		c.emit(Frame{Topic: topic, Body: msg.Body})
	}

	c.mu.Lock()
	current, registered := c.subs[topic]
	c.mu.Unlock()
	if registered && current == sub {
		c.lose()
	}
}

func (c *stompConn) emit(f Frame) {
	select {
	case c.frames <- f:
		return
	default:
	}
	select {
	case c.frames <- f:
	case <-c.done:
	}
}

func (c *stompConn) lose() {
	c.once.Do(func() { close(c.done) })
}

// asProtocolError maps a broker ERROR frame to a ProtocolError. go-stomp
// reports its own transport failures as ERROR frames too; those carry
// nothing but a message header and count as connection loss instead.
func asProtocolError(err error) (*ProtocolError, bool) {
	var se stomp.Error
	if !errors.As(err, &se) {
		var sep *stomp.Error
		if !errors.As(err, &sep) || sep == nil {
			return nil, false
		}
		se = *sep
	}
	if synthesized(se.Frame) {
		return nil, false
	}
	return &ProtocolError{Message: se.Message}, true
}

func synthesized(f *frame.Frame) bool {
	if f == nil || f.Header == nil {
		return true
	}
	if len(f.Body) > 0 || f.Header.Len() != 1 {
		return false
	}
	key, _ := f.Header.GetAt(0)
	return key == frame.Message
}

// wsStream presents a WebSocket as the byte stream go-stomp expects. Each
// write becomes one text message; reads concatenate inbound messages.
type wsStream struct {
	ws *websocket.Conn

	rmu    sync.Mutex
	reader io.Reader

	wmu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

func newWSStream(ws *websocket.Conn) *wsStream {
	return &wsStream{ws: ws, closed: make(chan struct{})}
}

func (s *wsStream) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	for {
		if s.reader == nil {
			_, r, err := s.ws.NextReader()
			if err != nil {
				return 0, err
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.ws.Close()
}
