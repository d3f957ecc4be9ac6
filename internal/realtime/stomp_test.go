package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stompWait = 2 * time.Second

// brokerPeer is the server side of one scripted STOMP session.
type brokerPeer struct {
	ws      *websocket.Conn
	r       *frame.Reader
	w       *frame.Writer
	connect *frame.Frame
}

// next returns the next non-heartbeat frame the client sent.
func (p *brokerPeer) next(t *testing.T) *frame.Frame {
	t.Helper()
	for {
		f, err := p.r.Read()
		require.NoError(t, err)
		if f != nil {
			return f
		}
	}
}

func (p *brokerPeer) send(t *testing.T, f *frame.Frame) {
	t.Helper()
	require.NoError(t, p.w.Write(f))
}

// startBroker serves a WebSocket endpoint that answers CONNECT with reply
// and hands each accepted session to the test.
func startBroker(t *testing.T, reply *frame.Frame) (string, <-chan *brokerPeer) {
	t.Helper()

	peers := make(chan *brokerPeer, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		stream := newWSStream(ws)
		p := &brokerPeer{ws: ws, r: frame.NewReader(stream), w: frame.NewWriter(stream)}

		f, err := p.r.Read()
		if err != nil || f == nil {
			ws.Close()
			return
		}
		p.connect = f
		if err := p.w.Write(reply); err != nil {
			ws.Close()
			return
		}
		peers <- p
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), peers
}

func connected() *frame.Frame {
	return frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0")
}

func acceptPeer(t *testing.T, peers <-chan *brokerPeer) *brokerPeer {
	t.Helper()
	select {
	case p := <-peers:
		t.Cleanup(func() { p.ws.Close() })
		return p
	case <-time.After(stompWait):
		t.Fatal("broker never accepted a session")
		return nil
	}
}

func dial(t *testing.T, d *StompDialer) Conn {
	t.Helper()
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func nextFrame(t *testing.T, conn Conn) Frame {
	t.Helper()
	select {
	case f := <-conn.Frames():
		return f
	case <-time.After(stompWait):
		t.Fatal("no frame delivered")
		return Frame{}
	}
}

func requireDone(t *testing.T, conn Conn, msg string) {
	t.Helper()
	select {
	case <-conn.Done():
	case <-time.After(stompWait):
		t.Fatal(msg)
	}
}

func TestStompDialerHandshakeAndDelivery(t *testing.T) {
	url, peers := startBroker(t, connected())
	conn := dial(t, &StompDialer{URL: url, Login: "ada@example.com", Passcode: "secret"})
	p := acceptPeer(t, peers)

	assert.Contains(t, []string{frame.CONNECT, frame.STOMP}, p.connect.Command)
	assert.Equal(t, "127.0.0.1", p.connect.Header.Get(frame.Host))
	assert.Equal(t, "ada@example.com", p.connect.Header.Get(frame.Login))
	assert.Equal(t, "secret", p.connect.Header.Get(frame.Passcode))
	assert.Equal(t, "0,0", p.connect.Header.Get(frame.HeartBeat))

	require.NoError(t, conn.Subscribe("/topic/comments/7"))
	sub := p.next(t)
	require.Equal(t, frame.SUBSCRIBE, sub.Command)
	assert.Equal(t, "/topic/comments/7", sub.Header.Get(frame.Destination))

	msg := frame.New(frame.MESSAGE,
		frame.Subscription, sub.Header.Get(frame.Id),
		frame.Destination, "/topic/comments/7",
		frame.MessageId, "m-1",
		frame.ContentType, "application/json")
	msg.Body = []byte(`{"id":1,"content":"hi"}`)
	p.send(t, msg)

	f := nextFrame(t, conn)
	assert.NoError(t, f.Err)
	assert.Equal(t, "/topic/comments/7", f.Topic)
	assert.JSONEq(t, `{"id":1,"content":"hi"}`, string(f.Body))

	require.NoError(t, conn.Send("/app/comment", []byte(`{"content":"back"}`)))
	sent := p.next(t)
	assert.Equal(t, frame.SEND, sent.Command)
	assert.Equal(t, "/app/comment", sent.Header.Get(frame.Destination))
	assert.Equal(t, "application/json", sent.Header.Get(frame.ContentType))
	assert.Equal(t, `{"content":"back"}`, string(sent.Body))

	select {
	case <-conn.Done():
		t.Fatal("session ended while the broker was healthy")
	default:
	}
}

func TestStompErrorFrameIsProtocolError(t *testing.T) {
	url, peers := startBroker(t, connected())
	conn := dial(t, &StompDialer{URL: url})
	p := acceptPeer(t, peers)

	require.NoError(t, conn.Subscribe("/topic/task/9/unread"))
	require.Equal(t, frame.SUBSCRIBE, p.next(t).Command)

	rejected := frame.New(frame.ERROR, frame.Message, "access denied", frame.ContentType, "text/plain")
	rejected.Body = []byte("not a member of task 9")
	p.send(t, rejected)

	f := nextFrame(t, conn)
	var pe *ProtocolError
	require.ErrorAs(t, f.Err, &pe)
	assert.Equal(t, "access denied", pe.Message)
	assert.Equal(t, "/topic/task/9/unread", f.Topic)

	requireDone(t, conn, "broker ERROR did not end the session")
}

func TestStompSilentBrokerTimesOut(t *testing.T) {
	for name, subscribe := range map[string]bool{"subscribed": true, "idle": false} {
		t.Run(name, func(t *testing.T) {
			url, peers := startBroker(t, connected())
			conn := dial(t, &StompDialer{
				URL:            url,
				Heartbeat:      50 * time.Millisecond,
				HeartbeatGrace: 50 * time.Millisecond,
			})
			p := acceptPeer(t, peers)
			assert.Equal(t, "50,50", p.connect.Header.Get(frame.HeartBeat))

			if subscribe {
				require.NoError(t, conn.Subscribe("/topic/tasks"))
				require.Equal(t, frame.SUBSCRIBE, p.next(t).Command)
			}

			requireDone(t, conn, "silent broker never timed out")
			assert.Zero(t, len(conn.Frames()), "a heartbeat timeout is not a broker error")
		})
	}
}

func TestStompDialFailures(t *testing.T) {
	t.Run("rejected upgrade", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		t.Cleanup(srv.Close)

		_, err := (&StompDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}).Dial(context.Background())
		assert.ErrorContains(t, err, "dialing")
	})

	t.Run("refused handshake", func(t *testing.T) {
		url, _ := startBroker(t, frame.New(frame.ERROR, frame.Message, "bad credentials", frame.ContentLength, "0"))

		_, err := (&StompDialer{URL: url, Login: "ada@example.com"}).Dial(context.Background())
		assert.ErrorContains(t, err, "stomp handshake")
	})

	t.Run("malformed url", func(t *testing.T) {
		_, err := (&StompDialer{URL: "::not a url"}).Dial(context.Background())
		assert.ErrorContains(t, err, "parsing broker url")
	})
}

func TestSynthesizedStompErrorsAreConnectionLoss(t *testing.T) {
	local := frame.New(frame.ERROR, frame.Message, "read timeout")
	_, ok := asProtocolError(stomp.Error{Message: "read timeout", Frame: local})
	assert.False(t, ok)

	_, ok = asProtocolError(&stomp.Error{Message: "Subscription 1: /topic/tasks: channel read failed"})
	assert.False(t, ok)

	_, ok = asProtocolError(errors.New("broken pipe"))
	assert.False(t, ok)

	remote := frame.New(frame.ERROR, frame.Message, "access denied", frame.ContentLength, "0")
	pe, ok := asProtocolError(&stomp.Error{Message: "access denied", Frame: remote})
	require.True(t, ok)
	assert.Equal(t, "access denied", pe.Message)
}
