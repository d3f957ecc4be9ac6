package realtime_test

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/realtime"
	"github.com/nhle/taskpulse/internal/testutil"
)

func newChannel(t *testing.T, b *testutil.Broker) *realtime.Channel {
	t.Helper()
	ch := realtime.New(b, realtime.Options{
		ReconnectDelay:    10 * time.Millisecond,
		PublishRetryDelay: 5 * time.Millisecond,
		Logger:            log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

// collector gathers message bodies from a handler.
type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(m realtime.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(m.Body))
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestChannelDeliversToSubscribers(t *testing.T) {
	b := testutil.NewBroker()
	ch := newChannel(t, b)

	var a, other collector
	ch.Subscribe("/topic/a", a.handle)
	ch.Subscribe("/topic/b", other.handle)
	ch.Connect()

	testutil.WaitFor(t, func() bool { return ch.State() == realtime.Connected }, "connect")
	require.True(t, b.Subscribed("/topic/a"))

	b.Publish("/topic/a", []byte(`1`))
	b.Publish("/topic/a", []byte(`2`))

	testutil.WaitFor(t, func() bool { return len(a.got()) == 2 }, "two messages")
	assert.Equal(t, []string{"1", "2"}, a.got())
	assert.Empty(t, other.got())
}

func TestChannelResubscribesAfterDrop(t *testing.T) {
	b := testutil.NewBroker()
	ch := newChannel(t, b)

	var got collector
	ch.Subscribe("/topic/task-updated", got.handle)
	ch.Connect()
	testutil.WaitFor(t, func() bool { return ch.State() == realtime.Connected }, "connect")

	b.Publish("/topic/task-updated", []byte(`"before"`))
	testutil.WaitFor(t, func() bool { return len(got.got()) == 1 }, "first message")

	b.DropAll()
	testutil.WaitFor(t, func() bool { return b.Dials() >= 2 && ch.State() == realtime.Connected }, "reconnect")

	assert.True(t, realtime.IsTransportError(ch.LastError()))
	assert.True(t, b.Subscribed("/topic/task-updated"), "topic re-subscribed without caller action")

	for _, body := range []string{`"after-1"`, `"after-2"`, `"after-3"`} {
		assert.Equal(t, 1, b.Publish("/topic/task-updated", []byte(body)))
	}
	testutil.WaitFor(t, func() bool { return len(got.got()) == 4 }, "messages after reconnect")
	assert.Equal(t, []string{`"before"`, `"after-1"`, `"after-2"`, `"after-3"`}, got.got())
}

func TestChannelRetriesDialForever(t *testing.T) {
	b := testutil.NewBroker()
	b.FailDials(errors.New("connection refused"))
	ch := newChannel(t, b)
	ch.Connect()

	testutil.WaitFor(t, func() bool { return b.Dials() >= 3 }, "repeated dials")
	assert.NotEqual(t, realtime.Connected, ch.State())

	var te *realtime.TransportError
	require.ErrorAs(t, ch.LastError(), &te)
	assert.Equal(t, "dial", te.Op)

	b.FailDials(nil)
	testutil.WaitFor(t, func() bool { return ch.State() == realtime.Connected }, "eventual connect")
}

func TestChannelPublishBeforeConnect(t *testing.T) {
	b := testutil.NewBroker()
	b.FailDials(errors.New("down"))
	ch := newChannel(t, b)
	ch.Connect()

	require.NoError(t, ch.Publish("/app/comment", map[string]string{"content": "hi"}))
	require.NoError(t, ch.Publish("/app/comment", map[string]string{"content": "again"}))
	assert.Equal(t, 2, ch.Pending())
	assert.Empty(t, b.Sent())

	b.FailDials(nil)
	testutil.WaitFor(t, func() bool { return len(b.SentTo("/app/comment")) == 2 }, "queued publishes")
	sent := b.SentTo("/app/comment")
	assert.JSONEq(t, `{"content":"hi"}`, string(sent[0]))
	assert.JSONEq(t, `{"content":"again"}`, string(sent[1]))
	assert.Zero(t, ch.Pending())
}

func TestChannelPublishEncodingFailure(t *testing.T) {
	ch := newChannel(t, testutil.NewBroker())
	err := ch.Publish("/app/task", make(chan int))
	assert.Error(t, err)
	assert.Zero(t, ch.Pending())
}

func TestChannelProtocolErrorIsRecorded(t *testing.T) {
	b := testutil.NewBroker()
	ch := newChannel(t, b)

	var got collector
	ch.Subscribe("/topic/comments", got.handle)
	ch.Connect()
	testutil.WaitFor(t, func() bool { return ch.State() == realtime.Connected }, "connect")

	b.Reject("/topic/comments", "access denied")
	testutil.WaitFor(t, func() bool { return realtime.IsProtocolError(ch.LastError()) }, "protocol error")
	assert.Equal(t, "broker error: access denied", ch.LastError().Error())
	assert.Equal(t, realtime.Connected, ch.State())
	assert.Empty(t, got.got(), "error frames are not dispatched")
}

func TestChannelUnsubscribeDropsTopic(t *testing.T) {
	b := testutil.NewBroker()
	ch := newChannel(t, b)
	ch.Connect()
	testutil.WaitFor(t, func() bool { return ch.State() == realtime.Connected }, "connect")

	var first, second collector
	s1 := ch.Subscribe("/topic/x", first.handle)
	s2 := ch.Subscribe("/topic/x", second.handle)
	require.True(t, b.Subscribed("/topic/x"))

	s1.Unsubscribe()
	assert.True(t, b.Subscribed("/topic/x"), "still one handler left")

	b.Publish("/topic/x", []byte(`1`))
	testutil.WaitFor(t, func() bool { return len(second.got()) == 1 }, "delivery to remaining handler")
	assert.Empty(t, first.got())

	s2.Unsubscribe()
	s2.Unsubscribe()
	assert.False(t, b.Subscribed("/topic/x"))
}

func TestChannelWatchAndClose(t *testing.T) {
	b := testutil.NewBroker()
	ch := newChannel(t, b)

	var mu sync.Mutex
	var states []realtime.State
	cancel := ch.Watch(func(s realtime.State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	defer cancel()

	ch.Connect()
	testutil.WaitFor(t, func() bool { return ch.State() == realtime.Connected }, "connect")
	require.NoError(t, ch.Close())
	assert.Equal(t, realtime.Disconnected, ch.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []realtime.State{realtime.Connecting, realtime.Connected, realtime.Disconnected}, states)
	assert.Equal(t, "CONNECTED", realtime.Connected.String())
}
