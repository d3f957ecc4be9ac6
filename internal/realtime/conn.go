package realtime

import (
	"context"
	"errors"
	"fmt"
)

// Frame is one inbound message from the broker. A non-nil Err is an error
// reported by the broker itself (a STOMP ERROR frame).
type Frame struct {
	Topic string
	Body  []byte
	Err   error
}

// Conn is a single live broker session.
//
// Frames carries inbound messages for every subscribed topic and is never
// closed. Done is closed once the session is lost, for any reason
// including Close.
type Conn interface {
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Send(destination string, body []byte) error
	Frames() <-chan Frame
	Done() <-chan struct{}
	Close() error
}

// Dialer opens broker sessions.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context) (Conn, error)

// Dial calls f.
func (f DialFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// ErrConnectionLost is the cause recorded when a session ends without a
// more specific error.
var ErrConnectionLost = errors.New("connection lost")

// TransportError is a socket-level failure. The channel reconnects after
// one.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is an application error reported by the broker. It is
// recorded but the operation that caused it is not replayed.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "broker error: " + e.Message
}

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError reports whether err is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
