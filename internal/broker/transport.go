package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is a raw payload received from the pub/sub transport.
type Message struct {
	Channel string
	Payload []byte
}

// Transport is the underlying pub/sub system (Redis in production). Publish
// must not block on the existence of subscribers.
type Transport interface {
	// Publish sends the payload to a channel and returns the number of
	// receivers the transport delivered it to.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)

	// OpenSubscription creates a new subscription object. Channels are added
	// to it individually via Subscription.Subscribe.
	OpenSubscription(ctx context.Context) (Subscription, error)

	// Ping verifies the transport connection is healthy.
	Ping(ctx context.Context) error

	// Close releases transport resources owned by this object.
	Close() error
}

// Subscription is a live transport-level subscription servicing one or more
// channels.
type Subscription interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error

	// Receive blocks up to timeout for the next message. Returns (nil, nil)
	// when the timeout elapses with nothing to deliver. Connection-level
	// failures are reported as *ConnError.
	Receive(ctx context.Context, timeout time.Duration) (*Message, error)

	Close() error
}

// ConnError marks a transport connection failure. The broker's listener
// reacts to it by entering its reconnect loop; all other errors are treated
// as local and non-fatal.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("transport connection: %v", e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// IsConnError reports whether err is (or wraps) a transport connection
// failure.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
