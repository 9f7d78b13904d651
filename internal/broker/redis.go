package broker

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTransport implements Transport on a go-redis client.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport wraps an existing client. The client's lifecycle stays
// with the caller; Close here releases nothing.
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := t.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, &ConnError{Err: err}
	}
	return n, nil
}

func (t *RedisTransport) OpenSubscription(ctx context.Context) (Subscription, error) {
	// Channels are attached later; go-redis connects lazily.
	return &redisSubscription{ps: t.client.Subscribe(ctx)}, nil
}

func (t *RedisTransport) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return &ConnError{Err: err}
	}
	return nil
}

func (t *RedisTransport) Close() error {
	return nil
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Subscribe(ctx context.Context, channels ...string) error {
	if err := s.ps.Subscribe(ctx, channels...); err != nil {
		return &ConnError{Err: err}
	}
	return nil
}

func (s *redisSubscription) Unsubscribe(ctx context.Context, channels ...string) error {
	if err := s.ps.Unsubscribe(ctx, channels...); err != nil {
		return &ConnError{Err: err}
	}
	return nil
}

func (s *redisSubscription) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	raw, err := s.ps.ReceiveTimeout(ctx, timeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Poll timeout: nothing to deliver, connection is fine.
			return nil, nil
		}
		return nil, &ConnError{Err: err}
	}

	switch m := raw.(type) {
	case *redis.Message:
		return &Message{Channel: m.Channel, Payload: []byte(m.Payload)}, nil
	default:
		// Subscription confirmations and pongs carry no payload.
		return nil, nil
	}
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
