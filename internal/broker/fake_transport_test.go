package broker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeTransport simulates a pub/sub backend with controllable connection
// failures for exercising the reconnect state machine.
type fakeTransport struct {
	mu     sync.Mutex
	subs   []*fakeSub
	opened int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	sub := t.currentSub()
	if sub == nil || sub.isBroken() || !sub.has(channel) {
		return 0, nil
	}
	sub.deliver(&Message{Channel: channel, Payload: payload})
	return 1, nil
}

func (t *fakeTransport) OpenSubscription(ctx context.Context) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &fakeSub{
		channels: make(map[string]bool),
		msgs:     make(chan *Message, 64),
	}
	t.subs = append(t.subs, sub)
	t.opened++
	return sub, nil
}

func (t *fakeTransport) Ping(ctx context.Context) error { return nil }

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) currentSub() *fakeSub {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return nil
	}
	return t.subs[len(t.subs)-1]
}

func (t *fakeTransport) breakCurrent() {
	if sub := t.currentSub(); sub != nil {
		sub.setBroken()
	}
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

func (t *fakeTransport) publishJSON(channel, payload string) {
	t.Publish(context.Background(), channel, []byte(payload))
}

type fakeSub struct {
	mu       sync.Mutex
	channels map[string]bool
	msgs     chan *Message
	broken   bool
	closed   bool
}

func (s *fakeSub) Subscribe(ctx context.Context, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return &ConnError{Err: errors.New("subscribe on broken connection")}
	}
	for _, ch := range channels {
		s.channels[ch] = true
	}
	return nil
}

func (s *fakeSub) Unsubscribe(ctx context.Context, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.channels, ch)
	}
	return nil
}

func (s *fakeSub) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	if s.isBroken() {
		return nil, &ConnError{Err: errors.New("connection reset")}
	}

	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, &ConnError{Err: ctx.Err()}
	}
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) deliver(msg *Message) {
	select {
	case s.msgs <- msg:
	default:
	}
}

func (s *fakeSub) setBroken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = true
}

func (s *fakeSub) isBroken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

func (s *fakeSub) channelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

func (s *fakeSub) has(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel]
}
