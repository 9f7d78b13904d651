package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Listener loop states.
const (
	StateStopped      = "stopped"
	StateRunning      = "running"
	StateReconnecting = "reconnecting"
)

// Callback receives a message delivered on a subscribed channel. The payload
// is the JSON-decoded message, or the raw bytes when decoding fails.
// Callbacks must tolerate concurrent invocation from the listener goroutine.
type Callback func(data any)

// Handle identifies one registered callback, for use with Unsubscribe.
type Handle struct {
	channel string
	cb      Callback
}

// Channel returns the channel this handle is registered on.
func (h *Handle) Channel() string {
	return h.channel
}

// Broker fans persisted notifications out to live subscribers over a pub/sub
// transport. A single background listener goroutine services every channel by
// polling with a bounded timeout; transport failures are recovered with
// exponential backoff and a full re-subscribe of the registry.
type Broker struct {
	transport Transport
	logger    *slog.Logger

	pollTimeout time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	errorDelay  time.Duration

	mu       sync.Mutex
	registry map[string][]*Handle
	sub      Subscription
	state    string
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(transport Transport, logger *slog.Logger) *Broker {
	return &Broker{
		transport:   transport,
		logger:      logger,
		pollTimeout: time.Second,
		baseBackoff: time.Second,
		maxBackoff:  60 * time.Second,
		errorDelay:  5 * time.Second,
		registry:    make(map[string][]*Handle),
		state:       StateStopped,
	}
}

// Publish serializes the message and hands it to the transport. It never
// blocks on the existence of subscribers; publishing to a channel nobody
// listens on is a legal no-op downstream.
func (b *Broker) Publish(ctx context.Context, channel string, message any) (int64, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("serializing message for %s: %w", channel, err)
	}

	n, err := b.transport.Publish(ctx, channel, payload)
	if err != nil {
		return 0, fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return n, nil
}

// Subscribe registers a callback for a channel. The first subscriber for a
// channel opens the transport-level subscription; the background listener is
// started lazily on the first call. Transport-level failures here are logged,
// not returned: the listener's reconnect loop repairs them.
func (b *Broker) Subscribe(ctx context.Context, channel string, cb Callback) *Handle {
	h := &Handle{channel: channel, cb: cb}

	b.mu.Lock()
	defer b.mu.Unlock()

	first := len(b.registry[channel]) == 0
	b.registry[channel] = append(b.registry[channel], h)

	if b.sub == nil {
		sub, err := b.transport.OpenSubscription(ctx)
		if err != nil {
			b.logger.Error("opening pubsub subscription", "error", err)
		} else {
			b.sub = sub
		}
	}

	if first && b.sub != nil {
		if err := b.sub.Subscribe(ctx, channel); err != nil {
			b.logger.Error("transport subscribe failed", "channel", channel, "error", err)
		} else {
			b.logger.Info("subscribed to channel", "channel", channel)
		}
	}

	b.startLocked()
	return h
}

// Unsubscribe removes one callback. When the channel's callback list becomes
// empty, the transport-level subscription for that channel is torn down.
func (b *Broker) Unsubscribe(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handles := b.registry[h.channel]
	for i, reg := range handles {
		if reg == h {
			handles = append(handles[:i], handles[i+1:]...)
			break
		}
	}

	if len(handles) == 0 {
		delete(b.registry, h.channel)
		if b.sub != nil {
			if err := b.sub.Unsubscribe(ctx, h.channel); err != nil {
				b.logger.Error("transport unsubscribe failed", "channel", h.channel, "error", err)
			}
		}
		b.logger.Info("unsubscribed from channel", "channel", h.channel)
	} else {
		b.registry[h.channel] = handles
	}
}

// Channels returns the channels currently present in the registry.
func (b *Broker) Channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	channels := make([]string, 0, len(b.registry))
	for ch := range b.registry {
		channels = append(channels, ch)
	}
	return channels
}

// State reports the listener loop state.
func (b *Broker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Shutdown stops the listener at its next poll boundary, closes the transport
// resources, and clears the registry.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for listener to stop: %w", ctx.Err())
		}
	}

	b.mu.Lock()
	if b.sub != nil {
		if err := b.sub.Close(); err != nil {
			b.logger.Error("closing transport subscription", "error", err)
		}
		b.sub = nil
	}
	b.registry = make(map[string][]*Handle)
	b.state = StateStopped
	b.mu.Unlock()

	if err := b.transport.Close(); err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	b.logger.Info("channel broker stopped")
	return nil
}

func (b *Broker) startLocked() {
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.state = StateRunning
	go b.listen(ctx, b.done)
	b.logger.Info("channel broker listener started")
}

func (b *Broker) listen(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		if !b.hasChannels() {
			// Nothing subscribed right now; stay responsive to shutdown.
			if !sleepCtx(ctx, b.pollTimeout) {
				return
			}
			continue
		}

		sub := b.currentSub()
		if sub == nil {
			if !b.reconnect(ctx) {
				return
			}
			continue
		}

		msg, err := sub.Receive(ctx, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsConnError(err) {
				if !b.reconnect(ctx) {
					return
				}
				continue
			}
			// Transport is healthy; the error is local. Short fixed delay.
			b.logger.Error("pubsub listener error", "error", err)
			if !sleepCtx(ctx, b.errorDelay) {
				return
			}
			continue
		}

		if msg == nil {
			continue
		}
		b.dispatch(msg)
	}
}

// reconnect applies exponential backoff, rebuilds the transport subscription,
// and re-subscribes every channel in the registry. The registry itself is
// untouched. Returns false only when the context is cancelled.
func (b *Broker) reconnect(ctx context.Context) bool {
	b.setState(StateReconnecting)
	backoff := b.baseBackoff

	for attempt := 1; ; attempt++ {
		b.logger.Warn("pubsub connection lost, reconnecting",
			"backoff", backoff.String(),
			"attempt", attempt,
		)
		if !sleepCtx(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
		}

		if err := b.rebuild(ctx); err != nil {
			b.logger.Error("pubsub reconnect failed", "error", err, "attempt", attempt)
			continue
		}

		b.setState(StateRunning)
		b.logger.Info("pubsub reconnected", "attempts", attempt)
		return true
	}
}

// rebuild closes the stale subscription, verifies the transport, opens a
// fresh subscription object and re-attaches all registered channels.
func (b *Broker) rebuild(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		if err := b.sub.Close(); err != nil {
			b.logger.Debug("closing stale subscription", "error", err)
		}
		b.sub = nil
	}

	if err := b.transport.Ping(ctx); err != nil {
		return err
	}

	sub, err := b.transport.OpenSubscription(ctx)
	if err != nil {
		return err
	}

	for channel := range b.registry {
		if err := sub.Subscribe(ctx, channel); err != nil {
			sub.Close()
			return err
		}
	}

	b.sub = sub
	return nil
}

// dispatch decodes the message and invokes every callback registered for its
// channel. Callback failures are isolated and logged, never propagated.
func (b *Broker) dispatch(msg *Message) {
	var data any
	if err := json.Unmarshal(msg.Payload, &data); err != nil {
		// Fall back to the raw payload.
		data = msg.Payload
	}

	b.mu.Lock()
	handles := make([]*Handle, len(b.registry[msg.Channel]))
	copy(handles, b.registry[msg.Channel])
	b.mu.Unlock()

	for _, h := range handles {
		b.invoke(msg.Channel, h, data)
	}
}

func (b *Broker) invoke(channel string, h *Handle, data any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber callback panicked", "channel", channel, "panic", r)
		}
	}()
	h.cb(data)
}

func (b *Broker) currentSub() Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub
}

func (b *Broker) hasChannels() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registry) > 0
}

func (b *Broker) setState(state string) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

// sleepCtx waits for d, returning false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
