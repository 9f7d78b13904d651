package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
)

// Handler consumes events of a subscribed type. Implementations must be safe
// for concurrent invocation: the bus runs all handlers of one emission in
// parallel.
type Handler interface {
	Name() string
	Handle(ctx context.Context, evt domain.Event) error
}

// BlockingHandler marks handlers that do synchronous I/O. The bus schedules
// them on the worker pool instead of a fresh goroutine, keeping slow work off
// the dispatch path.
type BlockingHandler interface {
	Handler
	Blocking()
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, evt domain.Event) error
}

func Func(name string, fn func(ctx context.Context, evt domain.Event) error) HandlerFunc {
	return HandlerFunc{name: name, fn: fn}
}

func (h HandlerFunc) Name() string { return h.name }

func (h HandlerFunc) Handle(ctx context.Context, evt domain.Event) error {
	return h.fn(ctx, evt)
}

// Bus is the in-process publish/subscribe dispatcher. Handlers are registered
// once at startup; after that the registry is read-only, so emission takes no
// locks beyond the registry read lock.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	pool     *Pool
	logger   *slog.Logger
}

func New(pool *Pool, logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		pool:     pool,
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], h)
	b.logger.Info("handler subscribed", "event_type", eventType, "handler", h.Name())
}

// Emit dispatches the event to all handlers of its type without waiting for
// them to finish. Emitting with no registered handlers is a no-op.
func (b *Bus) Emit(ctx context.Context, eventType string, payload map[string]any) {
	b.dispatch(ctx, domain.Event{Type: eventType, Payload: payload})
}

// EmitSync dispatches like Emit but blocks until every handler has returned.
// Handlers still run concurrently, so the call is bounded by the slowest
// handler, not the sum.
func (b *Bus) EmitSync(ctx context.Context, eventType string, payload map[string]any) {
	b.dispatch(ctx, domain.Event{Type: eventType, Payload: payload}).Wait()
}

func (b *Bus) dispatch(ctx context.Context, evt domain.Event) *sync.WaitGroup {
	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()

	wg := &sync.WaitGroup{}
	if len(handlers) == 0 {
		b.logger.Debug("event emitted with no subscribers", "event_type", evt.Type)
		return wg
	}

	for _, h := range handlers {
		wg.Add(1)
		run := func(h Handler) {
			defer wg.Done()
			b.invoke(ctx, h, evt)
		}

		if _, blocking := h.(BlockingHandler); blocking && b.pool != nil {
			h := h
			b.pool.Submit(func() { run(h) })
		} else {
			go run(h)
		}
	}
	return wg
}

// invoke runs one handler, isolating panics and errors so a failing handler
// never affects its siblings or the emitter.
func (b *Bus) invoke(ctx context.Context, h Handler, evt domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				"handler", h.Name(),
				"event_type", evt.Type,
				"panic", r,
			)
		}
	}()

	if err := h.Handle(ctx, evt); err != nil {
		b.logger.Error("handler failed",
			"handler", h.Name(),
			"event_type", evt.Type,
			"error", err,
		)
	}
}
