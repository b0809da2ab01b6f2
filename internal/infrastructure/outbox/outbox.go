package outbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
)

// ErrBusStopped is returned by Publish after Stop.
var ErrBusStopped = errors.New("outbox: bus stopped")

// Bus is an in-memory event bus for single-process deployments and tests.
// Events are dispatched one at a time in publish order; the handlers of one
// event run concurrently. Nothing is persisted.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]domoutbox.Handler
	queue       chan domoutbox.Event
	closed      bool
	done        chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	cancel      context.CancelFunc
	concurrency int
	timeout     time.Duration
	attempts    int
	backoff     time.Duration
	deadLetter  func(ctx context.Context, e domoutbox.Event, err error)
	log         observability.Logger
}

const componentOutbox = "outbox"

type BusOption func(*Bus)

// WithQueueSize sets the publish buffer.
func WithQueueSize(n int) BusOption {
	return func(b *Bus) { b.queue = make(chan domoutbox.Event, n) }
}

// WithHandlerTimeout bounds each handler invocation.
func WithHandlerTimeout(d time.Duration) BusOption {
	return func(b *Bus) { b.timeout = d }
}

// WithRetry gives a failing handler up to attempts tries in total, doubling
// backoff between them.
func WithRetry(attempts int, backoff time.Duration) BusOption {
	return func(b *Bus) {
		if attempts > 0 {
			b.attempts = attempts
		}
		b.backoff = backoff
	}
}

// WithDeadLetter receives every event a handler still failed on after its
// last try. Nothing is persisted: without a hook such events are only logged.
func WithDeadLetter(fn func(ctx context.Context, e domoutbox.Event, err error)) BusOption {
	return func(b *Bus) { b.deadLetter = fn }
}

// NewBus creates a bus with a buffered queue and a concurrency cap.
func NewBus(logger observability.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Bus{
		subs:        make(map[string][]domoutbox.Handler),
		queue:       make(chan domoutbox.Event, 1024), // buffer for backpressure
		done:        make(chan struct{}),
		concurrency: 8, // per-event handler fanout cap
		timeout:     30 * time.Second,
		attempts:    3,
		backoff:     100 * time.Millisecond,
		log:         logger.With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logger := logctx.FromOr(ctx, b.log)
		logger.Info("event_bus_started")
	})
}

// Stop refuses new events, lets queued ones drain and waits for the loop
// to exit or ctx to end.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()

		select {
		case <-b.done:
		case <-ctx.Done():
			if b.cancel != nil {
				b.cancel()
			}
		}
		logger := logctx.FromOr(ctx, b.log)
		logger.Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusStopped
	}
	select {
	case b.queue <- e:
		logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
		logger.Warn("event_enqueue_aborted",
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.queue:
			if !ok {
				return
			}
			b.fanout(ctx, e)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		logger := logctx.FromOr(ctx, b.log).With(observability.F("event", name))
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	// Handlers outlive a bus cancel; only retry waits are cut short by it.
	stop := ctx.Done()
	ctx = context.WithoutCancel(ctx)
	baseLogger := b.log.With(observability.F("event", name))

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			b.deliver(ctx, stop, baseLogger, h, e)
		}()
	}

	wg.Wait()

	baseLogger.Debug("event_fanned_out",
		observability.F("handlers", len(handlers)),
	)
}

// deliver runs h until it succeeds, its tries run out or stop closes. A
// panic counts as a failed try.
func (b *Bus) deliver(ctx context.Context, stop <-chan struct{}, logger observability.Logger, h domoutbox.Handler, e domoutbox.Event) {
	backoff := b.backoff
	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if err = b.invoke(ctx, logger, h, e); err == nil {
			return
		}
		logger.Warn("event_handler_error",
			observability.F("error", err),
			observability.F("attempt", attempt),
		)
		if attempt == b.attempts {
			break
		}
		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	logger.Error("event_dead_lettered", observability.F("error", err))
	if b.deadLetter != nil {
		b.deadLetter(ctx, e, err)
	}
}

func (b *Bus) invoke(ctx context.Context, logger observability.Logger, h domoutbox.Handler, e domoutbox.Event) (err error) {
	hctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event_handler_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("outbox: handler panic: %v", r)
		}
	}()
	return h(logctx.With(hctx, logger), e)
}
