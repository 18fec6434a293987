package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/truecheckia/splitkit/internal/logger"
)

// Sender delivers a single event and reports failures.
type Sender interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Async queues events for a Sender and delivers them from one worker
// goroutine. Events are dropped with a warning when the queue is full.
type Async struct {
	sender  Sender
	queue   chan Event
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type AsyncOption func(*Async)

// WithQueueSize sets the queue capacity (default 1024). Non-positive
// sizes keep the default.
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.queue = make(chan Event, n)
		}
	}
}

// WithRateLimit caps deliveries per second. Zero disables the limit. A
// burst below one is raised to one.
func WithRateLimit(perSecond float64, burst int) AsyncOption {
	return func(a *Async) {
		if perSecond <= 0 {
			a.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithSendTimeout(d time.Duration) AsyncOption { return func(a *Async) { a.timeout = d } }
func WithAsyncLogger(l *zap.Logger) AsyncOption   { return func(a *Async) { a.logger = logger.OrNop(l) } }

func NewAsync(s Sender, opts ...AsyncOption) *Async {
	a := &Async{
		sender:  s,
		queue:   make(chan Event, 1024),
		limiter: rate.NewLimiter(20, 10),
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

func (a *Async) Track(_ context.Context, e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}
	select {
	case a.queue <- e:
	default:
		a.logger.Warn("analytics queue full, dropping event",
			zap.String("sink", a.sender.Name()), zap.String("event", e.Name))
	}
}

func (a *Async) run() {
	defer close(a.done)

	for e := range a.queue {
		if a.limiter != nil {
			if err := a.limiter.Wait(context.Background()); err != nil {
				a.logger.Warn("analytics rate limiter rejected event",
					zap.String("sink", a.sender.Name()), zap.String("event", e.Name), zap.Error(err))
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sender.Send(ctx, e); err != nil {
			a.logger.Warn("failed to deliver analytics event",
				zap.String("sink", a.sender.Name()), zap.String("event", e.Name), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events, delivers what is queued and waits for the
// worker to exit.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	<-a.done
	return nil
}
