package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async delivers notifications on background goroutines so callers never
// wait on the operator channel.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewAsync wraps next. Each delivery gets its own timeout (default 30s).
func NewAsync(next Notifier, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{
		next:    next,
		timeout: timeout,
		logger:  logger.With("component", "notify"),
	}
}

// Notify schedules delivery and returns immediately. The caller's context
// only carries values; cancellation does not abort the delivery.
func (a *Async) Notify(ctx context.Context, n Notification) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if err := a.next.Notify(sendCtx, n); err != nil {
			a.logger.Error("operator notification failed", "kind", n.Kind, "error", err)
			return
		}
		a.logger.Debug("operator notified", "kind", n.Kind)
	}()
	return nil
}

// Close stops accepting notifications and waits for pending deliveries.
func (a *Async) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
	return nil
}
