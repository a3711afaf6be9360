package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Dispatcher sends notifications without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// NoopDispatcher discards everything.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(context.Context, Notification) {}

// PoolDispatcher runs deliveries on a bounded worker pool. Each delivery gets
// its own timeout and is detached from the caller's cancellation.
type PoolDispatcher struct {
	notifier Notifier
	pool     *ants.Pool
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Dispatcher = (*PoolDispatcher)(nil)

func NewPoolDispatcher(notifier Notifier, size int, timeout time.Duration, logger *slog.Logger) (*PoolDispatcher, error) {
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification pool: %w", err)
	}
	return &PoolDispatcher{
		notifier: notifier,
		pool:     pool,
		timeout:  timeout,
		logger:   logger.With("component", "notification_dispatcher"),
	}, nil
}

// Dispatch queues n. A full pool drops the notification with a warning.
func (d *PoolDispatcher) Dispatch(ctx context.Context, n Notification) {
	ctx = context.WithoutCancel(ctx)
	err := d.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Notifier panicked", "event", n.Event, "user_id", n.UserID, "panic", fmt.Sprint(r))
			}
		}()

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := d.notifier.Notify(sendCtx, n); err != nil {
			d.logger.Warn("Failed to deliver notification", "event", n.Event, "user_id", n.UserID, "error", err)
			return
		}
		d.logger.Debug("Notification delivered", "event", n.Event, "user_id", n.UserID)
	})
	if err != nil {
		d.logger.Warn("Dropping notification", "event", n.Event, "user_id", n.UserID, "error", err)
	}
}

// Shutdown waits up to timeout for queued deliveries, then closes the notifier.
func (d *PoolDispatcher) Shutdown(timeout time.Duration) error {
	d.logger.Info("Shutting down notification pool", "running_workers", d.pool.Running())
	if err := d.pool.ReleaseTimeout(timeout); err != nil {
		d.logger.Warn("Notification pool did not drain in time", "error", err)
	}
	return d.notifier.Close()
}
