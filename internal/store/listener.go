package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/db"
)

// DefaultChannel is the Postgres NOTIFY channel fired by the appointments
// table trigger on every insert, update, or delete.
const DefaultChannel = "appointments_changed"

// Listener holds a dedicated connection on LISTEN and forwards every
// notification as an empty event. Events are coalesced: a burst of
// notifications while the consumer is busy collapses into one pending event,
// which is enough because every change triggers the same full resync.
type Listener struct {
	pool       *db.Pool
	logger     *slog.Logger
	channel    string
	retryEvery time.Duration
	events     chan struct{}
}

func NewListener(pool *db.Pool, logger *slog.Logger, channel string) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Listener{
		pool:       pool,
		logger:     logger,
		channel:    channel,
		retryEvery: 5 * time.Second,
		events:     make(chan struct{}, 1),
	}
}

// Events is the change feed consumed by the registry.
func (l *Listener) Events() <-chan struct{} {
	return l.events
}

// Run blocks until ctx is cancelled, reconnecting with a fixed delay when the
// listening connection is lost. Cancelling ctx releases the connection.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("change listener disconnected", "err", err, "channel", l.channel)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryEvery):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Close rather than return to the pool: a connection that failed
		// mid-LISTEN must not be reused for queries.
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = conn.Conn().Close(closeCtx)
		cancel()
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.logger.Info("listening for appointment changes", "channel", l.channel)

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		select {
		case l.events <- struct{}{}:
		default:
		}
	}
}
