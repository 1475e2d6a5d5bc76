package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/dbpool"
)

// JobsChannel is the NOTIFY channel fired by the scheduled_jobs trigger.
const JobsChannel = "cadence_jobs"

const (
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// JobListener subscribes to LISTEN cadence_jobs and signals a wake-up
// channel with the queue name of every newly due job. Workers still poll;
// the listener only shortens the latency of freshly enqueued work.
type JobListener struct {
	log  *logrus.Logger
	pool *dbpool.Pool
	wake chan string
}

// NewJobListener creates a JobListener.
func NewJobListener(log *logrus.Logger, pool *dbpool.Pool) *JobListener {
	return &JobListener{
		log:  log,
		pool: pool,
		wake: make(chan string, 64),
	}
}

// Wake returns the channel receiving queue names. Sends never block;
// signals are dropped while the buffer is full.
func (l *JobListener) Wake() <-chan string { return l.wake }

// Start verifies connectivity and launches the listen loop. Reconnection is
// handled in the background.
func (l *JobListener) Start(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		return fmt.Errorf("job listener: database not reachable: %w", err)
	}

	go l.listen(ctx)

	return nil
}

func (l *JobListener) listen(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		err := l.subscribe(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		l.log.WithError(err).WithField("retry_in", backoff).
			Warn("job listener connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

func (l *JobListener) subscribe(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{JobsChannel}.Sanitize()); err != nil {
		return fmt.Errorf("executing LISTEN: %w", err)
	}

	l.log.WithField("channel", JobsChannel).Info("job listener listening")

	for {
		// Periodic deadline so cancellation is observed on idle connections.
		if err := conn.Conn().PgConn().Conn().SetReadDeadline(time.Now().Add(2 * time.Minute)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		l.handle(n)
	}
}

func (l *JobListener) handle(n *pgconn.Notification) {
	select {
	case l.wake <- n.Payload:
	default:
		l.log.WithField("queue", n.Payload).Debug("job wake-up dropped, buffer full")
	}
}

// nextBackoff doubles the current backoff with ±25% jitter, capped at maxBackoff.
func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffMultiplier
	if next > maxBackoff {
		next = maxBackoff
	}

	jitter := float64(next) * (0.75 + rand.Float64()*0.5) //nolint:gosec // jitter doesn't need crypto rand.

	return time.Duration(jitter)
}
