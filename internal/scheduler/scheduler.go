// Package scheduler runs background jobs from the durable job queue with
// bounded concurrency per queue, and registers the repeating jobs that
// drive ETL polling and automation sweeps.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/cadence/internal/metrics"
	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

// Queue is the persistence the scheduler drives.
type Queue interface {
	UpsertRepeating(ctx context.Context, j models.Job, firstRun time.Time) (*models.Job, error)
	Enqueue(ctx context.Context, j models.Job) (*models.Job, error)
	RemoveByKey(ctx context.Context, key string) (bool, error)
	ClaimDue(ctx context.Context, queue models.JobQueue, limit int) ([]models.Job, error)
	Complete(ctx context.Context, j models.Job) error
	Fail(ctx context.Context, j models.Job, reason string, backoff time.Duration) (bool, error)
	RecoverStale(ctx context.Context, lockedBefore time.Time) (int64, error)
	QueueLag(ctx context.Context, queue models.JobQueue) (time.Duration, error)
}

// Handler executes one job. The context carries a tenant context bound to
// the job's tenant.
type Handler func(ctx context.Context, j models.Job) error

// Config tunes scheduling and retries.
type Config struct {
	PollInterval       time.Duration
	AutomationInterval time.Duration
	ETLInterval        time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	StaleAfter         time.Duration
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.AutomationInterval <= 0 {
		c.AutomationInterval = 5 * time.Minute
	}
	if c.ETLInterval <= 0 {
		c.ETLInterval = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
}

type worker struct {
	queue       models.JobQueue
	concurrency int
	handle      Handler
	wake        chan struct{}
}

// Scheduler claims due jobs and dispatches them to per-queue handlers.
type Scheduler struct {
	jobs    Queue
	cfg     Config
	log     *logrus.Logger
	workers map[models.JobQueue]*worker
	now     func() time.Time
}

// New creates a Scheduler. Handlers are attached with Handle before Run.
func New(jobs Queue, cfg Config, log *logrus.Logger) *Scheduler {
	cfg.defaults()

	return &Scheduler{
		jobs:    jobs,
		cfg:     cfg,
		log:     log,
		workers: make(map[models.JobQueue]*worker),
		now:     time.Now,
	}
}

// Handle registers h for queue with at most concurrency jobs in flight.
func (s *Scheduler) Handle(queue models.JobQueue, concurrency int, h Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}

	s.workers[queue] = &worker{
		queue:       queue,
		concurrency: concurrency,
		handle:      h,
		wake:        make(chan struct{}, 1),
	}
}

// systemCtx is the identity under which the scheduler touches the queue.
func systemCtx(ctx context.Context) context.Context {
	return tenant.With(ctx, tenant.ForPlatformAdmin("scheduler"))
}

// Run processes jobs until ctx is cancelled. wake, when non-nil, delivers
// queue names of freshly enqueued jobs and shortens pickup latency.
// In-flight jobs are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context, wake <-chan string) error {
	ctx = systemCtx(ctx)

	if n, err := s.jobs.RecoverStale(ctx, s.now().Add(-s.cfg.StaleAfter)); err != nil {
		s.log.WithError(err).Warn("recovering stale jobs failed")
	} else if n > 0 {
		s.log.WithField("count", n).Info("recovered stale jobs")
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range s.workers {
		g.Go(func() error {
			s.dispatch(gctx, w)
			return nil
		})
	}

	if wake != nil {
		g.Go(func() error {
			s.forwardWakeups(gctx, wake)
			return nil
		})
	}

	g.Go(func() error {
		s.maintain(gctx)
		return nil
	})

	s.log.WithField("queues", len(s.workers)).Info("scheduler started")

	return g.Wait()
}

func (s *Scheduler) forwardWakeups(ctx context.Context, wake <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-wake:
			if !ok {
				return
			}
			if w, found := s.workers[models.JobQueue(q)]; found {
				select {
				case w.wake <- struct{}{}:
				default:
				}
			}
		}
	}
}

// maintain periodically recovers stale jobs and publishes queue lag.
func (s *Scheduler) maintain(ctx context.Context) {
	lag := time.NewTicker(15 * time.Second)
	defer lag.Stop()

	stale := time.NewTicker(time.Minute)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lag.C:
			for q := range s.workers {
				d, err := s.jobs.QueueLag(ctx, q)
				if err != nil {
					s.log.WithError(err).WithField("queue", q).Debug("reading queue lag failed")
					continue
				}
				metrics.JobQueueLag.WithLabelValues(string(q)).Set(d.Seconds())
			}
		case <-stale.C:
			if _, err := s.jobs.RecoverStale(ctx, s.now().Add(-s.cfg.StaleAfter)); err != nil {
				s.log.WithError(err).Warn("recovering stale jobs failed")
			}
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, w *worker) {
	var wg sync.WaitGroup
	defer wg.Wait()

	slots := make(chan struct{}, w.concurrency)
	done := make(chan struct{}, w.concurrency)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if free := w.concurrency - len(slots); free > 0 {
			jobs, err := s.jobs.ClaimDue(ctx, w.queue, free)
			if err != nil && ctx.Err() == nil {
				s.log.WithError(err).WithField("queue", w.queue).Warn("claiming jobs failed")
			}

			for _, j := range jobs {
				slots <- struct{}{}
				wg.Add(1)

				go func() {
					defer wg.Done()
					defer func() {
						<-slots
						select {
						case done <- struct{}{}:
						default:
						}
					}()

					s.execute(ctx, w, j)
				}()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		case <-done:
		}
	}
}

// execute runs one claimed job and records its outcome. Bookkeeping uses a
// context detached from cancellation so shutdown does not strand jobs in
// the running state.
func (s *Scheduler) execute(ctx context.Context, w *worker, j models.Job) {
	jobID := fmt.Sprintf("%s:%s", j.Queue, j.ID)

	var tc *tenant.Context
	if j.TenantID != "" {
		tc = tenant.ForTenant(jobID, j.TenantID)
	} else {
		tc = tenant.ForPlatformAdmin(jobID)
	}

	log := s.log.WithFields(logrus.Fields{
		"job_id":    jobID,
		"job_key":   j.Key,
		"tenant_id": j.TenantID,
		"attempt":   j.Attempts,
	})

	start := s.now()
	err := s.safeHandle(tenant.With(ctx, tc), w.handle, j)

	book := context.WithoutCancel(ctx)

	if err == nil {
		if cerr := s.jobs.Complete(book, j); cerr != nil {
			log.WithError(cerr).Error("recording job completion failed")
		}
		metrics.JobExecutions.WithLabelValues(string(j.Queue), "completed").Inc()
		log.WithField("duration", s.now().Sub(start)).Debug("job completed")

		return
	}

	terminal, ferr := s.jobs.Fail(book, j, err.Error(), s.Backoff(j.Attempts))
	if ferr != nil {
		log.WithError(ferr).Error("recording job failure failed")
	}

	outcome := "retry"
	if terminal {
		outcome = "failed"
	}
	metrics.JobExecutions.WithLabelValues(string(j.Queue), outcome).Inc()
	log.WithError(err).WithField("terminal", terminal).Warn("job failed")
}

func (s *Scheduler) safeHandle(ctx context.Context, h Handler, j models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("stack", string(debug.Stack())).Error("job handler panicked")
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	return h(ctx, j)
}

// Backoff returns the retry delay after the given attempt: base doubled for
// every attempt beyond the first.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20
	}

	return s.cfg.BackoffBase << (attempt - 1)
}
