package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/tenant"
)

// AuditJob represents a single audit entry to be recorded.
type AuditJob struct {
	TenantID   string
	Action     string
	EntityType string
	EntityID   string
	Actor      string
	Meta       map[string]any
}

// AuditEnqueuer accepts audit entries for asynchronous recording.
type AuditEnqueuer interface {
	Enqueue(job *AuditJob)
}

// AuditWorker buffers audit entries and writes them via a single worker goroutine.
type AuditWorker struct {
	auditor Auditor
	log     *logrus.Logger
	jobs    chan *AuditJob
}

// NewAuditWorker creates an AuditWorker with the given queue capacity.
func NewAuditWorker(auditor Auditor, log *logrus.Logger, queueSize int) *AuditWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &AuditWorker{
		auditor: auditor,
		log:     log,
		jobs:    make(chan *AuditJob, queueSize),
	}
}

// Enqueue adds an audit job. Non-blocking; drops the job if the queue is full.
func (w *AuditWorker) Enqueue(job *AuditJob) {
	select {
	case w.jobs <- job:
	default:
		w.log.WithField("action", job.Action).Warn("audit queue full, dropping entry")
	}
}

// Run processes audit jobs until the context is cancelled, then drains remaining jobs.
func (w *AuditWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case job := <-w.jobs:
			w.process(job)
		}
	}
}

func (w *AuditWorker) drain() {
	for {
		select {
		case job := <-w.jobs:
			w.process(job)
		default:
			return
		}
	}
}

// process writes one entry under a context scoped to the entry's tenant,
// detached from the request that produced it.
func (w *AuditWorker) process(job *AuditJob) {
	ctx := tenant.With(context.Background(), tenant.ForTenant("audit:"+job.Action, job.TenantID))

	if err := w.auditor.RecordAudit(
		ctx, job.TenantID, job.Action, job.EntityType, job.EntityID, job.Actor, job.Meta,
	); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id": job.TenantID,
			"action":    job.Action,
		}).Warn("audit record failed")
	}
}

// actorOf returns the authenticated user behind ctx, or "" for system work.
func actorOf(ctx context.Context) string {
	if tc := tenant.From(ctx); tc != nil {
		return tc.UserID()
	}

	return ""
}

// audit enqueues an entry attributed to the caller in ctx. A nil worker
// disables auditing.
func audit(ctx context.Context, w AuditEnqueuer, tenantID, action, entityType, entityID string, meta map[string]any) {
	if w == nil {
		return
	}

	w.Enqueue(&AuditJob{
		TenantID:   tenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actorOf(ctx),
		Meta:       meta,
	})
}
