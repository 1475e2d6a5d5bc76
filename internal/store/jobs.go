package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// JobStore persists the background job queue. Jobs are not tenant-owned:
// workers claim across tenants and bind each job's tenant into its own
// context before running it.
type JobStore struct {
	Base

	// HistoryLimit bounds retained job_runs per (queue, state).
	HistoryLimit int
}

// NewJobStore creates a JobStore.
func NewJobStore(base Base, historyLimit int) *JobStore {
	if historyLimit <= 0 {
		historyLimit = 500
	}

	return &JobStore{Base: base, HistoryLimit: historyLimit}
}

const jobColumns = `id, queue, coalesce(key, ''), coalesce(tenant_id::text, ''), payload, interval_ms,
	state, attempts, max_attempts, run_at, coalesce(last_error, ''), created_at, updated_at`

func scanJob(scan func(dest ...any) error) (*models.Job, error) {
	var j models.Job
	var intervalMS int64
	var payload []byte
	if err := scan(&j.ID, &j.Queue, &j.Key, &j.TenantID, &payload, &intervalMS,
		&j.State, &j.Attempts, &j.MaxAttempts, &j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	j.Interval = time.Duration(intervalMS) * time.Millisecond

	return &j, nil
}

func (s *JobStore) jobTx(ctx context.Context, op guard.Op) (pgx.Tx, error) {
	sc, err := guard.Check(ctx, guard.Request{Op: op, Entity: guard.Job})
	if err != nil {
		return nil, err
	}

	return s.beginTx(ctx, sc)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func payloadOrEmpty(p json.RawMessage) []byte {
	if len(p) == 0 {
		return []byte("{}")
	}

	return p
}

// UpsertRepeating registers a repeating job under key. An existing job with
// the same key is replaced: its schedule, payload and attempt count reset.
func (s *JobStore) UpsertRepeating(ctx context.Context, j models.Job, firstRun time.Time) (*models.Job, error) {
	if j.Key == "" || j.Interval <= 0 {
		return nil, fmt.Errorf("repeating job needs a key and a positive interval")
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.jobTx(ctx, guard.Upsert)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	out, err := scanJob(tx.QueryRow(ctx, `
		INSERT INTO scheduled_jobs (queue, key, tenant_id, payload, interval_ms, max_attempts, run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) WHERE key IS NOT NULL DO UPDATE
		   SET queue = EXCLUDED.queue,
		       tenant_id = EXCLUDED.tenant_id,
		       payload = EXCLUDED.payload,
		       interval_ms = EXCLUDED.interval_ms,
		       max_attempts = EXCLUDED.max_attempts,
		       run_at = CASE WHEN scheduled_jobs.state = 'running' THEN scheduled_jobs.run_at ELSE EXCLUDED.run_at END,
		       state = CASE WHEN scheduled_jobs.state = 'running' THEN 'running' ELSE 'pending' END,
		       attempts = CASE WHEN scheduled_jobs.state = 'running' THEN scheduled_jobs.attempts ELSE 0 END,
		       last_error = NULL,
		       updated_at = now()
		RETURNING `+jobColumns,
		j.Queue, j.Key, nullable(j.TenantID), payloadOrEmpty(j.Payload), j.Interval.Milliseconds(), j.MaxAttempts, firstRun,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting repeating job %s: %w", j.Key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing repeating job: %w", err)
	}

	return out, nil
}

// Enqueue adds a one-off job that runs as soon as a worker is free.
func (s *JobStore) Enqueue(ctx context.Context, j models.Job) (*models.Job, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.jobTx(ctx, guard.Create)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	out, err := scanJob(tx.QueryRow(ctx, `
		INSERT INTO scheduled_jobs (queue, key, tenant_id, payload, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+jobColumns,
		j.Queue, nullable(j.Key), nullable(j.TenantID), payloadOrEmpty(j.Payload), j.MaxAttempts,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s job: %w", j.Queue, isDuplicate(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing job: %w", err)
	}

	return out, nil
}

// RemoveByKey deletes the job registered under key. It reports whether a
// job was removed. A running job finishes but is not rescheduled.
func (s *JobStore) RemoveByKey(ctx context.Context, key string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.jobTx(ctx, guard.DeleteMany)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	tag, err := tx.Exec(ctx, `DELETE FROM scheduled_jobs WHERE key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("removing job %s: %w", key, err)
	}

	return tag.RowsAffected() > 0, tx.Commit(ctx)
}

// ClaimDue atomically moves up to limit due jobs of queue to running and
// returns them. Concurrent claimers never receive the same job.
func (s *JobStore) ClaimDue(ctx context.Context, queue models.JobQueue, limit int) ([]models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.jobTx(ctx, guard.UpdateMany)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	rows, err := tx.Query(ctx, `
		UPDATE scheduled_jobs SET state = 'running', attempts = attempts + 1, locked_at = now(), updated_at = now()
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE queue = $1 AND state = 'pending' AND run_at <= now()
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming %s jobs: %w", queue, err)
	}

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			rows.Close()

			return nil, fmt.Errorf("scanning job: %w", err)
		}
		out = append(out, *j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	return out, nil
}

// Complete records a successful execution. Repeating jobs are rescheduled
// one interval ahead; one-off jobs are removed.
func (s *JobStore) Complete(ctx context.Context, j models.Job) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.jobTx(ctx, guard.UpdateMany)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	if err := s.recordRun(ctx, tx, j, models.JobCompleted, ""); err != nil {
		return err
	}

	if j.Interval > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE scheduled_jobs
			   SET state = 'pending', attempts = 0, last_error = NULL, locked_at = NULL,
			       run_at = now() + make_interval(secs => $2::double precision / 1000), updated_at = now()
			 WHERE id = $1`, j.ID, j.Interval.Milliseconds())
	} else {
		_, err = tx.Exec(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, j.ID)
	}
	if err != nil {
		return fmt.Errorf("finishing job %s: %w", j.ID, err)
	}

	return tx.Commit(ctx)
}

// Fail records a failed execution. While attempts remain the job is retried
// after backoff. Once exhausted, repeating jobs fall back to their next
// interval and one-off jobs are dropped; both leave a failed history entry.
// It reports whether the failure was terminal.
func (s *JobStore) Fail(ctx context.Context, j models.Job, reason string, backoff time.Duration) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.jobTx(ctx, guard.UpdateMany)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	terminal := j.Attempts >= j.MaxAttempts
	switch {
	case !terminal:
		_, err = tx.Exec(ctx, `
			UPDATE scheduled_jobs
			   SET state = 'pending', last_error = $2, locked_at = NULL,
			       run_at = now() + make_interval(secs => $3::double precision / 1000), updated_at = now()
			 WHERE id = $1`, j.ID, reason, backoff.Milliseconds())
	case j.Interval > 0:
		_, err = tx.Exec(ctx, `
			UPDATE scheduled_jobs
			   SET state = 'pending', attempts = 0, last_error = $2, locked_at = NULL,
			       run_at = now() + make_interval(secs => $3::double precision / 1000), updated_at = now()
			 WHERE id = $1`, j.ID, reason, j.Interval.Milliseconds())
	default:
		_, err = tx.Exec(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, j.ID)
	}
	if err != nil {
		return false, fmt.Errorf("failing job %s: %w", j.ID, err)
	}

	if terminal {
		if err := s.recordRun(ctx, tx, j, models.JobFailed, reason); err != nil {
			return false, err
		}
	}

	return terminal, tx.Commit(ctx)
}

// recordRun appends a history entry and trims the history of the same
// queue and state to HistoryLimit.
func (s *JobStore) recordRun(ctx context.Context, tx pgx.Tx, j models.Job, state models.JobState, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO job_runs (job_id, queue, key, state, attempt, error)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.Queue, nullable(j.Key), state, j.Attempts, nullable(reason))
	if err != nil {
		return fmt.Errorf("recording job run: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM job_runs WHERE queue = $1 AND state = $2 AND id NOT IN (
			SELECT id FROM job_runs WHERE queue = $1 AND state = $2
			ORDER BY finished_at DESC, id DESC LIMIT $3
		)`, j.Queue, state, s.HistoryLimit)
	if err != nil {
		return fmt.Errorf("pruning job history: %w", err)
	}

	return nil
}

// RecoverStale returns jobs left running by a crashed worker to pending.
func (s *JobStore) RecoverStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.jobTx(ctx, guard.UpdateMany)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	tag, err := tx.Exec(ctx, `
		UPDATE scheduled_jobs SET state = 'pending', locked_at = NULL, updated_at = now()
		WHERE state = 'running' AND locked_at < $1`, lockedBefore)
	if err != nil {
		return 0, fmt.Errorf("recovering stale jobs: %w", err)
	}

	return tag.RowsAffected(), tx.Commit(ctx)
}

// ListRuns returns the newest job history entries, optionally filtered by
// queue and state.
func (s *JobStore) ListRuns(ctx context.Context, queue models.JobQueue, state models.JobState, limit int) ([]models.JobRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindMany, Entity: guard.Job})
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	if queue != "" {
		w.eq("queue", queue)
	}
	if state != "" {
		w.eq("state", state)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, job_id, queue, coalesce(key, ''), state, attempt, coalesce(error, ''), finished_at
		FROM job_runs WHERE `+w.String()+` ORDER BY finished_at DESC, id DESC LIMIT `+w.next(limit), w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing job runs: %w", err)
	}
	defer rows.Close()

	var out []models.JobRun
	for rows.Next() {
		var r models.JobRun
		if err := rows.Scan(&r.ID, &r.JobID, &r.Queue, &r.Key, &r.State, &r.Attempt, &r.Error, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning job run: %w", err)
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// QueueLag returns the age of the oldest due pending job of queue, or zero.
func (s *JobStore) QueueLag(ctx context.Context, queue models.JobQueue) (time.Duration, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindFirst, Entity: guard.Job})
	if err != nil {
		return 0, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var secs float64
	err = tx.QueryRow(ctx, `
		SELECT coalesce(extract(epoch FROM now() - min(run_at)), 0)
		FROM scheduled_jobs WHERE queue = $1 AND state = 'pending' AND run_at <= now()`, queue).Scan(&secs)
	if err != nil {
		return 0, fmt.Errorf("reading %s lag: %w", queue, err)
	}

	return time.Duration(secs * float64(time.Second)), nil
}
