package models

import (
	"encoding/json"
	"time"
)

// JobQueue names a category of background work with its own concurrency.
type JobQueue string

// Job queues.
const (
	QueueETL           JobQueue = "etl"
	QueueAutomation    JobQueue = "automations"
	QueueMetrics       JobQueue = "metrics"
	QueueNotifications JobQueue = "notifications"
)

// JobState is the lifecycle state of a queued job.
type JobState string

// Job states.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is one durable unit of background work. Repeating jobs carry a stable
// Key and an Interval; one-off jobs have a zero Interval.
type Job struct {
	ID          string          `json:"id"`
	Queue       JobQueue        `json:"queue"`
	Key         string          `json:"key"`
	TenantID    string          `json:"tenantId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Interval    time.Duration   `json:"interval"`
	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// JobRun is a retained history entry for a finished job execution.
type JobRun struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"jobId"`
	Queue      JobQueue  `json:"queue"`
	Key        string    `json:"key"`
	State      JobState  `json:"state"`
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// JobRunQuery filters the job history listing.
type JobRunQuery struct {
	Queue JobQueue
	State JobState
	Limit int
}

// Job history listing bounds.
const (
	DefaultJobRunLimit = 50
	MaxJobRunLimit     = 500
)

// Normalize validates the filters and clamps Limit.
func (q *JobRunQuery) Normalize() error {
	var issues []Issue

	switch q.Queue {
	case "", QueueETL, QueueAutomation, QueueMetrics, QueueNotifications:
	default:
		issues = append(issues, Issue{Field: "queue", Message: "unknown queue"})
	}

	switch q.State {
	case "", JobCompleted, JobFailed:
	default:
		issues = append(issues, Issue{Field: "state", Message: "state must be completed or failed"})
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	switch {
	case q.Limit <= 0:
		q.Limit = DefaultJobRunLimit
	case q.Limit > MaxJobRunLimit:
		q.Limit = MaxJobRunLimit
	}

	return nil
}

// AutomationJobPayload evaluates one rule, or every enabled rule of the
// tenant when RuleID is empty.
type AutomationJobPayload struct {
	TenantID string `json:"tenantId"`
	RuleID   string `json:"ruleId,omitempty"`
}

// ETLJobPayload polls one REST_POLL data source.
type ETLJobPayload struct {
	TenantID     string `json:"tenantId"`
	DataSourceID string `json:"dataSourceId"`
}

// MetricJobPayload evaluates one metric in the background.
type MetricJobPayload struct {
	TenantID string `json:"tenantId"`
	MetricID string `json:"metricId"`
}

// NotificationJobPayload writes a single in-app notification.
type NotificationJobPayload struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}
