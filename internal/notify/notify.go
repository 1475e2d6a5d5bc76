// Package notify fans a notification out to every member of a tenant.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/cadence/internal/metrics"
	"github.com/persistorai/cadence/internal/models"
)

// DefaultConcurrency bounds parallel notification writes per fan-out.
const DefaultConcurrency = 10

// MemberLister enumerates the members of a tenant.
type MemberLister interface {
	ListUserIDs(ctx context.Context, tenantID string) ([]string, error)
}

// Writer persists one notification.
type Writer interface {
	Create(ctx context.Context, tenantID, userID string, n models.NewNotification) (*models.Notification, error)
}

// Fanout writes one notification per tenant member.
type Fanout struct {
	members     MemberLister
	writer      Writer
	log         *logrus.Logger
	concurrency int
}

// New creates a Fanout.
func New(members MemberLister, writer Writer, log *logrus.Logger, concurrency int) *Fanout {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Fanout{members: members, writer: writer, log: log, concurrency: concurrency}
}

// Send writes n for every member of tenantID. Writes are independent: a
// failed write is logged and reported in the result but never stops the
// others. Only a failure to enumerate members is returned as an error.
func (f *Fanout) Send(ctx context.Context, tenantID string, n models.NewNotification) (models.FanoutResult, error) {
	userIDs, err := f.members.ListUserIDs(ctx, tenantID)
	if err != nil {
		return models.FanoutResult{}, fmt.Errorf("listing members: %w", err)
	}

	var (
		mu     sync.Mutex
		result models.FanoutResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for _, uid := range userIDs {
		g.Go(func() error {
			_, werr := f.writer.Create(gctx, tenantID, uid, n)

			mu.Lock()
			defer mu.Unlock()

			if werr != nil {
				result.Failed = append(result.Failed, uid)
				metrics.NotificationsCreated.WithLabelValues(string(n.Type), "failed").Inc()
				f.log.WithError(werr).WithFields(logrus.Fields{
					"tenant_id": tenantID,
					"user_id":   uid,
				}).Warn("notification write failed")

				return nil
			}

			result.Delivered++
			metrics.NotificationsCreated.WithLabelValues(string(n.Type), "created").Inc()

			return nil
		})
	}

	_ = g.Wait() // goroutines never return errors.

	return result, nil
}
