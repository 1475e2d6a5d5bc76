package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/persistorai/cadence/internal/db"
	"github.com/persistorai/cadence/internal/dbpool"
	"github.com/persistorai/cadence/internal/service"
	"github.com/persistorai/cadence/internal/store"
	"github.com/persistorai/cadence/internal/tenant"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), 2)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool, log); err != nil {
				return err
			}

			return db.CheckSchema(ctx, pool)
		},
	}
}

func newPurgeAuditCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge-audit",
		Short: "Delete audit log entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.AuditRetentionDays
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), 2)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			n, err := purgeAudit(ctx, service.NewAuditService(store.NewAuditStore(store.Base{Pool: pool, Log: log}), log), days)
			if err != nil {
				return err
			}

			log.WithField("deleted", n).WithField("retention_days", days).Info("audit log purged")
			fmt.Printf("Deleted %d audit entries older than %d days\n", n, days)

			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default: AUDIT_RETENTION_DAYS)")

	return cmd
}

// auditPurger deletes audit entries older than a retention window.
type auditPurger interface {
	PurgeOldEntries(ctx context.Context, retentionDays int) (int, error)
}

// purgeAudit runs the purge under the platform-admin identity, the only
// caller allowed to touch every tenant's audit log.
func purgeAudit(ctx context.Context, p auditPurger, days int) (int, error) {
	ctx = tenant.With(ctx, tenant.ForPlatformAdmin("purge-audit"))

	n, err := p.PurgeOldEntries(ctx, days)
	if err != nil {
		return 0, fmt.Errorf("purging audit log: %w", err)
	}

	return n, nil
}
