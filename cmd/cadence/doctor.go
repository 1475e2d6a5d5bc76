package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/cadence/internal/config"
	"github.com/persistorai/cadence/internal/db"
	"github.com/persistorai/cadence/internal/dbpool"
	"github.com/persistorai/cadence/internal/replay"
)

const doctorTimeout = 10 * time.Second

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Validate the environment and check the database, schema and Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			return printChecks(os.Stdout, runDoctor(ctx))
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor(ctx context.Context) []checkResult {
	cfg, err := config.Load()
	if err != nil {
		return []checkResult{{
			Name: "Configuration", Detail: err.Error(),
			Hint: "Fix the environment variable named above",
		}}
	}

	results := []checkResult{{Name: "Configuration", Passed: true, Detail: "valid"}}

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), 2)
	if err != nil {
		return append(results, checkResult{
			Name: "Database", Detail: err.Error(),
			Hint: "Is PostgreSQL running and DATABASE_URL correct?",
		})
	}
	defer pool.Close()

	results = append(results, checkResult{Name: "Database", Passed: true, Detail: "reachable"})

	if err := db.CheckSchema(ctx, pool); err != nil {
		results = append(results, checkResult{
			Name: "Schema", Detail: err.Error(),
			Hint: "Run: cadence migrate",
		})
	} else {
		results = append(results, checkResult{Name: "Schema", Passed: true, Detail: "up to date"})
	}

	if cfg.RedisAddr == "" {
		return append(results, checkResult{Name: "Redis", Passed: true, Detail: "not configured (in-memory replay guard)"})
	}

	client, err := replay.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword.Value(), cfg.RedisDB)
	if err != nil {
		return append(results, checkResult{
			Name: "Redis", Detail: cfg.RedisAddr,
			Hint: fmt.Sprintf("Check REDIS_ADDR and REDIS_PASSWORD. Error: %v", err),
		})
	}
	client.Close() //nolint:errcheck // probe only.

	return append(results, checkResult{Name: "Redis", Passed: true, Detail: cfg.RedisAddr})
}

// printChecks writes the results and fails when any check did not pass.
func printChecks(w io.Writer, results []checkResult) error {
	fmt.Fprintln(w, "\nCadence Doctor")
	fmt.Fprintln(w, "==============")
	fmt.Fprintln(w)

	allPassed := true
	for _, r := range results {
		mark := "✅"
		if !r.Passed {
			mark = "❌"
			allPassed = false
		}

		if r.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Fprintf(w, "   Hint: %s\n", r.Hint)
		}
	}

	fmt.Fprintln(w)
	if !allPassed {
		fmt.Fprintln(w, "❌ Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Fprintln(w, "✅ All checks passed!")
	return nil
}
