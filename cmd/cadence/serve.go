package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/cadence/internal/api"
	"github.com/persistorai/cadence/internal/config"
)

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, scheduler and workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.scheduler.Bootstrap(ctx, a.tenants, a.dataSources); err != nil {
		return fmt.Errorf("bootstrapping schedules: %w", err)
	}

	if err := a.listener.Start(ctx); err != nil {
		log.WithError(err).Warn("job listener unavailable, falling back to polling")
	}

	apiServer := newHTTPServer(cfg.Addr(), api.NewRouter(ctx, a.router))

	var metricsServer *http.Server
	if addr := cfg.MetricsAddr(); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = newHTTPServer(addr, mux)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.audit.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx, a.listener.Wake())
	})
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": apiServer.Addr, "version": config.Version}).Info("cadence listening")
		return listen(apiServer)
	})
	if metricsServer != nil {
		g.Go(func() error {
			log.WithField("addr", metricsServer.Addr).Info("metrics listening")
			return listen(metricsServer)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := apiServer.Shutdown(shutdownCtx)
		if metricsServer != nil {
			err = errors.Join(err, metricsServer.Shutdown(shutdownCtx))
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// listen serves until Shutdown; a clean shutdown is not an error.
func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s: %w", srv.Addr, err)
	}

	return nil
}
