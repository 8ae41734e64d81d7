package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"infosync/internal/platform/config"
	"infosync/internal/platform/httpserver"
	"infosync/internal/platform/logger"
	httptransport "infosync/internal/transport/http"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Runs one peer. service.system selects the role: "hr" serves the write path
and receives feedback, "employee" and "insurance" accept upserts from the origin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, map[string]string{
				"addr":   "server.addr",
				"system": "service.system",
			})
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "Listen address, e.g. :8080")
	cmd.Flags().String("system", "", "Peer role: hr, employee or insurance")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := buildApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpserver.New(cfg.Server, httptransport.NewRouter(a.deps))

	// Workers get their own context so they outlive the HTTP server during
	// shutdown and drain whatever it enqueued.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	workers, workerCtx := errgroup.WithContext(workerCtx)
	for _, run := range a.workers {
		workers.Go(func() error { return run(workerCtx) })
	}

	serveErr := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "starting infosync", "system", a.system, "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stopWorkers()
			_ = workers.Wait()
			return err
		}
	}

	log.InfoContext(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "http shutdown failed", "error", err)
	}
	if a.inbound != nil {
		if err := a.inbound.Wait(shutdownCtx); err != nil {
			log.WarnContext(shutdownCtx, "feedback calls still in flight at shutdown", "error", err)
		}
	}
	stopWorkers()
	return workers.Wait()
}
