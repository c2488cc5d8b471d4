package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dcshock/runpipe/api"
	"github.com/dcshock/runpipe/metrics"
	"github.com/dcshock/runpipe/observer"
	"github.com/dcshock/runpipe/pipeline"
	"github.com/dcshock/runpipe/scope"
	"github.com/dcshock/runpipe/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// server bundles what serve wires together so tests can build it without
// listening.
type server struct {
	handler http.Handler
	project *scope.Project
	history observer.RunStore
	store   *backends
}

func newServer(ctx context.Context, settings storeSettings, reg *prometheus.Registry) (*server, error) {
	collector := metrics.New(reg)
	tracer := tracing.NewReporter(nil)
	reporters := func(scopeName, name string) pipeline.Reporter {
		return pipeline.MultiReporter(collector.ForPipeline(scopeName, name), tracer)
	}
	project, err := loadProject(scope.WithReporters(reporters))
	if err != nil {
		return nil, err
	}
	b, err := openBackends(ctx, settings)
	if err != nil {
		return nil, err
	}
	history := b.History
	if history == nil {
		history = observer.NewMemoryRunStore()
	}

	h := api.NewPipelineHandler(project, b.Store, runReporter(history), logger).WithRunHistory(history)
	router := api.SetupRoutes(h, logger)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	return &server{handler: router, project: project, history: history, store: b}, nil
}

// resumeLoop re-runs failed pipelines every interval until ctx is done.
func (s *server) resumeLoop(ctx context.Context, interval time.Duration) {
	resumer := observer.NewResumer(s.history, s.project)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req := scope.RunRequest{Store: s.store.Store, Reporter: runReporter(s.history)}
			n, err := resumer.ResumeFailed(ctx, req)
			if err != nil {
				logger.WarnContext(ctx, "resume pass failed", "resumed", n, "error", err)
			} else if n > 0 {
				logger.InfoContext(ctx, "resumed failed pipelines", "resumed", n)
			}
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if traceStdout {
		shutdown, err := initTracer(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error("failed to shut down tracer provider", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := newServer(ctx, currentStoreSettings(), reg)
	if err != nil {
		return err
	}
	defer srv.store.Close()

	if resumeInterval > 0 {
		go srv.resumeLoop(ctx, resumeInterval)
	}

	httpServer := &http.Server{
		Addr:              serveAddr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", serveAddr, "store", storeKind)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(sctx)
}
