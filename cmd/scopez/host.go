package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zoobzio/scopez"
	"github.com/zoobzio/scopez/config"
	"github.com/zoobzio/scopez/sinks/console"
	"github.com/zoobzio/scopez/sinks/prom"
	"github.com/zoobzio/scopez/sinks/slogsink"
	"github.com/zoobzio/scopez/sinks/sqlite"
)

// host owns the registry and the sinks listening on it.
type host struct {
	logger   *slog.Logger
	registry *scopez.Registry
	gatherer *prometheus.Registry
	metrics  *prom.Metrics
	store    *sqlite.Writer
}

// newHost wires every enabled sink to a fresh registry. Console output goes
// to out; the host logger writes to logOut.
func newHost(cfg *config.Config, out, logOut io.Writer) (*host, error) {
	logger := newLogger(cfg.Log, logOut)
	h := &host{
		logger:   logger,
		registry: scopez.NewRegistry(scopez.WithLogger(logger.With("component", "scopez"))),
		gatherer: prometheus.NewRegistry(),
	}

	async := false
	if cfg.Workers.Size > 0 {
		if err := h.registry.EnableWorkerPool(cfg.Workers.Size, cfg.Workers.Queue); err != nil {
			return nil, fmt.Errorf("enable worker pool: %w", err)
		}
		async = true
	}

	if cfg.ConsoleEnabled() {
		sink := console.New(console.Options{
			Writer:       out,
			Color:        cfg.Console.Color,
			OnlyFailures: cfg.Console.OnlyFailures,
			RootsOnly:    cfg.Console.RootsOnly,
		})
		h.registry.AddFinalizeListener(sink.Finalize)
	}

	if cfg.Slog.Enabled {
		sink := slogsink.New(slogsink.Options{Logger: logger, RootsOnly: cfg.Slog.RootsOnly})
		if async {
			h.registry.AddFinalizeListenerAsync(sink.Finalize)
		} else {
			h.registry.AddFinalizeListener(sink.Finalize)
		}
	}

	if cfg.SQLite.Enabled {
		store, err := sqlite.Open(sqlite.Config{
			Path:        cfg.SQLite.Path,
			BatchSize:   cfg.SQLite.BatchSize,
			BusyTimeout: cfg.SQLite.BusyTimeout,
			Logger:      logger,
		})
		if err != nil {
			h.registry.Close()
			return nil, err
		}
		h.store = store
		h.registry.AddFinalizeListener(store.Finalize)
	}

	if cfg.Metrics.Enabled {
		if err := h.gatherer.Register(collectors.NewGoCollector()); err != nil {
			h.Close() //nolint:errcheck // Already failing
			return nil, fmt.Errorf("register go collector: %w", err)
		}
		metrics, err := prom.New(cfg.Metrics.Namespace, h.gatherer, h.registry)
		if err != nil {
			h.Close() //nolint:errcheck // Already failing
			return nil, err
		}
		h.metrics = metrics
		h.registry.AddFinalizeListener(metrics.Finalize)
	}

	logger.Debug("host ready",
		"console", cfg.ConsoleEnabled(),
		"slog", cfg.Slog.Enabled,
		"sqlite", cfg.SQLite.Enabled,
		"metrics", cfg.Metrics.Enabled,
		"workers", cfg.Workers.Size,
	)
	return h, nil
}

// Close drains async listeners and flushes the SQLite sink.
func (h *host) Close() error {
	h.registry.Close()
	if dropped := h.registry.DroppedRecords(); dropped > 0 {
		h.logger.Warn("async deliveries dropped", "count", dropped)
	}

	var err error
	if h.store != nil {
		if cerr := h.store.Close(); cerr != nil && !errors.Is(cerr, sqlite.ErrClosed) {
			err = cerr
		}
	}
	return err
}
