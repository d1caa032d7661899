package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zoobzio/scopez"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve HTTP requests, each traced in its own root scope",
	Long: `Serve handles /work requests inside a root scope per request and exposes
Prometheus metrics on the configured metrics path. Pass ?fail=1 to make a
request fail and ?steps=N to log N steps.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg.Metrics.Enabled = true
		addr := serveAddr
		if addr == "" {
			addr = cfg.Metrics.ListenAddress
		}

		h, err := newHost(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck // Logged by the sinks

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              addr,
			Handler:           newMux(h, cfg.Metrics.Path),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			h.logger.Info("serving", "addr", addr, "metrics", cfg.Metrics.Path)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", addr, err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		h.logger.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to metrics.listen_address)")
	rootCmd.AddCommand(serveCmd)
}

func newMux(h *host, metricsPath string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/work", scopeMiddleware(h.registry, http.HandlerFunc(handleWork)))
	mux.Handle(metricsPath, promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	return mux
}

// scopeMiddleware opens a root scope for every request. Server errors mark
// the record as failed.
func scopeMiddleware(reg *scopez.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, scope := reg.Begin(r.Context(), nil)
		defer scope.Close()

		w.Header().Set("X-Scope-ID", scope.ID())
		scopez.Logf(ctx, "%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status >= http.StatusInternalServerError {
			scopez.LogError(ctx, fmt.Errorf("status %d", rec.status), "request failed")
			return
		}
		scopez.Logf(ctx, "completed with status %d", rec.status)
	})
}

func handleWork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	steps := 1
	if v := r.URL.Query().Get("steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			scopez.Logf(ctx, "rejected steps=%q", v)
			http.Error(w, "steps must be a non-negative integer", http.StatusBadRequest)
			return
		}
		steps = n
	}

	for i := 0; i < steps; i++ {
		scopez.Logf(ctx, "step %d", i)
	}

	if r.URL.Query().Get("fail") != "" {
		http.Error(w, "work failed", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "done %d steps\n", steps)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
