package obex

import (
	"context"
	"errors"
	"net/http"
	"time"

	"avaneesh/obex-go/pkg/internal/metrics"
)

// MetricsHandler returns the Prometheus scrape handler for OBEX session metrics.
func MetricsHandler() http.Handler {
	return metrics.Handler()
}

// ServeMetrics serves /metrics on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string, log Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("Metrics: serving on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
