package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const metricsShutdownTimeout = 3 * time.Second

// ServeMetrics exposes the prometheus registry until ctx is done. It returns
// immediately when metrics are disabled.
func (a *App) ServeMetrics(ctx context.Context) error {
	if a.prom == nil {
		return nil
	}
	listener, err := net.Listen("tcp", a.cfg.Metrics.Address)
	if err != nil {
		return err
	}
	return a.serveMetrics(ctx, listener)
}

func (a *App) serveMetrics(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	a.log.Info("metrics listening", zap.String("address", listener.Addr().String()), zap.String("path", a.cfg.Metrics.Path))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
