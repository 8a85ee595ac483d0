package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownGrace bounds how long in-flight requests get after a signal.
const ShutdownGrace = 10 * time.Second

// Serve runs srv until ctx is done, then calls each draining hook (for
// example flipping gRPC health to NOT_SERVING) and shuts srv down. It
// returns once the server has stopped.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger, draining ...func()) {
	errc := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
		return
	case <-ctx.Done():
	}

	for _, hook := range draining {
		hook()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
