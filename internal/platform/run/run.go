package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	Logger *zap.Logger

	// ShutdownTimeout bounds every hook registered with OnShutdown.
	ShutdownTimeout time.Duration

	hooks []func(context.Context) error
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: 10 * time.Second}
}

// OnShutdown registers a hook run in reverse registration order once the
// start function returns or a signal arrives.
func (r *Runner) OnShutdown(hook func(context.Context) error) {
	r.hooks = append(r.hooks, hook)
}

// WithSignals runs start until it returns or SIGINT/SIGTERM is received and
// returns the process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	code := 0
	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			r.Logger.Error("service exited with error", zap.Error(err))
			code = 1
		}
	}
	cancel()
	r.shutdown()
	return code
}

func (r *Runner) shutdown() {
	c, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()
	for i := len(r.hooks) - 1; i >= 0; i-- {
		if err := r.hooks[i](c); err != nil {
			r.Logger.Warn("shutdown hook failed", zap.Error(err))
		}
	}
}

func Exit(code int) {
	os.Exit(code)
}
