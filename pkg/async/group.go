package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Group runs background tasks with panic recovery and tracks them, so a
// shutdown can stop new work and wait for running tasks before releasing the
// resources they use.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGroup creates a group whose tasks run under a context derived from ctx.
// Cancelling ctx or calling Shutdown cancels every task.
func NewGroup(ctx context.Context, logger logrus.FieldLogger) *Group {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel, logger: logger}
}

// Go runs fn in a new goroutine. A positive timeout bounds the task. Errors
// and panics are logged under taskName and never crash the process. Go
// reports false, without running fn, once Shutdown has been called.
func (g *Group) Go(taskName string, timeout time.Duration, fn func(context.Context) error) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		ctx := g.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := run(ctx, fn); err != nil {
			g.logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
	return true
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Shutdown refuses new tasks, cancels running ones and waits for them to
// return or for ctx to be done.
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks did not stop: %w", ctx.Err())
	}
}
