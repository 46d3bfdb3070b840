package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Signals cancel the run context.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler cancels a run on signal and runs cleanup hooks.
type Handler struct {
	timeout time.Duration

	mu    sync.Mutex
	hooks []hook
	ran   bool
}

// NewHandler creates a handler whose hooks share the given timeout.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{timeout: timeout}
}

// Context returns a context cancelled by the first signal. stop releases the
// signal registration.
func (h *Handler) Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, Signals...)
}

// OnShutdown registers a named cleanup hook. Hooks run in reverse order.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// OnClose registers a plain Close function.
func (h *Handler) OnClose(name string, fn func() error) {
	h.OnShutdown(name, func(context.Context) error { return fn() })
}

// Run executes the hooks once, newest first, and joins their errors. The
// hooks get a context detached from ctx's cancellation but bounded by the
// handler timeout.
func (h *Handler) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return nil
	}
	h.ran = true
	hooks := append([]hook(nil), h.hooks...)
	h.mu.Unlock()

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].fn(hctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", hooks[i].name, err))
		}
	}
	return errors.Join(errs...)
}
