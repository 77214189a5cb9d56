package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Provide publishes a service under name so later modules can resolve it.
// Providing a name twice replaces the earlier value.
func (b *Bootstrap) Provide(name string, value any) {
	b.mu.Lock()
	_, replaced := b.capabilities[name]
	b.capabilities[name] = value
	b.mu.Unlock()

	if replaced {
		b.logger.Debug("Capability replaced", zap.String("name", name))
	}
}

// Resolve returns the value provided under name.
func (b *Bootstrap) Resolve(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.capabilities[name]
	return v, ok
}

// Lookup resolves name and asserts it to T.
func Lookup[T any](b *Bootstrap, name string) (T, bool) {
	var zero T
	v, ok := b.Resolve(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// WaitFor blocks until name is initialized, polling at a fixed interval. A
// zero timeout uses DefaultWaitTimeout.
func (b *Bootstrap) WaitFor(ctx context.Context, name string, timeout time.Duration) error {
	if b.IsReady(name) {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w %s to initialize", ErrWaitTimeout, name)
		case <-ticker.C:
			if b.IsReady(name) {
				return nil
			}
		}
	}
}

// WaitForAll waits for every name with a shared timeout; zero uses
// DefaultWaitAllLimit. The first failure cancels the remaining waits.
func (b *Bootstrap) WaitForAll(ctx context.Context, names []string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitAllLimit
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			return b.WaitFor(gctx, name, timeout)
		})
	}
	return g.Wait()
}
