// Package sideeffect runs secondary work that must never fail the action
// that triggered it, such as achievement checks after a chat message or a
// notification after a ban.
package sideeffect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/huddle/internal/metrics"
)

// Runner executes best-effort side effects synchronously. Errors and
// panics are logged and counted, then swallowed.
type Runner struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, metrics: m}
}

// Run calls fn and reports whether it succeeded.
func (r *Runner) Run(ctx context.Context, name string, fn func(context.Context) error) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(ctx, name, fmt.Errorf("panic: %v", p))
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		r.fail(ctx, name, err)
		return false
	}
	return true
}

func (r *Runner) fail(ctx context.Context, name string, err error) {
	r.logger.LogAttrs(ctx, slog.LevelWarn, "side effect failed",
		slog.String("side_effect", name),
		slog.String("error", err.Error()),
	)
	r.metrics.SideEffectFailed(name)
}
