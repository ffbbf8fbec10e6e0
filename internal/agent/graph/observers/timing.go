package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/metrics"
)

type startKey struct{}

// NewTimingCallbacks observes the duration of every graph component run.
func NewTimingCallbacks() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, _ *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			return context.WithValue(ctx, startKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			observe(ctx, info)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, _ error) context.Context {
			observe(ctx, info)
			return ctx
		}).
		Build()
}

func observe(ctx context.Context, info *einocb.RunInfo) {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok || info == nil {
		return
	}
	component := string(info.Component)
	if component == "" {
		component = "unknown"
	}
	metrics.NodeDuration.WithLabelValues(component, info.Name).Observe(time.Since(start).Seconds())
}
