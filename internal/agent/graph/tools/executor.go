package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/metrics"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

const maxErrorDetail = 300

// Executor runs tool-call requests against a Registry. Every request yields
// exactly one tool message carrying the request's call id; failures are
// reported inside that message instead of being returned.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

func NewExecutor(registry *Registry, timeout time.Duration) *Executor {
	return &Executor{registry: registry, timeout: timeout}
}

// Run executes calls sequentially in request order.
func (e *Executor) Run(ctx context.Context, calls []schema.ToolCall) []*schema.Message {
	results := make([]*schema.Message, 0, len(calls))
	for _, call := range calls {
		content := e.invoke(ctx, call)
		msg := schema.ToolMessage(content, call.ID)
		msg.ToolName = call.Function.Name
		results = append(results, msg)
	}
	return results
}

func (e *Executor) invoke(ctx context.Context, call schema.ToolCall) (content string) {
	name := call.Function.Name
	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("tool_name", name).Msgf("panic recovered: %v", r)
			status = "panic"
			content = "Error invoking tool: internal error"
		}
		metrics.ToolCalls.WithLabelValues(metricName(name), status).Inc()
		metrics.ToolDuration.WithLabelValues(metricName(name)).Observe(time.Since(start).Seconds())
	}()

	t, err := e.registry.Get(name)
	if err != nil {
		status = "unknown"
		logx.Warn().Str("tool_name", name).Str("tool_call_id", call.ID).Msg("Unknown tool requested")
		return errorResult(err)
	}

	args := SanitizeArguments(name, call.Function.Arguments)
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// tools run outside a compose ToolsNode, so lifecycle callbacks are fired here
	callCtx = einocb.ReuseHandlers(callCtx, &einocb.RunInfo{Name: name, Component: components.ComponentOfTool})
	callCtx = einocb.OnStart(callCtx, &tool.CallbackInput{ArgumentsInJSON: args})

	logx.Debug().Str("tool_name", name).Str("tool_call_id", call.ID).Str("arguments", args).Msg("Invoking tool")
	out, err := t.InvokableRun(callCtx, args)
	if err != nil {
		einocb.OnError(callCtx, err)
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		logx.Warn().Err(err).Str("tool_name", name).Str("tool_call_id", call.ID).Msg("Tool invocation failed")
		return errorResult(err)
	}
	einocb.OnEnd(callCtx, &tool.CallbackOutput{Response: out})
	return out
}

func errorResult(err error) string {
	detail := strings.TrimSpace(err.Error())
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail] + "..."
	}
	return fmt.Sprintf("Error invoking tool: %s", detail)
}

// metricName bounds label cardinality for hallucinated tool names.
func metricName(name string) string {
	if _, known := argumentKinds[name]; known || name == ToolGetAvailableLoans {
		return name
	}
	return "unknown"
}
