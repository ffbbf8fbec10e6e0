package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/conversations"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/observers"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/metrics"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

const tracerName = "github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph"

// Runner executes one conversation turn at a time per session.
type Runner interface {
	// Invoke runs a full turn: lock, load checkpoint, run graph, save checkpoint.
	Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error)
	// Reset drops the session's checkpoint.
	Reset(ctx context.Context, sessionID string) error
	// History returns the checkpointed messages of a session.
	History(ctx context.Context, sessionID string) ([]*schema.Message, error)
	// MessageCount returns how many messages a session has checkpointed.
	MessageCount(ctx context.Context, sessionID string) (int, error)
}

type RunnerOptions struct {
	LockTimeout time.Duration
	Callbacks   []einocb.Handler
}

type graphRunner struct {
	runnable  compose.Runnable[model.TurnInput, *schema.Message]
	repo      model.ConversationRepository
	locker    *conversations.Locker
	tracer    trace.Tracer
	callbacks []einocb.Handler
}

// NewRunner wraps a compiled graph. Observers are attached on every invoke
// unless opts.Callbacks overrides them.
func NewRunner(runnable compose.Runnable[model.TurnInput, *schema.Message], repo model.ConversationRepository, opts RunnerOptions) Runner {
	cbs := opts.Callbacks
	if cbs == nil {
		cbs = []einocb.Handler{observers.NewAllCallbacks(), observers.NewTimingCallbacks()}
	}
	return &graphRunner{
		runnable:  runnable,
		repo:      repo,
		locker:    conversations.NewLocker(opts.LockTimeout),
		tracer:    otel.Tracer(tracerName),
		callbacks: cbs,
	}
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (res *model.TurnResult, err error) {
	if in.User == nil {
		return nil, fmt.Errorf("invoke: user is required")
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("invoke: query is empty")
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = in.User.ThreadID()
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "loanadvisor.turn", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int64("user_id", in.User.UserID),
	))
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Blocked:
			outcome = "blocked"
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	if err := r.locker.Lock(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer r.locker.Unlock(sessionID)

	state, err := r.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	out, err := r.runnable.Invoke(model.WithUser(ctx, in.User), model.TurnInput{
		SessionID: sessionID,
		User:      in.User,
		Query:     in.Query,
		State:     state,
	}, compose.WithCallbacks(r.callbacks...))
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("Graph invocation failed")
		return nil, fmt.Errorf("run graph: %w", err)
	}

	if err := state.Validate(); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("Turn produced an invalid conversation; not saving")
		return nil, fmt.Errorf("validate conversation: %w", err)
	}
	turn := append([]*schema.Message(nil), state.Pending()...)
	if err := r.repo.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	res = &model.TurnResult{
		SessionID:   sessionID,
		Reply:       replyOf(state),
		Blocked:     state.ModerationVerdict == model.VerdictInappropriate,
		LoanToApply: state.LoanToApply,
		Messages:    turn,
		CostUSD:     costOf(out),
	}
	logx.Debug().
		Str("session_id", sessionID).
		Int("new_messages", len(turn)).
		Float64("total_cost_usd", res.CostUSD).
		Msg("Turn completed")
	return res, nil
}

func (r *graphRunner) Reset(ctx context.Context, sessionID string) error {
	if err := r.locker.Lock(ctx, sessionID); err != nil {
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer r.locker.Unlock(sessionID)
	return r.repo.Clear(ctx, sessionID)
}

func (r *graphRunner) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	state, err := r.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return state.Messages, nil
}

func (r *graphRunner) MessageCount(ctx context.Context, sessionID string) (int, error) {
	return r.repo.GetMessageCount(ctx, sessionID)
}

// replyOf returns the newest visible assistant reply.
func replyOf(state *model.ConversationState) string {
	last := state.Last()
	if last == nil || last.Role != schema.Assistant || len(last.ToolCalls) > 0 {
		return ""
	}
	return last.Content
}

func costOf(out *schema.Message) float64 {
	if out == nil {
		return 0
	}
	if v, ok := out.Extra[nodes.ExtraTurnCostUSD].(float64); ok {
		return v
	}
	return 0
}
