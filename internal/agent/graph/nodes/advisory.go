package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/conversations"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/metrics"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// NewAdvisoryNode answers the user from the trimmed history. A structured
// reply naming a loan defers the visible answer to the eligibility stage.
func NewAdvisoryNode(cfg StageConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*schema.Message, error) {
		var (
			user    *model.User
			history []*schema.Message
		)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			user = state.User
			history = conversations.TrimHistory(state.Conversation.Messages, cfg.MaxHistoryTokens)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		msgs, err := prompts.RenderAdvisory(ctx, user, history)
		if err != nil {
			return nil, fmt.Errorf("render advisory prompt: %w", err)
		}

		logx.Debug().Int("history", len(history)).Msg("AI thinking...")
		out, err := generate(ctx, cfg, model.StageAdvisory, msgs)
		if err != nil {
			return failModel(ctx, model.StageAdvisory, err)
		}

		var reply *schema.Message
		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			recordUsage(state, model.StageAdvisory, cfg.ModelName, out)
			reply = applyAdvisory(state, out, cfg.MaxToolRounds)
			reply = WithTurnCost(reply, state)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return reply, nil
	})
}

// applyAdvisory folds one advisory reply into the conversation.
func applyAdvisory(state *model.AppState, out *schema.Message, maxRounds int) *schema.Message {
	conv := state.Conversation

	if len(out.ToolCalls) > 0 {
		conv.ClearLoanToApply()
		return acceptToolRequest(state, model.StageAdvisory, out, maxRounds)
	}

	res := parsers.ParseAdvisory(out.Content)
	parsed, ok := res.Value()
	if !ok {
		metrics.StructuredOutputFallbacks.WithLabelValues(string(model.StageAdvisory)).Inc()
		logx.Warn().Str("session_id", state.SessionID).Str("reason", res.Reason()).Msg("Advisory output did not match schema; replying with raw text")
		return terminate(state, fallbackText(res.Raw()))
	}

	if parsed.LoanIDToApply != nil {
		conv.SetLoanToApply(*parsed.LoanIDToApply)
		logx.Info().Str("session_id", state.SessionID).Int64("loan_id", *parsed.LoanIDToApply).Msg("Application intent detected")
		return out
	}

	msg := schema.AssistantMessage(parsed.Response, nil)
	msg.ResponseMeta = out.ResponseMeta
	msg.Extra = out.Extra
	conv.Append(msg)
	conv.ClearLoanToApply()
	logx.Debug().Msg("AI response ready")
	return msg
}

// NewAdvisoryCondition routes after an advisory round: pending tool calls go
// to the advisory tools, an application intent goes to eligibility.
func NewAdvisoryCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		next := compose.END
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			switch {
			case lastHasToolCalls(state):
				next = NodeAdvisoryTools
			case state.Conversation.LoanToApply != nil:
				next = NodeEligibility
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		logx.Debug().Str("next", next).Msg("Advisory routing")
		return next, nil
	}
}
