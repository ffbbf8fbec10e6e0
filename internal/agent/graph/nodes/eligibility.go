package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/loanadvisor/internal/core/error"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/metrics"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// NewEligibilityNode assesses the pending application. The prompt sees the
// user, the loan, the user's applications and the stage's own tool exchanges,
// never the general conversation.
func NewEligibilityNode(cfg StageConfig, store model.LoanStore) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*schema.Message, error) {
		var (
			user      *model.User
			loanID    *int64
			exchanges []*schema.Message
		)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conv := state.Conversation
			user = state.User
			if conv.LoanToApply != nil {
				id := *conv.LoanToApply
				loanID = &id
			}
			if state.EligibilityFrom < 0 {
				state.EligibilityFrom = len(conv.Messages)
			}
			exchanges = append([]*schema.Message(nil), conv.Messages[state.EligibilityFrom:]...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if loanID == nil {
			return finish(ctx, NoLoanDetectedMessage)
		}
		if user == nil {
			return nil, fmt.Errorf("eligibility: no active user")
		}

		loan, err := store.GetSpecificLoan(ctx, *loanID)
		if err != nil {
			logx.Error().Err(errx.WrapSQL(err)).Int64("loan_id", *loanID).Msg("Failed to load loan")
			return finish(ctx, StorageFailureMessage)
		}
		if loan == nil {
			logx.Info().Int64("loan_id", *loanID).Msg("Requested loan does not exist")
			return finish(ctx, LoanNotFoundMessage)
		}
		userLoans, err := store.GetUserLoans(ctx, user.UserID)
		if err != nil {
			logx.Error().Err(errx.WrapSQL(err)).Int64("user_id", user.UserID).Msg("Failed to load user loans")
			return finish(ctx, StorageFailureMessage)
		}

		msgs, err := prompts.RenderEligibility(ctx, user, loan, userLoans, exchanges)
		if err != nil {
			return nil, fmt.Errorf("render eligibility prompt: %w", err)
		}

		out, err := generate(ctx, cfg, model.StageEligibility, msgs)
		if err != nil {
			return failModel(ctx, model.StageEligibility, err)
		}

		var (
			reply    *schema.Message
			decision *model.EligibilityOutput
		)
		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			recordUsage(state, model.StageEligibility, cfg.ModelName, out)
			if len(out.ToolCalls) > 0 {
				// the pending application survives the tool loop
				reply = WithTurnCost(acceptToolRequest(state, model.StageEligibility, out, cfg.MaxToolRounds), state)
				return nil
			}
			res := parsers.ParseEligibility(out.Content)
			parsed, ok := res.Value()
			if !ok {
				metrics.StructuredOutputFallbacks.WithLabelValues(string(model.StageEligibility)).Inc()
				logx.Warn().Str("session_id", state.SessionID).Str("reason", res.Reason()).Msg("Eligibility output did not match schema; replying with raw text")
				reply = WithTurnCost(terminate(state, fallbackText(res.Raw())), state)
				return nil
			}
			decision = &parsed
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if decision == nil {
			return reply, nil
		}

		text := decision.UserMessage
		switch {
		case !decision.ApplicationEligible:
			metrics.Applications.WithLabelValues("rejected").Inc()
			logx.Info().Int64("user_id", user.UserID).Int64("loan_id", loan.LoanID).Msg("Application rejected")
		default:
			if err := store.AddUserLoanRecord(ctx, user.UserID, loan.LoanID, decision.AssessmentRecord); err != nil {
				metrics.Applications.WithLabelValues("not_recorded").Inc()
				logx.Error().Err(errx.WrapSQL(err)).Int64("user_id", user.UserID).Int64("loan_id", loan.LoanID).Msg("Failed to record approved application")
				text = NotRecordedMessage
				break
			}
			metrics.Applications.WithLabelValues("approved").Inc()
			logx.Info().Int64("user_id", user.UserID).Int64("loan_id", loan.LoanID).Msg("Application approved and recorded")
		}
		if text == "" {
			text = decision.AssessmentRecord
		}
		return finishWith(ctx, text, out)
	})
}

// finish ends the turn with a fixed reply.
func finish(ctx context.Context, content string) (*schema.Message, error) {
	return finishWith(ctx, content, nil)
}

func finishWith(ctx context.Context, content string, src *schema.Message) (*schema.Message, error) {
	var out *schema.Message
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		msg := terminate(state, content)
		if src != nil {
			msg.ResponseMeta = src.ResponseMeta
			msg.Extra = src.Extra
		}
		out = WithTurnCost(msg, state)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}
	return out, nil
}

// NewEligibilityCondition loops through the eligibility tools while the
// stage keeps requesting them.
func NewEligibilityCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		next := compose.END
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if lastHasToolCalls(state) {
				next = NodeEligibilityTools
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		return next, nil
	}
}
