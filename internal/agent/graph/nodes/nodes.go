package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/moderation"
	errx "github.com/Chative-core-poc-v1/loanadvisor/internal/core/error"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/metrics"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

const (
	NodeModeration       = "moderation"
	NodeBlocked          = "blocked"
	NodeAdvisory         = "advisory"
	NodeAdvisoryTools    = "advisory_tools"
	NodeEligibility      = "eligibility"
	NodeEligibilityTools = "eligibility_tools"
)

// User-visible terminal replies.
const (
	BlockedMessage          = "This message has been blocked due to inappropriate content."
	ToolRoundLimitMessage   = "I'm sorry, I was unable to complete your request. Please try rephrasing it."
	ModelUnavailableMessage = "I'm having trouble reaching the advisory service right now. Please try again in a moment."
	StorageFailureMessage   = "I'm sorry, I couldn't access your loan information right now. Please try again later."
	NoLoanDetectedMessage   = "No loan application detected."
	LoanNotFoundMessage     = "Loan not found."
	NotRecordedMessage      = "Your application was assessed but could not be recorded. Please try applying again later."
	EmptyReplyMessage       = "I didn't get a response for that. Could you ask again?"
)

// StageConfig is shared by the reasoning nodes.
type StageConfig struct {
	ChatModel        einomodel.BaseChatModel
	ModelName        string
	ModelCallTimeout time.Duration
	MaxToolRounds    int
	MaxHistoryTokens int
}

// NewModerationPreHandler binds the loaded checkpoint to the graph state and
// records the user's message before anything else runs.
func NewModerationPreHandler() func(context.Context, model.TurnInput, *model.AppState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.AppState) (model.TurnInput, error) {
		if in.State == nil {
			return in, fmt.Errorf("turn input has no conversation state")
		}
		s.SessionID = in.SessionID
		s.User = in.User
		s.Conversation = in.State
		s.ResetTurn()
		s.Conversation.ModerationVerdict = ""
		s.Conversation.ClearLoanToApply()
		s.Conversation.Append(schema.UserMessage(in.Query))
		return in, nil
	}
}

// NewModerationNode classifies the latest user message.
func NewModerationNode(gate *moderation.Gate) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (*schema.Message, error) {
		ctx = einocb.ReuseHandlers(ctx, &einocb.RunInfo{Name: "moderation_model", Component: components.ComponentOfChatModel})
		verdict := gate.Moderate(ctx, in.Query)

		var last *schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Conversation.ModerationVerdict = verdict
			last = state.Conversation.Last()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		logx.Debug().Str("session_id", in.SessionID).Str("verdict", string(verdict)).Msg("Moderation verdict")
		return last, nil
	})
}

// NewModerationCondition routes inappropriate input to the blocked reply.
func NewModerationCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		var verdict model.Verdict
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			verdict = state.Conversation.ModerationVerdict
			return nil
		})
		if err != nil {
			return "", err
		}
		if verdict == model.VerdictInappropriate {
			return NodeBlocked, nil
		}
		return NodeAdvisory, nil
	}
}

// NewBlockedNode appends the fixed refusal and ends the turn.
func NewBlockedNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*schema.Message, error) {
		var out *schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			out = terminate(state, BlockedMessage)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		logx.Info().Msg("Message blocked by moderation")
		return out, nil
	})
}

// generate calls the stage model with its own deadline. Model callbacks are
// re-rooted so observers see a ChatModel component instead of the lambda.
func generate(ctx context.Context, cfg StageConfig, stage model.Stage, msgs []*schema.Message) (*schema.Message, error) {
	if cfg.ModelCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ModelCallTimeout)
		defer cancel()
	}
	ctx = einocb.ReuseHandlers(ctx, &einocb.RunInfo{
		Name:      string(stage) + "_model",
		Type:      cfg.ModelName,
		Component: components.ComponentOfChatModel,
	})

	out, err := cfg.ChatModel.Generate(ctx, msgs)
	if err != nil {
		return nil, errx.WrapModel(err)
	}
	if out == nil {
		return nil, errx.WrapModel(fmt.Errorf("empty reply"))
	}
	return out, nil
}

// failModel ends the turn after a model call failed.
func failModel(ctx context.Context, stage model.Stage, cause error) (*schema.Message, error) {
	metrics.ModelFailures.WithLabelValues(string(stage)).Inc()
	var out *schema.Message
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		logx.Error().Err(cause).Str("session_id", state.SessionID).Str("stage", string(stage)).Msg("Model call failed")
		out = terminate(state, ModelUnavailableMessage)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}
	return out, nil
}

// acceptToolRequest records a tool-call reply. When the stage has used up its
// rounds the request is dropped and the turn ends with ToolRoundLimitMessage.
func acceptToolRequest(state *model.AppState, stage model.Stage, out *schema.Message, maxRounds int) *schema.Message {
	normalizeToolCallIDs(state, out)

	if toolRoundsExhausted(state, stage, maxRounds) {
		metrics.ToolRoundCapHits.WithLabelValues(string(stage)).Inc()
		logx.Warn().
			Str("session_id", state.SessionID).
			Str("stage", string(stage)).
			Int("rounds", state.ToolRounds[stage]).
			Int("max_rounds", normalizeMaxToolRounds(maxRounds)).
			Msg("Tool round limit reached; ending turn")
		return terminate(state, ToolRoundLimitMessage)
	}

	logx.Debug().Str("stage", string(stage)).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
	state.Conversation.Append(out)
	return out
}

// terminate appends a plain assistant reply and drops any pending application.
func terminate(state *model.AppState, content string) *schema.Message {
	msg := schema.AssistantMessage(content, nil)
	state.Conversation.Append(msg)
	state.Conversation.ClearLoanToApply()
	return msg
}

// fallbackText is the reply shown for output that failed schema validation.
// A blank completion is never shown as an empty bubble.
func fallbackText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return EmptyReplyMessage
	}
	return raw
}

// lastHasToolCalls reports whether the newest message still awaits tool results.
func lastHasToolCalls(state *model.AppState) bool {
	last := state.Conversation.Last()
	return last != nil && last.Role == schema.Assistant && len(last.ToolCalls) > 0
}

// WithTurnCost returns a copy of msg carrying the accumulated turn cost.
func WithTurnCost(msg *schema.Message, state *model.AppState) *schema.Message {
	if msg == nil {
		return nil
	}
	cp := *msg
	cp.Extra = map[string]any{}
	for k, v := range msg.Extra {
		cp.Extra[k] = v
	}
	cp.Extra[ExtraTurnCostUSD] = state.TotalCostUSD
	return &cp
}
