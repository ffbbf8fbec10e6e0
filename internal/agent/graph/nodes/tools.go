package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// NewToolsNode answers every pending request of the stage's last tool-call
// message and hands control back to the stage. The application intent is
// not touched.
func NewToolsNode(exec *tools.Executor, stage model.Stage) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*schema.Message, error) {
		var (
			calls     []schema.ToolCall
			sessionID string
		)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			sessionID = state.SessionID
			if lastHasToolCalls(state) {
				calls = append(calls, state.Conversation.Last().ToolCalls...)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if len(calls) == 0 {
			return nil, fmt.Errorf("%s tools: no pending tool calls", stage)
		}

		results := exec.Run(ctx, calls)

		var rounds int
		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Conversation.Append(results...)
			rounds = incrementToolRound(state, stage)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().
			Str("session_id", sessionID).
			Str("stage", string(stage)).
			Int("round", rounds).
			Int("results", len(results)).
			Msg("Tool round finished")
		return results[len(results)-1], nil
	})
}
