package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
)

const DefaultMaxToolRounds = 5

// normalizeMaxToolRounds returns a sane default when the provided value is invalid.
func normalizeMaxToolRounds(n int) int {
	if n <= 0 {
		return DefaultMaxToolRounds
	}
	return n
}

// toolRoundsExhausted reports whether stage already ran its allowed rounds this turn.
func toolRoundsExhausted(state *model.AppState, stage model.Stage, max int) bool {
	return state.ToolRounds[stage] >= normalizeMaxToolRounds(max)
}

// incrementToolRound counts one completed round for stage.
func incrementToolRound(state *model.AppState, stage model.Stage) int {
	if state.ToolRounds == nil {
		state.ToolRounds = map[model.Stage]int{}
	}
	state.ToolRounds[stage]++
	return state.ToolRounds[stage]
}

// normalizeToolCallIDs fills ids the provider omitted. Ids are unique within
// the session because they embed the current message count.
func normalizeToolCallIDs(state *model.AppState, out *schema.Message) {
	for i := range out.ToolCalls {
		if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
			state.ToolCallIDSeq++
			out.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", len(state.Conversation.Messages), state.ToolCallIDSeq)
		}
	}
}
