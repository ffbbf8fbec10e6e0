package model

import (
	"github.com/cloudwego/eino/schema"
)

// Stage identifies a reasoning node that owns a tool loop.
type Stage string

const (
	StageAdvisory    Stage = "advisory"
	StageEligibility Stage = "eligibility"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers or compose.ProcessState.
//   - Conversation points at the checkpoint loaded by the runner; nodes mutate it
//     in place and the runner saves it once the graph returns.
type AppState struct {
	SessionID    string
	User         *User
	Conversation *ConversationState

	ToolRounds    map[Stage]int // tool-loop rounds per stage for this turn
	ToolCallIDSeq int           // local sequence to synthesize tool_call_id when provider omits

	// EligibilityFrom is the message index where the eligibility stage began
	// this turn; -1 until the stage runs.
	EligibilityFrom int

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// ResetTurn clears the per-turn counters.
func (s *AppState) ResetTurn() {
	s.ToolRounds = map[Stage]int{}
	s.ToolCallIDSeq = 0
	s.EligibilityFrom = -1
	s.TotalCostUSD = 0
}

// QueryInput represents one user message addressed to a session.
type QueryInput struct {
	SessionID string `json:"session_id"`
	User      *User  `json:"user"`
	Query     string `json:"query"`
}

// TurnInput is the graph input: the query plus the loaded checkpoint.
type TurnInput struct {
	SessionID string
	User      *User
	Query     string
	State     *ConversationState
}

// TurnResult is handed back to callers when a turn ends.
type TurnResult struct {
	SessionID   string
	Reply       string
	Blocked     bool
	LoanToApply *int64
	Messages    []*schema.Message
	CostUSD     float64
}
