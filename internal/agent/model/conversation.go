package model

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Verdict is the moderation outcome for the latest user message.
type Verdict string

const (
	VerdictSafe          Verdict = "safe"
	VerdictInappropriate Verdict = "inappropriate"
)

type ConversationRepository interface {
	// Load returns the checkpoint for a session, or an empty state when none exists.
	Load(ctx context.Context, sessionID string) (*ConversationState, error)

	// Save persists the messages appended since the last checkpoint together with the turn flags.
	Save(ctx context.Context, state *ConversationState) error

	// Clear removes all conversation history for a session.
	Clear(ctx context.Context, sessionID string) error

	// GetMessageCount returns the number of checkpointed messages.
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
}

// ConversationState is the record threaded through every graph step of a turn.
// Messages is append-only; Checkpointed counts the prefix already persisted.
type ConversationState struct {
	SessionID         string            `json:"session_id"`
	Messages          []*schema.Message `json:"messages"`
	ModerationVerdict Verdict           `json:"moderation_verdict,omitempty"`
	LoanToApply       *int64            `json:"loan_to_apply,omitempty"`
	Checkpointed      int               `json:"-"`
}

// NewConversationState returns an empty state for sessionID.
func NewConversationState(sessionID string) *ConversationState {
	return &ConversationState{SessionID: sessionID, Messages: []*schema.Message{}}
}

// Append adds messages in order.
func (s *ConversationState) Append(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m != nil {
			s.Messages = append(s.Messages, m)
		}
	}
}

// Last returns the most recent message or nil.
func (s *ConversationState) Last() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// Pending returns the messages not yet checkpointed.
func (s *ConversationState) Pending() []*schema.Message {
	if s.Checkpointed >= len(s.Messages) {
		return nil
	}
	return s.Messages[s.Checkpointed:]
}

// SetLoanToApply records an application intent.
func (s *ConversationState) SetLoanToApply(id int64) {
	s.LoanToApply = &id
}

// ClearLoanToApply drops the pending application intent.
func (s *ConversationState) ClearLoanToApply() {
	s.LoanToApply = nil
}

// Validate checks that every tool result answers an earlier tool-call request.
func (s *ConversationState) Validate() error {
	requested := make(map[string]bool)
	for i, m := range s.Messages {
		if m == nil {
			return fmt.Errorf("message %d is nil", i)
		}
		switch m.Role {
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				if tc.ID == "" {
					return fmt.Errorf("message %d: tool call %q has no id", i, tc.Function.Name)
				}
				requested[tc.ID] = true
			}
		case schema.Tool:
			if !requested[m.ToolCallID] {
				return fmt.Errorf("message %d: tool result %q has no preceding request", i, m.ToolCallID)
			}
			delete(requested, m.ToolCallID)
		}
	}
	return nil
}
