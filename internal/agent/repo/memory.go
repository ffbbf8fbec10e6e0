package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
)

// MemoryConversationRepository keeps checkpoints in process memory. History
// is lost on restart.
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.ConversationState
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{sessions: make(map[string]*model.ConversationState)}
}

func (r *MemoryConversationRepository) Load(_ context.Context, sessionID string) (*model.ConversationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.sessions[sessionID]
	if !ok {
		return model.NewConversationState(sessionID), nil
	}
	state := cloneState(stored)
	state.Checkpointed = len(state.Messages)
	return state, nil
}

func (r *MemoryConversationRepository) Save(_ context.Context, state *model.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("save conversation: session id is required")
	}
	if state.Checkpointed > len(state.Messages) {
		return fmt.Errorf("save conversation: checkpoint %d beyond %d messages", state.Checkpointed, len(state.Messages))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[state.SessionID]
	if !ok {
		stored = model.NewConversationState(state.SessionID)
		r.sessions[state.SessionID] = stored
	}
	for _, m := range state.Pending() {
		stored.Messages = append(stored.Messages, cloneMessage(m))
	}
	stored.ModerationVerdict = state.ModerationVerdict
	stored.LoanToApply = nil
	if state.LoanToApply != nil {
		stored.SetLoanToApply(*state.LoanToApply)
	}

	state.Checkpointed = len(state.Messages)
	return nil
}

func (r *MemoryConversationRepository) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryConversationRepository) GetMessageCount(_ context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[sessionID]; ok {
		return len(s.Messages), nil
	}
	return 0, nil
}

func cloneState(s *model.ConversationState) *model.ConversationState {
	out := model.NewConversationState(s.SessionID)
	for _, m := range s.Messages {
		out.Messages = append(out.Messages, cloneMessage(m))
	}
	out.ModerationVerdict = s.ModerationVerdict
	if s.LoanToApply != nil {
		out.SetLoanToApply(*s.LoanToApply)
	}
	return out
}

func cloneMessage(m *schema.Message) *schema.Message {
	cp := *m
	if len(m.ToolCalls) > 0 {
		cp.ToolCalls = append([]schema.ToolCall(nil), m.ToolCalls...)
	}
	return &cp
}

var _ model.ConversationRepository = (*MemoryConversationRepository)(nil)
