// Package session binds a conversation to the active user.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

var ErrUserNotFound = errors.New("user not found")

// Session is the handle a front end talks to. The thread id always follows
// the active user, so two users never share memory.
type Session struct {
	mu     sync.Mutex
	runner graph.Runner
	store  model.LoanStore
	user   *model.User
}

// New opens a session for userID.
func New(ctx context.Context, runner graph.Runner, store model.LoanStore, userID int64) (*Session, error) {
	if runner == nil || store == nil {
		return nil, fmt.Errorf("session: runner and store are required")
	}
	u, err := lookupUser(ctx, store, userID)
	if err != nil {
		return nil, err
	}
	return &Session{runner: runner, store: store, user: u}, nil
}

func lookupUser(ctx context.Context, store model.LoanStore, userID int64) (*model.User, error) {
	u, err := store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return u, nil
}

// User returns the active user.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Send runs one turn for the active user.
func (s *Session) Send(ctx context.Context, query string) (*model.TurnResult, error) {
	u := s.User()
	return s.runner.Invoke(ctx, model.QueryInput{
		SessionID: u.ThreadID(),
		User:      u,
		Query:     query,
	})
}

// ChangeUser switches the active user and clears the memory of both the
// outgoing and the incoming user's threads.
func (s *Session) ChangeUser(ctx context.Context, userID int64) error {
	next, err := lookupUser(ctx, s.store, userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.user
	if err := s.runner.Reset(ctx, prev.ThreadID()); err != nil {
		return fmt.Errorf("clear memory of user %d: %w", prev.UserID, err)
	}
	if next.ThreadID() != prev.ThreadID() {
		if err := s.runner.Reset(ctx, next.ThreadID()); err != nil {
			return fmt.Errorf("clear memory of user %d: %w", next.UserID, err)
		}
	}
	s.user = next

	logx.Info().Int64("from_user_id", prev.UserID).Int64("to_user_id", next.UserID).Msg("Active user changed; memory cleared")
	return nil
}

// ClearMemory drops the active user's conversation.
func (s *Session) ClearMemory(ctx context.Context) error {
	return s.runner.Reset(ctx, s.User().ThreadID())
}

// History returns the active user's checkpointed messages.
func (s *Session) History(ctx context.Context) ([]*schema.Message, error) {
	return s.runner.History(ctx, s.User().ThreadID())
}

// MessageCount returns how many messages the active user's thread holds.
func (s *Session) MessageCount(ctx context.Context) (int, error) {
	return s.runner.MessageCount(ctx, s.User().ThreadID())
}

// Applications lists the active user's loan applications.
func (s *Session) Applications(ctx context.Context) ([]model.UserLoanWithDetails, error) {
	return s.store.GetUserLoans(ctx, s.User().UserID)
}
