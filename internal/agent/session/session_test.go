package session

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
)

type fakeRunner struct {
	invoked []model.QueryInput
	resets  []string
	history map[string][]*schema.Message
	err     error
}

func (f *fakeRunner) Invoke(_ context.Context, in model.QueryInput) (*model.TurnResult, error) {
	f.invoked = append(f.invoked, in)
	if f.history == nil {
		f.history = map[string][]*schema.Message{}
	}
	f.history[in.SessionID] = append(f.history[in.SessionID], schema.UserMessage(in.Query))
	return &model.TurnResult{SessionID: in.SessionID, Reply: "ok"}, nil
}

func (f *fakeRunner) Reset(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.resets = append(f.resets, id)
	delete(f.history, id)
	return nil
}

func (f *fakeRunner) History(_ context.Context, id string) ([]*schema.Message, error) {
	return f.history[id], nil
}

func (f *fakeRunner) MessageCount(_ context.Context, id string) (int, error) {
	return len(f.history[id]), nil
}

type userStore struct {
	users map[int64]*model.User
	loans map[int64][]model.UserLoanWithDetails
}

func (s *userStore) GetAvailableLoans(context.Context) ([]model.Loan, error) { return nil, nil }
func (s *userStore) GetUserLoans(_ context.Context, id int64) ([]model.UserLoanWithDetails, error) {
	return s.loans[id], nil
}
func (s *userStore) GetSpecificLoan(context.Context, int64) (*model.Loan, error) { return nil, nil }
func (s *userStore) GetUsers(context.Context) ([]model.User, error)              { return nil, nil }
func (s *userStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	return s.users[id], nil
}
func (s *userStore) AddUserLoanRecord(context.Context, int64, int64, string) error { return nil }

func newStore() *userStore {
	return &userStore{
		users: map[int64]*model.User{
			1: {UserID: 1, Email: "a@example.com"},
			2: {UserID: 2, Email: "b@example.com"},
		},
		loans: map[int64][]model.UserLoanWithDetails{
			2: {{UserLoan: model.UserLoan{ApplicationID: 7, UserID: 2, LoanID: 3}}},
		},
	}
}

func TestNew_UnknownUser(t *testing.T) {
	_, err := New(context.Background(), &fakeRunner{}, newStore(), 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSession_SendUsesUserThread(t *testing.T) {
	ctx := context.Background()
	r := &fakeRunner{}
	s, err := New(ctx, r, newStore(), 1)
	require.NoError(t, err)

	res, err := s.Send(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Reply)
	require.Len(t, r.invoked, 1)
	assert.Equal(t, "1", r.invoked[0].SessionID)
	assert.Equal(t, int64(1), r.invoked[0].User.UserID)
}

func TestSession_ChangeUserIsolatesMemory(t *testing.T) {
	ctx := context.Background()
	r := &fakeRunner{}
	s, err := New(ctx, r, newStore(), 1)
	require.NoError(t, err)

	_, err = s.Send(ctx, "my secret is 42")
	require.NoError(t, err)

	require.NoError(t, s.ChangeUser(ctx, 2))
	assert.Equal(t, int64(2), s.User().UserID)
	assert.ElementsMatch(t, []string{"1", "2"}, r.resets)

	hist, err := s.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)

	// switching back does not resurrect the old thread
	require.NoError(t, s.ChangeUser(ctx, 1))
	hist, err = s.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestSession_ChangeUserFailures(t *testing.T) {
	ctx := context.Background()
	r := &fakeRunner{}
	s, err := New(ctx, r, newStore(), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.ChangeUser(ctx, 99), ErrUserNotFound)
	assert.Equal(t, int64(1), s.User().UserID)

	r.err = errors.New("redis down")
	assert.Error(t, s.ChangeUser(ctx, 2))
	assert.Equal(t, int64(1), s.User().UserID)
}

func TestSession_ClearMemoryAndApplications(t *testing.T) {
	ctx := context.Background()
	r := &fakeRunner{}
	s, err := New(ctx, r, newStore(), 2)
	require.NoError(t, err)

	_, err = s.Send(ctx, "hi")
	require.NoError(t, err)
	require.NoError(t, s.ClearMemory(ctx))
	hist, err := s.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)

	apps, err := s.Applications(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, int64(3), apps[0].LoanID)
}
