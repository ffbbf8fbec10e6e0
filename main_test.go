package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/session"
)

type echoRunner struct {
	history map[string][]*schema.Message
}

func (r *echoRunner) Invoke(_ context.Context, in model.QueryInput) (*model.TurnResult, error) {
	r.history[in.SessionID] = append(r.history[in.SessionID], schema.UserMessage(in.Query), schema.AssistantMessage("echo: "+in.Query, nil))
	return &model.TurnResult{SessionID: in.SessionID, Reply: "echo: " + in.Query}, nil
}

func (r *echoRunner) Reset(_ context.Context, id string) error {
	delete(r.history, id)
	return nil
}

func (r *echoRunner) History(_ context.Context, id string) ([]*schema.Message, error) {
	return r.history[id], nil
}

func (r *echoRunner) MessageCount(_ context.Context, id string) (int, error) {
	return len(r.history[id]), nil
}

type cliStore struct{}

func (cliStore) GetAvailableLoans(context.Context) ([]model.Loan, error) { return nil, nil }
func (cliStore) GetUserLoans(_ context.Context, id int64) ([]model.UserLoanWithDetails, error) {
	if id != 2 {
		return nil, nil
	}
	return []model.UserLoanWithDetails{{
		UserLoan:    model.UserLoan{ApplicationID: 9, UserID: 2, LoanID: 4, Record: "approved"},
		LoanDetails: model.Loan{LoanID: 4, Type: "Auto Loan"},
	}}, nil
}
func (cliStore) GetSpecificLoan(context.Context, int64) (*model.Loan, error) { return nil, nil }
func (cliStore) GetUsers(context.Context) ([]model.User, error)              { return nil, nil }
func (cliStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	if id > 2 {
		return nil, nil
	}
	return &model.User{UserID: id, Email: "user@example.com"}, nil
}
func (cliStore) AddUserLoanRecord(context.Context, int64, int64, string) error { return nil }

func newTestSession(t *testing.T) (*session.Session, *echoRunner) {
	t.Helper()
	r := &echoRunner{history: map[string][]*schema.Message{}}
	sess, err := session.New(context.Background(), r, cliStore{}, 1)
	require.NoError(t, err)
	return sess, r
}

func TestBuildRootCmd_Subcommands(t *testing.T) {
	root := buildRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"chat", "ingest", "users"})

	chat, _, err := root.Find([]string{"chat"})
	require.NoError(t, err)
	assert.NotNil(t, chat.Flags().Lookup("user"))
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()
	sess, r := newTestSession(t)

	_, err := sess.Send(ctx, "hello")
	require.NoError(t, err)

	var out bytes.Buffer
	printResumeNotice(ctx, &out, sess)
	assert.Contains(t, out.String(), "2 earlier messages")

	out.Reset()
	quit, err := handleCommand(ctx, &out, sess, "/history")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "[user] hello")
	assert.Contains(t, out.String(), "[assistant] echo: hello")

	out.Reset()
	_, err = handleCommand(ctx, &out, sess, "/reset")
	require.NoError(t, err)
	assert.Empty(t, r.history["1"])

	out.Reset()
	printResumeNotice(ctx, &out, sess)
	assert.Empty(t, out.String())

	out.Reset()
	_, err = handleCommand(ctx, &out, sess, "/user 2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sess.User().UserID)

	out.Reset()
	_, err = handleCommand(ctx, &out, sess, "/loans")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Application ID: 9")
	assert.Contains(t, out.String(), "Type: Auto Loan")

	_, err = handleCommand(ctx, &out, sess, "/user abc")
	assert.Error(t, err)
	_, err = handleCommand(ctx, &out, sess, "/user 99")
	assert.Error(t, err)
	_, err = handleCommand(ctx, &out, sess, "/bogus")
	assert.Error(t, err)

	quit, err = handleCommand(ctx, &out, sess, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}
