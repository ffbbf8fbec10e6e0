package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserToContext(t *testing.T) {
	u := &User{UserID: 7, Email: "a@b.c", CreditScore: 710, Income: 85000, JobTitle: "Nurse", OtherInfo: "none"}
	out := u.ToContext()
	assert.Contains(t, out, "User Profile:\n- User ID: 7\n")
	assert.Contains(t, out, "- Income: 85000\n")
	assert.Equal(t, "7", u.ThreadID())
}

func TestUserLoansToContext(t *testing.T) {
	assert.Equal(t, "No existing loans.", UserLoansToContext(nil))

	loans := []UserLoanWithDetails{{
		UserLoan:    UserLoan{ApplicationID: 1, UserID: 2, LoanID: 3, AppliedOn: "2024-01-02", Record: "ok"},
		LoanDetails: Loan{LoanID: 3, Type: "Auto", Amount: 25000, TermMonths: 60},
	}}
	out := UserLoansToContext(loans)
	assert.Contains(t, out, "--- Loan 1 ---\n- Application ID: 1\n")
	assert.Contains(t, out, "- Type: Auto")
	assert.NotContains(t, out, "Loan Details:")
}

func TestConversationStatePending(t *testing.T) {
	s := NewConversationState("1")
	s.Append(schema.UserMessage("hi"), nil, schema.AssistantMessage("hello", nil))
	require.Len(t, s.Messages, 2)
	assert.Len(t, s.Pending(), 2)

	s.Checkpointed = 2
	assert.Empty(t, s.Pending())
	s.Append(schema.UserMessage("again"))
	assert.Len(t, s.Pending(), 1)
}

func TestConversationStateValidate(t *testing.T) {
	s := NewConversationState("1")
	s.Append(
		schema.UserMessage("apr?"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Name: "calc"}}}),
		schema.ToolMessage("5.1", "call_1"),
	)
	assert.NoError(t, s.Validate())

	s.Append(schema.ToolMessage("orphan", "call_9"))
	assert.Error(t, s.Validate())
}

func TestComputeCost(t *testing.T) {
	in, out, total := ComputeCost(&schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}, ResolvePricing("gemini-2.5-flash"))
	assert.InDelta(t, 0.30, in, 1e-9)
	assert.InDelta(t, 2.50, out, 1e-9)
	assert.InDelta(t, 2.80, total, 1e-9)

	_, _, none := ComputeCost(nil, Pricing{})
	assert.Zero(t, none)
}
