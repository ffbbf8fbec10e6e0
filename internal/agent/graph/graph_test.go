package graph

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/moderation"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/repo"
)

// ---- fakes ----

type scriptedModel struct {
	mu      sync.Mutex
	replies []func() (*schema.Message, error)
	calls   [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return next()
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *scriptedModel) script(fns ...func() (*schema.Message, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, fns...)
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func text(s string) func() (*schema.Message, error) {
	return func() (*schema.Message, error) { return schema.AssistantMessage(s, nil), nil }
}

func toolCall(id, name, args string) func() (*schema.Message, error) {
	return func() (*schema.Message, error) {
		return schema.AssistantMessage("", []schema.ToolCall{{
			ID:       id,
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}}), nil
	}
}

func failure(err error) func() (*schema.Message, error) {
	return func() (*schema.Message, error) { return nil, err }
}

type stubDetector struct {
	detections []model.Detection
	err        error
}

func (d *stubDetector) Detect(context.Context, string) ([]model.Detection, error) {
	return d.detections, d.err
}

type record struct {
	userID, loanID int64
	text           string
}

type memStore struct {
	mu      sync.Mutex
	loans   []model.Loan
	records []record
	addErr  error
}

func (s *memStore) GetAvailableLoans(context.Context) ([]model.Loan, error) { return s.loans, nil }
func (s *memStore) GetUserLoans(_ context.Context, userID int64) ([]model.UserLoanWithDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.UserLoanWithDetails
	for i, r := range s.records {
		if r.userID == userID {
			out = append(out, model.UserLoanWithDetails{UserLoan: model.UserLoan{ApplicationID: int64(i + 1), UserID: userID, LoanID: r.loanID, Record: r.text}})
		}
	}
	return out, nil
}
func (s *memStore) GetSpecificLoan(_ context.Context, id int64) (*model.Loan, error) {
	for i := range s.loans {
		if s.loans[i].LoanID == id {
			l := s.loans[i]
			return &l, nil
		}
	}
	return nil, nil
}
func (s *memStore) GetUsers(context.Context) ([]model.User, error)          { return nil, nil }
func (s *memStore) GetUserByID(context.Context, int64) (*model.User, error) { return nil, nil }
func (s *memStore) AddUserLoanRecord(_ context.Context, userID, loanID int64, text string) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record{userID: userID, loanID: loanID, text: text})
	return nil
}

type nopRetriever struct{}

func (nopRetriever) Search(context.Context, string, int) ([]string, error) {
	return []string{"Personal loans have no prepayment penalty."}, nil
}

// ---- harness ----

type harness struct {
	model    *scriptedModel
	detector *stubDetector
	store    *memStore
	repo     *repo.MemoryConversationRepository
	runner   Runner
	user     *model.User
}

type harnessOpts struct {
	maxRounds  int
	failPolicy moderation.FailPolicy
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		model:    &scriptedModel{},
		detector: &stubDetector{},
		store: &memStore{loans: []model.Loan{
			{LoanID: 2, Type: "Mortgage", Amount: 250000, MonthlyPayment: 1500, InterestRate: 4.5, TermMonths: 360, RequiredCreditScore: 750, RequirementIncome: 80000},
			{LoanID: 5, Type: "Personal Loan", Amount: 10000, MonthlyPayment: 440.96, InterestRate: 5.5, TermMonths: 24, Fee: 100, RequiredCreditScore: 600, RequirementIncome: 30000},
		}},
		repo: repo.NewMemoryConversationRepository(),
		user: &model.User{UserID: 1, Email: "jane@example.com", CreditScore: 650, Income: 50000, JobTitle: "Engineer"},
	}
	if opts.failPolicy == "" {
		opts.failPolicy = moderation.FailClosed
	}

	ts, err := tools.NewLoanToolset(tools.Deps{Store: h.store, Retriever: nopRetriever{}, TopK: 3})
	require.NoError(t, err)
	reg, err := tools.NewRegistry(ctx, ts...)
	require.NoError(t, err)
	eligibilityReg, err := reg.Subset(tools.EligibilityToolNames...)
	require.NoError(t, err)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		AgentModel:       h.model,
		AgentModelName:   "gemini-2.5-flash",
		Gate:             moderation.NewGate(h.detector, time.Second, opts.failPolicy),
		Store:            h.store,
		Executor:         tools.NewExecutor(reg, time.Second),
		EligibilityTools: tools.NewExecutor(eligibilityReg, time.Second),
		MaxToolRounds:    opts.maxRounds,
		MaxHistoryTokens: 4096,
		ModelCallTimeout: time.Second,
	})
	require.NoError(t, err)

	h.runner = NewRunner(runnable, h.repo, RunnerOptions{LockTimeout: time.Second})
	return h
}

func (h *harness) send(t *testing.T, query string) *model.TurnResult {
	t.Helper()
	res, err := h.runner.Invoke(context.Background(), model.QueryInput{User: h.user, Query: query})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (h *harness) history(t *testing.T) []*schema.Message {
	t.Helper()
	msgs, err := h.runner.History(context.Background(), h.user.ThreadID())
	require.NoError(t, err)
	return msgs
}

func roles(msgs []*schema.Message) []schema.RoleType {
	out := make([]schema.RoleType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

// ---- tests ----

func TestRunner_PlainAnswer(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(text(`{"response":"We offer personal loans and mortgages.","loan_id_to_apply":null}`))

	res := h.send(t, "What loans do you offer?")
	assert.Equal(t, "We offer personal loans and mortgages.", res.Reply)
	assert.False(t, res.Blocked)
	assert.Nil(t, res.LoanToApply)
	assert.Equal(t, "1", res.SessionID)

	msgs := h.history(t)
	assert.Equal(t, []schema.RoleType{schema.User, schema.Assistant}, roles(msgs))
	n, err := h.runner.MessageCount(context.Background(), h.user.ThreadID())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// system prompt plus the user message
	require.Equal(t, 1, h.model.callCount())
	prompt := h.model.calls[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, schema.System, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "jane@example.com")
	assert.Equal(t, "What loans do you offer?", prompt[1].Content)
}

func TestRunner_ModerationShortCircuit(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.detector.detections = []model.Detection{{Detection: "yes", DetectionType: "insult", Score: 0.9}}

	res := h.send(t, "you are useless")
	assert.True(t, res.Blocked)
	assert.Equal(t, nodes.BlockedMessage, res.Reply)
	assert.Equal(t, 0, h.model.callCount())
	assert.Equal(t, []schema.RoleType{schema.User, schema.Assistant}, roles(h.history(t)))
}

func TestRunner_ModerationFailurePolicy(t *testing.T) {
	t.Run("closed", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		h.detector.err = errors.New("moderation down")

		res := h.send(t, "hello")
		assert.True(t, res.Blocked)
		assert.Equal(t, 0, h.model.callCount())
	})
	t.Run("open", func(t *testing.T) {
		h := newHarness(t, harnessOpts{failPolicy: moderation.FailOpen})
		h.detector.err = errors.New("moderation down")
		h.model.script(text(`{"response":"Hi!","loan_id_to_apply":null}`))

		res := h.send(t, "hello")
		assert.False(t, res.Blocked)
		assert.Equal(t, "Hi!", res.Reply)
	})
}

func TestRunner_ApplicationApproved(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		text(`{"response":"Sure.","loan_id_to_apply":5}`),
		text(`{"application_eligible":true,"assessment_record":"Approved: credit 650 >= 600, income 50000 >= 30000.","user_message":"Congratulations, your application for loan 5 has been approved."}`),
	)

	res := h.send(t, "I want to apply for loan 5")
	assert.Equal(t, "Congratulations, your application for loan 5 has been approved.", res.Reply)
	assert.Nil(t, res.LoanToApply)

	require.Len(t, h.store.records, 1)
	assert.Equal(t, int64(1), h.store.records[0].userID)
	assert.Equal(t, int64(5), h.store.records[0].loanID)
	assert.Contains(t, h.store.records[0].text, "Approved")

	// the advisory reply is deferred: only the eligibility message is visible
	assert.Equal(t, []schema.RoleType{schema.User, schema.Assistant}, roles(h.history(t)))

	require.Equal(t, 2, h.model.callCount())
	eligibilityPrompt := h.model.calls[1]
	require.Len(t, eligibilityPrompt, 2)
	assert.Contains(t, eligibilityPrompt[0].Content, "Loan ID: 5")
	assert.Equal(t, "Assess my application for loan 5.", eligibilityPrompt[1].Content)
}

func TestRunner_ApplicationIntentWithFloatLoanID(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		text(`{"response":"","loan_id_to_apply":5.0}`),
		text(`{"application_eligible":true,"assessment_record":"Approved.","user_message":"Approved for loan 5."}`),
	)

	res := h.send(t, "apply for loan 5")
	assert.Equal(t, "Approved for loan 5.", res.Reply)
	assert.Equal(t, 2, h.model.callCount())
	require.Len(t, h.store.records, 1)
	assert.Equal(t, int64(5), h.store.records[0].loanID)
}

func TestRunner_ApplicationRejected(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		text(`{"response":"","loan_id_to_apply":2}`),
		text(`{"application_eligible":false,"assessment_record":"Rejected: credit score 650 is below the required minimum of 750.","user_message":"We regret to inform you that your application has been rejected because your credit score does not meet the requirement."}`),
	)

	res := h.send(t, "apply for loan 2")
	assert.True(t, strings.HasPrefix(res.Reply, "We regret to inform you"))
	assert.Empty(t, h.store.records)
	assert.Nil(t, res.LoanToApply)
	assert.Contains(t, h.model.calls[1][0].Content, "Required Credit Score: 750")
}

func TestRunner_ApplicationNotRecorded(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.store.addErr = errors.New("disk full")
	h.model.script(
		text(`{"response":"","loan_id_to_apply":5}`),
		text(`{"application_eligible":true,"assessment_record":"Approved.","user_message":"Approved!"}`),
	)

	res := h.send(t, "apply for loan 5")
	assert.Equal(t, nodes.NotRecordedMessage, res.Reply)
	assert.Empty(t, h.store.records)
}

func TestRunner_LoanNotFound(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(text(`{"response":"","loan_id_to_apply":99}`))

	res := h.send(t, "apply for loan 99")
	assert.Equal(t, nodes.LoanNotFoundMessage, res.Reply)
	assert.Nil(t, res.LoanToApply)
	assert.Equal(t, 1, h.model.callCount())
	assert.Empty(t, h.store.records)
}

func TestRunner_EligibilityToolLoopKeepsApplication(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		text(`{"response":"","loan_id_to_apply":5}`),
		toolCall("e1", tools.ToolMonthlyPayment, `{"amount":10000,"interest_rate":5.5,"term_months":24}`),
		text(`{"application_eligible":true,"assessment_record":"Approved.","user_message":"Approved!"}`),
	)

	res := h.send(t, "apply for loan 5")
	assert.Equal(t, "Approved!", res.Reply)
	require.Len(t, h.store.records, 1)
	assert.Equal(t, int64(5), h.store.records[0].loanID)

	msgs := h.history(t)
	assert.Equal(t, []schema.RoleType{schema.User, schema.Assistant, schema.Tool, schema.Assistant}, roles(msgs))
	assert.Equal(t, "e1", msgs[2].ToolCallID)
	assert.Equal(t, "440.96", msgs[2].Content)

	// second eligibility call sees only its own exchange after the request
	require.Equal(t, 3, h.model.callCount())
	assert.Len(t, h.model.calls[2], 4)
}

func TestRunner_EligibilityCannotBrowseCatalogue(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		text(`{"response":"","loan_id_to_apply":5}`),
		toolCall("e1", tools.ToolGetSpecificLoan, `{"loan_id":2}`),
		text(`{"application_eligible":false,"assessment_record":"Rejected.","user_message":"Not eligible."}`),
	)

	res := h.send(t, "apply for loan 5")
	assert.Equal(t, "Not eligible.", res.Reply)

	msgs := h.history(t)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.Tool, msgs[2].Role)
	assert.True(t, strings.HasPrefix(msgs[2].Content, "Error invoking tool"))
	assert.NotContains(t, msgs[2].Content, "Mortgage")
}

func TestRunner_AdvisoryToolLoop(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		toolCall("", tools.ToolGetAvailableLoans, ""),
		text(`{"response":"We have a mortgage and a personal loan.","loan_id_to_apply":null}`),
	)

	res := h.send(t, "list loans")
	assert.Equal(t, "We have a mortgage and a personal loan.", res.Reply)

	msgs := h.history(t)
	require.Len(t, msgs, 4)
	id := msgs[1].ToolCalls[0].ID
	assert.True(t, strings.HasPrefix(id, "call_"), id)
	assert.Equal(t, id, msgs[2].ToolCallID)
	assert.Contains(t, msgs[2].Content, "Mortgage")
}

func TestRunner_APRScenario(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		toolCall("a1", tools.ToolCalculateAPR, `{"principal":10000,"monthly_payment":"440.96","term_months":24,"fee":100}`),
		text(`{"response":"The APR of loan 5 is about 6.5%.","loan_id_to_apply":null}`),
	)

	res := h.send(t, "What is the APR of loan 5?")
	assert.Equal(t, "The APR of loan 5 is about 6.5%.", res.Reply)

	msgs := h.history(t)
	require.Len(t, msgs, 4)
	apr, err := strconv.ParseFloat(msgs[2].Content, 64)
	require.NoError(t, err, msgs[2].Content)
	assert.Greater(t, apr, 5.0)
	assert.Less(t, apr, 8.0)
}

func TestRunner_UnknownToolKeepsLoopAlive(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		toolCall("u1", "transfer_money", `{}`),
		text(`{"response":"I can't do that.","loan_id_to_apply":null}`),
	)

	res := h.send(t, "move my money")
	assert.Equal(t, "I can't do that.", res.Reply)
	msgs := h.history(t)
	require.Len(t, msgs, 4)
	assert.True(t, strings.HasPrefix(msgs[2].Content, "Error invoking tool"))
}

func TestRunner_ToolRoundLimit(t *testing.T) {
	h := newHarness(t, harnessOpts{maxRounds: 2})
	h.model.script(
		toolCall("t1", tools.ToolGetAvailableLoans, ""),
		toolCall("t2", tools.ToolGetAvailableLoans, ""),
		toolCall("t3", tools.ToolGetAvailableLoans, ""),
	)

	res := h.send(t, "loop forever")
	assert.Equal(t, nodes.ToolRoundLimitMessage, res.Reply)
	assert.Equal(t, 3, h.model.callCount())

	msgs := h.history(t)
	// the third request was dropped, so every request has its result
	assert.Equal(t, []schema.RoleType{
		schema.User,
		schema.Assistant, schema.Tool,
		schema.Assistant, schema.Tool,
		schema.Assistant,
	}, roles(msgs))
	state := &model.ConversationState{Messages: msgs}
	assert.NoError(t, state.Validate())
}

func TestRunner_MalformedOutput(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(text("Sorry, here is some plain text instead of JSON."))

	res := h.send(t, "hi")
	assert.Equal(t, "Sorry, here is some plain text instead of JSON.", res.Reply)
	assert.Nil(t, res.LoanToApply)
}

func TestRunner_EmptyCompletion(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(text("  \n"))

	res := h.send(t, "hi")
	assert.Equal(t, nodes.EmptyReplyMessage, res.Reply)
	assert.NotEqual(t, nodes.ToolRoundLimitMessage, res.Reply)
	assert.Nil(t, res.LoanToApply)
}

func TestRunner_ModelFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(failure(errors.New("503 unavailable")))

	res := h.send(t, "hi")
	assert.Equal(t, nodes.ModelUnavailableMessage, res.Reply)
	assert.Nil(t, res.LoanToApply)
	assert.Len(t, h.history(t), 2)
}

func TestRunner_HistoryCarriesAcrossTurns(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.model.script(
		text(`{"response":"Hello Jane.","loan_id_to_apply":null}`),
		text(`{"response":"You said hello.","loan_id_to_apply":null}`),
	)

	h.send(t, "hello")
	res := h.send(t, "what did I say?")
	assert.Equal(t, "You said hello.", res.Reply)

	prompt := h.model.calls[1]
	require.Len(t, prompt, 4)
	assert.Equal(t, "hello", prompt[1].Content)
	assert.Equal(t, "Hello Jane.", prompt[2].Content)

	require.NoError(t, h.runner.Reset(context.Background(), h.user.ThreadID()))
	assert.Empty(t, h.history(t))
}

func TestRunner_RejectsEmptyInput(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	_, err := h.runner.Invoke(context.Background(), model.QueryInput{User: h.user, Query: "  "})
	assert.Error(t, err)
	_, err = h.runner.Invoke(context.Background(), model.QueryInput{Query: "hi"})
	assert.Error(t, err)
}

func TestMaxRunSteps(t *testing.T) {
	assert.Equal(t, 32, MaxRunSteps(0))
	assert.Equal(t, 20, MaxRunSteps(1))
	assert.Equal(t, 52, MaxRunSteps(10))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("soon", time.Second))
}
