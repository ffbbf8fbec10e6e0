package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

const (
	noDocumentsFound      = "No relevant documents found."
	noDocumentsFoundError = "No relevant documents found due to an error."
)

// Deps are the collaborators the loan toolset needs.
type Deps struct {
	Store     model.LoanStore
	Retriever model.Retriever
	TopK      int
}

// ===================================
// Knowledge retrieval
// ===================================

type KnowledgeInput struct {
	Query string `json:"query"`
}

func newRetrieveKnowledgeTool(r model.Retriever, k int) tool.InvokableTool {
	if k <= 0 {
		k = 3
	}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolRetrieveLoanKnowledge,
			Desc: "Use this tool to retrieve relevant loan documents and information to assist with user queries about loans.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "What to look up in the loan knowledge base", Required: true},
			}),
		},
		func(ctx context.Context, in *KnowledgeInput) (string, error) {
			if strings.TrimSpace(in.Query) == "" {
				return "", fmt.Errorf("query is required")
			}
			docs, err := r.Search(ctx, in.Query, k)
			if err != nil {
				logx.Warn().Err(err).Str("tool_name", ToolRetrieveLoanKnowledge).Msg("Knowledge search failed")
				return noDocumentsFoundError, nil
			}
			logx.Debug().Int("documents", len(docs)).Msg("Retrieved documents for query")
			combined := strings.Join(docs, "\n\n")
			if strings.TrimSpace(combined) == "" {
				return noDocumentsFound, nil
			}
			return combined, nil
		},
		utils.WithMarshalOutput(marshalText),
	)
}

// ===================================
// Loan records
// ===================================

type UserLoansInput struct {
	UserID int64 `json:"user_id"`
}

type LoanIDInput struct {
	LoanID int64 `json:"loan_id"`
}

type NoInput struct{}

// newUserLoansTool only ever answers for the user of the current turn.
func newUserLoansTool(store model.LoanStore) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetUserLoans,
			Desc: "Use this tool to get the existing loans of a user by their user ID.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_id": {Type: schema.Integer, Desc: "ID of the current user", Required: true},
			}),
		},
		func(ctx context.Context, in *UserLoansInput) (string, error) {
			u, ok := model.UserFromContext(ctx)
			if !ok {
				return "", fmt.Errorf("no active user for this conversation")
			}
			if in.UserID != u.UserID {
				logx.Warn().
					Int64("requested_user_id", in.UserID).
					Int64("user_id", u.UserID).
					Msg("Refused loan lookup for another user")
				return "", fmt.Errorf("access denied: loans can only be retrieved for the current user")
			}
			loans, err := store.GetUserLoans(ctx, u.UserID)
			if err != nil {
				return "", err
			}
			if len(loans) == 0 {
				return "No loans found for this user.", nil
			}
			return model.UserLoansToContext(loans), nil
		},
		utils.WithMarshalOutput(marshalText),
	)
}

func newAvailableLoansTool(store model.LoanStore) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetAvailableLoans,
			Desc: "Use this tool to get the list of available loans.",
		},
		func(ctx context.Context, _ *NoInput) (string, error) {
			loans, err := store.GetAvailableLoans(ctx)
			if err != nil {
				return "", err
			}
			if len(loans) == 0 {
				return "No available loans found.", nil
			}
			return model.LoansToContext(loans), nil
		},
		utils.WithMarshalOutput(marshalText),
	)
}

func newSpecificLoanTool(store model.LoanStore) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetSpecificLoan,
			Desc: "Use this tool to get details of a specific loan by its loan ID.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"loan_id": {Type: schema.Integer, Desc: "ID of the loan product", Required: true},
			}),
		},
		func(ctx context.Context, in *LoanIDInput) (string, error) {
			loan, err := store.GetSpecificLoan(ctx, in.LoanID)
			if err != nil {
				return "", err
			}
			if loan == nil {
				return "Loan not found.", nil
			}
			return loan.ToContext(), nil
		},
		utils.WithMarshalOutput(marshalText),
	)
}

// NewLoanToolset returns every tool the advisory and eligibility stages share.
func NewLoanToolset(deps Deps) ([]tool.InvokableTool, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("loan toolset: store is nil")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("loan toolset: retriever is nil")
	}
	calcTools, err := newCalculationTools()
	if err != nil {
		return nil, err
	}
	ts := []tool.InvokableTool{
		newRetrieveKnowledgeTool(deps.Retriever, deps.TopK),
		newUserLoansTool(deps.Store),
		newAvailableLoansTool(deps.Store),
		newSpecificLoanTool(deps.Store),
	}
	return append(ts, calcTools...), nil
}

// marshalText passes string outputs through unquoted.
func marshalText(_ context.Context, output any) (string, error) {
	if s, ok := output.(string); ok {
		return s, nil
	}
	return fmt.Sprint(output), nil
}
