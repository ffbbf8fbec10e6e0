package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
)

//go:embed template/advisory_prompt.txt
var advisorySystemPrompt string

const (
	exampleAdvisoryAnswer = `{"response":"You have applied for 5 personal loans and 2 mortgage loans. Tell me if you want to check the details.","loan_id_to_apply":null}`
	exampleAdvisoryApply  = `{"response":"","loan_id_to_apply":3}`
)

// RenderAdvisory builds the advisory prompt: the system prompt with the user
// profile followed by the already trimmed history. Rendering goes through the
// Eino prompt component so prompt callbacks fire.
func RenderAdvisory(ctx context.Context, user *model.User, history []*schema.Message) ([]*schema.Message, error) {
	if user == nil {
		return nil, fmt.Errorf("advisory prompt: user is nil")
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(advisorySystemPrompt),
		schema.MessagesPlaceholder("history", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"UserProfile":          user.ToContext(),
		"KnowledgeTool":        tools.ToolRetrieveLoanKnowledge,
		"UserLoansTool":        tools.ToolGetUserLoans,
		"AvailableLoansTool":   tools.ToolGetAvailableLoans,
		"SpecificLoanTool":     tools.ToolGetSpecificLoan,
		"APRTool":              tools.ToolCalculateAPR,
		"MultipleAPRTool":      tools.ToolMultipleAPR,
		"MonthlyPaymentTool":   tools.ToolMonthlyPayment,
		"CalculationTool":      tools.ToolGeneralCalculation,
		"BatchCalculationTool": tools.ToolBatchCalculation,
		"Schema":               parsers.AdvisorySchema(),
		"ExampleAnswer":        exampleAdvisoryAnswer,
		"ExampleApply":         exampleAdvisoryApply,
		"history":              history,
	})
	if err != nil {
		return nil, fmt.Errorf("advisory prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("advisory prompt render: empty result")
	}
	return msgs, nil
}
