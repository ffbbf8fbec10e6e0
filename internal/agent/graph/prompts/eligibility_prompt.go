package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
)

//go:embed template/eligibility_prompt.txt
var eligibilitySystemPrompt string

const (
	exampleEligible = `{"application_eligible":true,"assessment_record":"The user meets all criteria: credit score 750 and annual income $85,000 exceed the required thresholds.","user_message":"Congratulations! Your application for the loan (ID:5) has been approved based on your credit score and income."}`
	exampleRejected = `{"application_eligible":false,"assessment_record":"Rejected: credit score 600 is below the required minimum of 650.","user_message":"We regret to inform you that your application has been rejected because your credit score does not meet the requirement."}`
)

// RenderEligibility builds the restricted eligibility prompt. It carries the
// user profile, the target loan and the user's applications, then a single
// assessment request, then only the tool exchanges of the current
// assessment. General conversation history is never included.
func RenderEligibility(
	ctx context.Context,
	user *model.User,
	loan *model.Loan,
	userLoans []model.UserLoanWithDetails,
	exchanges []*schema.Message,
) ([]*schema.Message, error) {
	if user == nil || loan == nil {
		return nil, fmt.Errorf("eligibility prompt: user and loan are required")
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(eligibilitySystemPrompt),
		schema.UserMessage("Assess my application for loan {{.LoanID}}."),
		schema.MessagesPlaceholder("exchanges", true),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"UserProfile":     user.ToContext(),
		"Loan":            loan.ToContext(),
		"UserLoans":       model.UserLoansToContext(userLoans),
		"LoanID":          loan.LoanID,
		"Schema":          parsers.EligibilitySchema(),
		"ExampleEligible": exampleEligible,
		"ExampleRejected": exampleRejected,
		"exchanges":       exchanges,
	})
	if err != nil {
		return nil, fmt.Errorf("eligibility prompt render: %w", err)
	}
	if len(msgs) < 2 {
		return nil, fmt.Errorf("eligibility prompt render: empty result")
	}
	return msgs, nil
}
