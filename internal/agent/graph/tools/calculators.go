package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/calc"
)

type APRInput struct {
	Principal      float64 `json:"principal"`
	MonthlyPayment float64 `json:"monthly_payment"`
	TermMonths     int     `json:"term_months"`
	Fee            float64 `json:"fee,omitempty"`
}

type MultipleAPRInput struct {
	Principals      []float64 `json:"principals"`
	MonthlyPayments []float64 `json:"monthly_payments"`
	TermMonthsList  []int     `json:"term_months_list"`
	Fees            []float64 `json:"fees,omitempty"`
}

type MonthlyPaymentInput struct {
	Amount       float64 `json:"amount"`
	InterestRate float64 `json:"interest_rate"`
	TermMonths   int     `json:"term_months"`
}

type ExpressionInput struct {
	Expression string `json:"expression"`
}

type BatchExpressionInput struct {
	Expressions []string `json:"expressions"`
}

func numberList(desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Array, Desc: desc, ElemInfo: &schema.ParameterInfo{Type: schema.Number}, Required: true}
}

func newCalculationTools() ([]tool.InvokableTool, error) {
	calculator, err := calc.NewCalculator()
	if err != nil {
		return nil, fmt.Errorf("calculation tools: %w", err)
	}

	aprTool := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCalculateAPR,
			Desc: "Use this tool to calculate the Annual Percentage Rate (APR) given principal, fee, monthly payment and term in months.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"principal":       {Type: schema.Number, Desc: "Loan amount", Required: true},
				"monthly_payment": {Type: schema.Number, Desc: "Monthly payment", Required: true},
				"term_months":     {Type: schema.Integer, Desc: "Loan term in months", Required: true},
				"fee":             {Type: schema.Number, Desc: "Upfront fee, default 0"},
			}),
		},
		func(_ context.Context, in *APRInput) (string, error) {
			apr, err := calc.APR(calc.APRInput{
				Principal:      in.Principal,
				MonthlyPayment: in.MonthlyPayment,
				TermMonths:     in.TermMonths,
				Fee:            in.Fee,
			})
			if err != nil {
				return "", err
			}
			return strconv.FormatFloat(apr, 'f', -1, 64), nil
		},
		utils.WithMarshalOutput(marshalText),
	)

	multiTool := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolMultipleAPR,
			Desc: "Use this tool to calculate APR for multiple loans.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"principals":       numberList("Loan amounts"),
				"monthly_payments": numberList("Monthly payments, same order as principals"),
				"term_months_list": {
					Type:     schema.Array,
					Desc:     "Loan terms in months, same order as principals",
					ElemInfo: &schema.ParameterInfo{Type: schema.Integer},
					Required: true,
				},
				"fees": {
					Type:     schema.Array,
					Desc:     "Optional upfront fees, same order as principals",
					ElemInfo: &schema.ParameterInfo{Type: schema.Number},
				},
			}),
		},
		func(_ context.Context, in *MultipleAPRInput) (string, error) {
			aprs, errs, err := calc.BatchAPR(in.Principals, in.MonthlyPayments, in.TermMonthsList, in.Fees)
			if err != nil {
				return "", err
			}
			out := make([]any, len(aprs))
			for i := range aprs {
				if errs[i] != nil {
					out[i] = fmt.Sprintf("Error in calculation: %v", errs[i])
					continue
				}
				out[i] = aprs[i]
			}
			return marshalList(out)
		},
		utils.WithMarshalOutput(marshalText),
	)

	paymentTool := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolMonthlyPayment,
			Desc: "Use this tool to calculate the amortized monthly payment of a loan given amount, annual interest rate in percent and term in months.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"amount":        {Type: schema.Number, Desc: "Loan amount", Required: true},
				"interest_rate": {Type: schema.Number, Desc: "Annual interest rate in percent, e.g. 5.5", Required: true},
				"term_months":   {Type: schema.Integer, Desc: "Loan term in months", Required: true},
			}),
		},
		func(_ context.Context, in *MonthlyPaymentInput) (string, error) {
			if in.Amount <= 0 || in.TermMonths <= 0 || in.InterestRate < 0 {
				return "", fmt.Errorf("amount and term_months must be positive and interest_rate non-negative")
			}
			payment := calc.MonthlyPayment(in.Amount, in.InterestRate, in.TermMonths)
			return strconv.FormatFloat(math.Round(payment*100)/100, 'f', 2, 64), nil
		},
		utils.WithMarshalOutput(marshalText),
	)

	exprTool := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGeneralCalculation,
			Desc: "Use this tool to perform general calculations based on provided expression. Supports + - * / parentheses and pow(x, y), sqrt, abs, round(x, digits), min, max.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expression": {Type: schema.String, Desc: "Arithmetic expression, e.g. 25000 * 0.004 / (1 - pow(1.004, -60))", Required: true},
			}),
		},
		func(_ context.Context, in *ExpressionInput) (string, error) {
			out, err := calculator.Evaluate(in.Expression)
			if err != nil {
				return fmt.Sprintf("Error in calculation: %v", err), nil
			}
			return out, nil
		},
		utils.WithMarshalOutput(marshalText),
	)

	batchTool := utils.NewTool(
		&schema.ToolInfo{
			Name: ToolBatchCalculation,
			Desc: "Use this tool to perform batch general calculations based on provided expressions.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expressions": {
					Type:     schema.Array,
					Desc:     "Arithmetic expressions evaluated independently",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
			}),
		},
		func(_ context.Context, in *BatchExpressionInput) (string, error) {
			return marshalList(calculator.EvaluateBatch(in.Expressions))
		},
		utils.WithMarshalOutput(marshalText),
	)

	return []tool.InvokableTool{aprTool, multiTool, paymentTool, exprTool, batchTool}, nil
}

func marshalList(v []any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(b), nil
}
