package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	ToolRetrieveLoanKnowledge = "retrieve_loan_knowledge"
	ToolGetUserLoans          = "get_user_loans"
	ToolGetAvailableLoans     = "get_available_loans"
	ToolGetSpecificLoan       = "get_specific_loan"
	ToolCalculateAPR          = "calculate_Annual_Percentage_Rate"
	ToolMultipleAPR           = "multiple_apr_calculator"
	ToolGeneralCalculation    = "general_calculation_tool"
	ToolBatchCalculation      = "batch_general_calculation_tool"
	ToolMonthlyPayment        = "calculate_monthly_payment"
)

// EligibilityToolNames is what the eligibility stage may call: the loan math
// and the applicant's own history. Catalogue and knowledge lookups stay with
// the advisory stage.
var EligibilityToolNames = []string{
	ToolGetUserLoans,
	ToolCalculateAPR,
	ToolMultipleAPR,
	ToolMonthlyPayment,
	ToolGeneralCalculation,
	ToolBatchCalculation,
}

var (
	ErrUnknownTool = errors.New("unknown tool")

	toolNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)
)

// Registry is the closed set of tools a stage may call. It is validated once
// at construction and never mutated afterwards.
type Registry struct {
	tools map[string]tool.InvokableTool
	infos []*schema.ToolInfo
}

// NewRegistry validates names and descriptions and rejects duplicates.
func NewRegistry(ctx context.Context, ts ...tool.InvokableTool) (*Registry, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("tool registry: no tools")
	}
	r := &Registry{tools: make(map[string]tool.InvokableTool, len(ts))}
	for i, t := range ts {
		if t == nil {
			return nil, fmt.Errorf("tool registry: tool %d is nil", i)
		}
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool registry: info for tool %d: %w", i, err)
		}
		if info == nil || !toolNamePattern.MatchString(info.Name) {
			return nil, fmt.Errorf("tool registry: tool %d has an invalid name", i)
		}
		if info.Desc == "" {
			return nil, fmt.Errorf("tool registry: %s has no description", info.Name)
		}
		if _, dup := r.tools[info.Name]; dup {
			return nil, fmt.Errorf("tool registry: duplicate tool %s", info.Name)
		}
		r.tools[info.Name] = t
		r.infos = append(r.infos, info)
	}
	sort.Slice(r.infos, func(i, j int) bool { return r.infos[i].Name < r.infos[j].Name })
	return r, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (tool.InvokableTool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Infos returns the tool schemas to bind to a chat model.
func (r *Registry) Infos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// Names lists the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.infos))
	for _, info := range r.infos {
		names = append(names, info.Name)
	}
	return names
}

// Subset returns a registry limited to names. Every name must be registered.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := &Registry{tools: make(map[string]tool.InvokableTool, len(names))}
	for _, name := range names {
		t, err := r.Get(name)
		if err != nil {
			return nil, fmt.Errorf("tool registry subset: %w", err)
		}
		if _, dup := sub.tools[name]; dup {
			continue
		}
		sub.tools[name] = t
	}
	for _, info := range r.infos {
		if _, ok := sub.tools[info.Name]; ok {
			sub.infos = append(sub.infos, info)
		}
	}
	return sub, nil
}
