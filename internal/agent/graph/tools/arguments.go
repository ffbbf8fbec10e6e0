package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type argKind int

const (
	argString argKind = iota
	argNumber
	argInt
	argNumberList
	argIntList
	argStringList
)

// argumentKinds describes the expected JSON type of every known argument.
var argumentKinds = map[string]map[string]argKind{
	ToolRetrieveLoanKnowledge: {"query": argString},
	ToolGetUserLoans:          {"user_id": argInt},
	ToolGetSpecificLoan:       {"loan_id": argInt},
	ToolCalculateAPR: {
		"principal":       argNumber,
		"monthly_payment": argNumber,
		"term_months":     argInt,
		"fee":             argNumber,
	},
	ToolMultipleAPR: {
		"principals":       argNumberList,
		"monthly_payments": argNumberList,
		"term_months_list": argIntList,
		"fees":             argNumberList,
	},
	ToolMonthlyPayment: {
		"amount":        argNumber,
		"interest_rate": argNumber,
		"term_months":   argInt,
	},
	ToolGeneralCalculation: {"expression": argString},
	ToolBatchCalculation:   {"expressions": argStringList},
}

// SanitizeArguments coerces common model mistakes (numbers sent as strings,
// ids sent as floats, "$1,200" amounts) into the types the tool expects.
// It never fails; input that is not a JSON object is returned unchanged.
func SanitizeArguments(name, arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return "{}"
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments
	}
	kinds, ok := argumentKinds[name]
	if !ok {
		return arguments
	}

	for key, kind := range kinds {
		v, present := m[key]
		if !present {
			continue
		}
		if v == nil {
			delete(m, key)
			continue
		}
		switch kind {
		case argString:
			m[key] = coerceString(v)
		case argNumber:
			if f, ok := coerceNumber(v); ok {
				m[key] = f
			}
		case argInt:
			if f, ok := coerceNumber(v); ok {
				m[key] = int64(math.Round(f))
			}
		case argNumberList, argIntList:
			m[key] = coerceNumberList(v, kind == argIntList)
		case argStringList:
			if list, ok := v.([]any); ok {
				for i := range list {
					list[i] = coerceString(list[i])
				}
			} else {
				m[key] = []any{coerceString(v)}
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.NewReplacer(",", "", "$", "", "%", "", " ", "").Replace(n)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceNumberList(v any, ints bool) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	for i, item := range list {
		f, ok := coerceNumber(item)
		if !ok {
			continue
		}
		if ints {
			list[i] = int64(math.Round(f))
		} else {
			list[i] = f
		}
	}
	return list
}
