package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// AdvisoryOutput is the structured reply of the advisory stage.
type AdvisoryOutput struct {
	Response      string `json:"response"`
	LoanIDToApply *int64 `json:"loan_id_to_apply"`
}

// UnmarshalJSON accepts integral numbers in any JSON spelling (5, 5.0, 5e0)
// for loan_id_to_apply, matching what the output schema calls an integer.
func (o *AdvisoryOutput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Response      string       `json:"response"`
		LoanIDToApply *json.Number `json:"loan_id_to_apply"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Response = raw.Response
	o.LoanIDToApply = nil
	if raw.LoanIDToApply == nil {
		return nil
	}
	id, err := integralID(*raw.LoanIDToApply)
	if err != nil {
		return fmt.Errorf("loan_id_to_apply: %w", err)
	}
	o.LoanIDToApply = &id
	return nil
}

func integralID(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s is not an integer", n)
	}
	return int64(f), nil
}

// EligibilityOutput is the structured decision of the eligibility stage.
type EligibilityOutput struct {
	ApplicationEligible bool   `json:"application_eligible"`
	AssessmentRecord    string `json:"assessment_record"`
	UserMessage         string `json:"user_message"`
}
