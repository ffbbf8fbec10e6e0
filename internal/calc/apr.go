// Package calc holds the loan-math behind the calculation tools.
package calc

import (
	"errors"
	"fmt"
	"math"
)

const (
	aprInitialGuess = 0.1
	aprEpsilon      = 1e-6
	aprMaxIter      = 50
)

// APRInput describes one loan for APR solving.
type APRInput struct {
	Principal      float64 `json:"principal"`
	MonthlyPayment float64 `json:"monthly_payment"`
	TermMonths     int     `json:"term_months"`
	Fee            float64 `json:"fee"`
}

var ErrMismatchedInputs = errors.New("input lists must have the same length")

// APR returns the annual percentage rate (as a percentage) implied by the
// monthly payment over the term, with the fee deducted from the amount
// received. The monthly rate is found with Newton-Raphson.
func APR(in APRInput) (float64, error) {
	n := float64(in.TermMonths)
	p := in.Principal - in.Fee
	l := in.MonthlyPayment

	switch {
	case in.TermMonths <= 0:
		return 0, fmt.Errorf("term_months must be positive, got %d", in.TermMonths)
	case p <= 0:
		return 0, fmt.Errorf("principal must exceed fee (principal=%g fee=%g)", in.Principal, in.Fee)
	case l <= 0:
		return 0, fmt.Errorf("monthly_payment must be positive, got %g", l)
	}

	v := aprInitialGuess
	for i := 0; i < aprMaxIter; i++ {
		prev := v
		g := math.Pow(1+v, n)
		gPrime := math.Pow(1+v, n-1)
		fv := p*g - l*(g-1)/v
		fPrime := p*n*gPrime - (l/(v*v))*(v*n*gPrime-(g-1))
		if fPrime == 0 {
			break
		}
		v -= fv / fPrime
		if math.Abs(v-prev) < aprEpsilon {
			break
		}
	}

	apr := (math.Pow(1+v, 12) - 1) * 100
	if math.IsNaN(apr) || math.IsInf(apr, 0) {
		return 0, fmt.Errorf("apr did not converge for principal=%g payment=%g term=%d", in.Principal, l, in.TermMonths)
	}
	return apr, nil
}

// BatchAPR solves APR for matched-length lists. A nil or empty fees list means
// no fees. Per-loan failures are reported in the matching error slot.
func BatchAPR(principals, payments []float64, terms []int, fees []float64) ([]float64, []error, error) {
	if len(fees) == 0 {
		fees = make([]float64, len(principals))
	}
	if len(payments) != len(principals) || len(terms) != len(principals) || len(fees) != len(principals) {
		return nil, nil, fmt.Errorf("%w: principals=%d monthly_payments=%d term_months_list=%d fees=%d",
			ErrMismatchedInputs, len(principals), len(payments), len(terms), len(fees))
	}

	aprs := make([]float64, len(principals))
	errs := make([]error, len(principals))
	for i := range principals {
		aprs[i], errs[i] = APR(APRInput{
			Principal:      principals[i],
			MonthlyPayment: payments[i],
			TermMonths:     terms[i],
			Fee:            fees[i],
		})
	}
	return aprs, errs, nil
}

// MonthlyPayment returns the amortized payment for an annual rate in percent.
func MonthlyPayment(amount, annualRatePct float64, termMonths int) float64 {
	if termMonths <= 0 {
		return 0
	}
	r := annualRatePct / 100 / 12
	if r == 0 {
		return amount / float64(termMonths)
	}
	g := math.Pow(1+r, float64(termMonths))
	return amount * r * g / (g - 1)
}
