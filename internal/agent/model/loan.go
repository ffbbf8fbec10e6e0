package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Loan is a loan product offered by the lender.
type Loan struct {
	LoanID              int64   `json:"loan_id"`
	Type                string  `json:"type"`
	Amount              float64 `json:"amount"`
	MonthlyPayment      float64 `json:"monthly_payment"`
	InterestRate        float64 `json:"interest_rate"`
	TermMonths          int     `json:"term_months"`
	Fee                 float64 `json:"fee"`
	Description         string  `json:"description"`
	RequiredCreditScore int     `json:"required_credit_score"`
	RequirementIncome   float64 `json:"requirement_income"`
	OtherRequirements   string  `json:"other_requirements"`
}

// User is the applicant profile.
type User struct {
	UserID      int64   `json:"user_id"`
	Email       string  `json:"email"`
	CreditScore int     `json:"credit_score"`
	Income      float64 `json:"income"`
	JobTitle    string  `json:"job_title"`
	OtherInfo   string  `json:"other_info"`
}

// UserLoan is one loan application submitted by a user.
type UserLoan struct {
	ApplicationID int64  `json:"application_id"`
	UserID        int64  `json:"user_id"`
	LoanID        int64  `json:"loan_id"`
	AppliedOn     string `json:"applied_on"`
	Ended         bool   `json:"ended"`
	Record        string `json:"record"`
}

// UserLoanWithDetails joins an application with the product it was filed for.
type UserLoanWithDetails struct {
	UserLoan
	LoanDetails Loan `json:"loan_details"`
}

// ThreadID derives the conversation session id from the user's identity.
func (u *User) ThreadID() string {
	return strconv.FormatInt(u.UserID, 10)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (l *Loan) ToContext() string {
	var b strings.Builder
	b.WriteString("Loan Details:\n")
	l.writeFields(&b)
	return b.String()
}

func (l *Loan) writeFields(b *strings.Builder) {
	fmt.Fprintf(b, "- Loan ID: %d\n", l.LoanID)
	fmt.Fprintf(b, "- Type: %s\n", l.Type)
	fmt.Fprintf(b, "- Amount: %s\n", num(l.Amount))
	fmt.Fprintf(b, "- Monthly Payment: %s\n", num(l.MonthlyPayment))
	fmt.Fprintf(b, "- Interest Rate: %s\n", num(l.InterestRate))
	fmt.Fprintf(b, "- Term (months): %d\n", l.TermMonths)
	fmt.Fprintf(b, "- Fee: %s\n", num(l.Fee))
	fmt.Fprintf(b, "- Description: %s\n", l.Description)
	fmt.Fprintf(b, "- Required Credit Score: %d\n", l.RequiredCreditScore)
	fmt.Fprintf(b, "- Required Income: %s\n", num(l.RequirementIncome))
	fmt.Fprintf(b, "- Other Requirements: %s\n", l.OtherRequirements)
}

func (u *User) ToContext() string {
	var b strings.Builder
	b.WriteString("User Profile:\n")
	fmt.Fprintf(&b, "- User ID: %d\n", u.UserID)
	fmt.Fprintf(&b, "- Email: %s\n", u.Email)
	fmt.Fprintf(&b, "- Credit Score: %d\n", u.CreditScore)
	fmt.Fprintf(&b, "- Income: %s\n", num(u.Income))
	fmt.Fprintf(&b, "- Job Title: %s\n", u.JobTitle)
	fmt.Fprintf(&b, "- Other Info: %s\n", u.OtherInfo)
	return b.String()
}

func (ul *UserLoan) writeFields(b *strings.Builder) {
	fmt.Fprintf(b, "- Application ID: %d\n", ul.ApplicationID)
	fmt.Fprintf(b, "- User ID: %d\n", ul.UserID)
	fmt.Fprintf(b, "- Loan ID: %d\n", ul.LoanID)
	fmt.Fprintf(b, "- Applied On: %s\n", ul.AppliedOn)
	fmt.Fprintf(b, "- Ended: %t\n", ul.Ended)
	fmt.Fprintf(b, "- Record: %s\n", ul.Record)
}

func (ul *UserLoan) ToContext() string {
	var b strings.Builder
	b.WriteString("User Loan Application:\n")
	ul.writeFields(&b)
	return b.String()
}

// ToContext renders the application and the loan terms as one block without headers.
func (ul *UserLoanWithDetails) ToContext() string {
	var b strings.Builder
	ul.UserLoan.writeFields(&b)
	ul.LoanDetails.writeFields(&b)
	return strings.TrimSuffix(b.String(), "\n")
}

// UserLoansToContext renders a numbered list of applications.
func UserLoansToContext(loans []UserLoanWithDetails) string {
	if len(loans) == 0 {
		return "No existing loans."
	}
	parts := make([]string, 0, len(loans))
	for i := range loans {
		parts = append(parts, fmt.Sprintf("--- Loan %d ---\n%s", i+1, loans[i].ToContext()))
	}
	return strings.Join(parts, "\n")
}

// LoansToContext concatenates product blocks.
func LoansToContext(loans []Loan) string {
	var b strings.Builder
	for i := range loans {
		b.WriteString(loans[i].ToContext())
	}
	return b.String()
}
