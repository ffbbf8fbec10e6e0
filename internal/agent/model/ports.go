package model

import "context"

// LoanStore is the relational storage collaborator. GetSpecificLoan and
// GetUserByID return (nil, nil) when the row does not exist.
type LoanStore interface {
	GetAvailableLoans(ctx context.Context) ([]Loan, error)
	GetUserLoans(ctx context.Context, userID int64) ([]UserLoanWithDetails, error)
	GetSpecificLoan(ctx context.Context, loanID int64) (*Loan, error)
	GetUsers(ctx context.Context) ([]User, error)
	GetUserByID(ctx context.Context, userID int64) (*User, error)
	AddUserLoanRecord(ctx context.Context, userID, loanID int64, record string) error
}

// Retriever is the knowledge-base collaborator.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

type userCtxKey struct{}

// WithUser attaches the active user of a turn to ctx so tools can scope
// lookups to that user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext returns the user attached by WithUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(*User)
	return u, ok && u != nil
}
