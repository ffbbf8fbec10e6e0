// Package store is the relational storage collaborator for users, loan
// products and loan applications.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/loanadvisor/internal/core/error"
	"github.com/Chative-core-poc-v1/loanadvisor/pkg/database"
)

const loanColumns = `loans.loan_id, loans.type, loans.amount, loans.monthly_payment, loans.interest_rate,
	loans.term_months, loans.fee, loans.description, loans.required_credit_score,
	loans.requirement_income, loans.other_requirements`

const userColumns = `user_id, email, credit_score, income, job_title, other_info`

// SQLStore implements model.LoanStore over database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ model.LoanStore = (*SQLStore)(nil)

// New wraps an open pool. driver selects the placeholder dialect.
func New(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: strings.ToLower(driver)}
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != database.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner, l *model.Loan) error {
	return row.Scan(&l.LoanID, &l.Type, &l.Amount, &l.MonthlyPayment, &l.InterestRate,
		&l.TermMonths, &l.Fee, &l.Description, &l.RequiredCreditScore,
		&l.RequirementIncome, &l.OtherRequirements)
}

func scanUser(row scanner, u *model.User) error {
	return row.Scan(&u.UserID, &u.Email, &u.CreditScore, &u.Income, &u.JobTitle, &u.OtherInfo)
}

// GetAvailableLoans lists every loan product.
func (s *SQLStore) GetAvailableLoans(ctx context.Context) ([]model.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY loans.loan_id`)
	if err != nil {
		return nil, fmt.Errorf("get available loans: %w", errx.WrapSQL(err))
	}
	defer rows.Close()

	loans := []model.Loan{}
	for rows.Next() {
		var l model.Loan
		if err := scanLoan(rows, &l); err != nil {
			return nil, fmt.Errorf("scan loan: %w", errx.WrapSQL(err))
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", errx.WrapSQL(err))
	}
	return loans, nil
}

// GetUserLoans lists a user's applications joined with the loan terms.
func (s *SQLStore) GetUserLoans(ctx context.Context, userID int64) ([]model.UserLoanWithDetails, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT user_loans.application_id, user_loans.user_id, user_loans.applied_on,
			user_loans.ended, user_loans.record, `+loanColumns+`
		FROM user_loans
		INNER JOIN loans ON user_loans.loan_id = loans.loan_id
		WHERE user_loans.user_id = ?
		ORDER BY user_loans.application_id
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("get user loans: %w", errx.WrapSQL(err))
	}
	defer rows.Close()

	out := []model.UserLoanWithDetails{}
	for rows.Next() {
		var ul model.UserLoanWithDetails
		l := &ul.LoanDetails
		if err := rows.Scan(&ul.ApplicationID, &ul.UserID, &ul.AppliedOn, &ul.Ended, &ul.Record,
			&l.LoanID, &l.Type, &l.Amount, &l.MonthlyPayment, &l.InterestRate,
			&l.TermMonths, &l.Fee, &l.Description, &l.RequiredCreditScore,
			&l.RequirementIncome, &l.OtherRequirements); err != nil {
			return nil, fmt.Errorf("scan user loan: %w", errx.WrapSQL(err))
		}
		ul.LoanID = l.LoanID
		out = append(out, ul)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user loans: %w", errx.WrapSQL(err))
	}
	return out, nil
}

// GetSpecificLoan returns (nil, nil) when the loan does not exist.
func (s *SQLStore) GetSpecificLoan(ctx context.Context, loanID int64) (*model.Loan, error) {
	var l model.Loan
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+loanColumns+` FROM loans WHERE loans.loan_id = ?`), loanID)
	if err := scanLoan(row, &l); err != nil {
		wrapped := errx.WrapSQL(err)
		if errx.IsNotFound(wrapped) {
			return nil, nil
		}
		return nil, fmt.Errorf("get loan %d: %w", loanID, wrapped)
	}
	return &l, nil
}

// GetUsers lists every user profile.
func (s *SQLStore) GetUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", errx.WrapSQL(err))
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("scan user: %w", errx.WrapSQL(err))
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", errx.WrapSQL(err))
	}
	return users, nil
}

// GetUserByID returns (nil, nil) when the user does not exist.
func (s *SQLStore) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	var u model.User
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE user_id = ?`), userID)
	if err := scanUser(row, &u); err != nil {
		wrapped := errx.WrapSQL(err)
		if errx.IsNotFound(wrapped) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", userID, wrapped)
	}
	return &u, nil
}

// AddUserLoanRecord appends one application dated today with ended=false.
// The insert is a single statement, so it either lands whole or not at all.
func (s *SQLStore) AddUserLoanRecord(ctx context.Context, userID, loanID int64, record string) error {
	today := "DATE('now')"
	if s.driver == database.DriverPostgres {
		today = "to_char(CURRENT_DATE, 'YYYY-MM-DD')"
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_loans (user_id, loan_id, applied_on, ended, record)
		VALUES (?, ?, `+today+`, FALSE, ?)
	`), userID, loanID, record)
	if err != nil {
		return fmt.Errorf("add user loan record: %w", errx.WrapSQL(err))
	}
	return nil
}
