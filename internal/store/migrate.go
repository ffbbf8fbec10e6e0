package store

import (
	"context"
	"fmt"

	"github.com/Chative-core-poc-v1/loanadvisor/pkg/database"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS loans (
		loan_id INTEGER PRIMARY KEY,
		type TEXT NOT NULL,
		amount REAL NOT NULL,
		monthly_payment REAL NOT NULL,
		interest_rate REAL NOT NULL,
		term_months INTEGER NOT NULL,
		fee REAL NOT NULL,
		description TEXT NOT NULL,
		required_credit_score INTEGER NOT NULL,
		requirement_income REAL NOT NULL,
		other_requirements TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		credit_score INTEGER NOT NULL,
		income REAL NOT NULL,
		job_title TEXT NOT NULL,
		other_info TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_loans (
		application_id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		loan_id INTEGER NOT NULL,
		applied_on TEXT NOT NULL,
		ended BOOLEAN DEFAULT FALSE,
		record TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (user_id),
		FOREIGN KEY (loan_id) REFERENCES loans (loan_id)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS loans (
		loan_id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		monthly_payment DOUBLE PRECISION NOT NULL,
		interest_rate DOUBLE PRECISION NOT NULL,
		term_months INTEGER NOT NULL,
		fee DOUBLE PRECISION NOT NULL,
		description TEXT NOT NULL,
		required_credit_score INTEGER NOT NULL,
		requirement_income DOUBLE PRECISION NOT NULL,
		other_requirements TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		credit_score INTEGER NOT NULL,
		income DOUBLE PRECISION NOT NULL,
		job_title TEXT NOT NULL,
		other_info TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_loans (
		application_id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users (user_id),
		loan_id BIGINT NOT NULL REFERENCES loans (loan_id),
		applied_on TEXT NOT NULL,
		ended BOOLEAN DEFAULT FALSE,
		record TEXT NOT NULL
	)`,
}

// Migrate creates the loans, users and user_loans tables when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == database.DriverPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
