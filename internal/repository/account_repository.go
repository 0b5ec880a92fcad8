package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
)

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(account *domain.Account) error {
	query := `
		INSERT INTO accounts (handle, first_name, last_name, email, hashed_pin, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	_, err := r.db.Exec(
		query,
		account.Handle,
		account.FirstName,
		account.LastName,
		account.Email,
		account.HashedPIN,
		account.Balance.String(),
		now,
		now,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate account creation attempt", "handle", account.Handle)
				return errors.ErrDuplicateAccount
			}
		}
		r.logger.Error("Failed to create account", "handle", account.Handle, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created", "handle", account.Handle)
	return nil
}

func (r *accountRepository) GetAccount(handle string) (*domain.Account, error) {
	query := `
		SELECT handle, first_name, last_name, email, hashed_pin, balance, created_at, updated_at
		FROM accounts WHERE handle = $1
	`

	return r.scanAccount(query, handle)
}

func (r *accountRepository) GetAccountForUpdate(handle string) (*domain.Account, error) {
	query := `
		SELECT handle, first_name, last_name, email, hashed_pin, balance, created_at, updated_at
		FROM accounts WHERE handle = $1 FOR UPDATE
	`

	return r.scanAccount(query, handle)
}

func (r *accountRepository) scanAccount(query, handle string) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := r.db.QueryRow(query, handle).Scan(
		&account.Handle,
		&account.FirstName,
		&account.LastName,
		&account.Email,
		&account.HashedPIN,
		&balanceStr,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Account not found", "handle", handle)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "handle", handle, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "handle", handle, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	account.Balance = balance
	return &account, nil
}

func (r *accountRepository) UpdateAccountBalance(handle string, newBalance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE handle = $3
	`

	result, err := r.db.Exec(query, newBalance.String(), time.Now(), handle)
	if err != nil {
		r.logger.Error("Failed to update account balance", "handle", handle, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update account balance").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "handle", handle)
		return errors.ErrAccountNotFound
	}

	return nil
}

func (r *accountRepository) UpdateProfile(handle, firstName, lastName, email string) error {
	query := `
		UPDATE accounts
		SET first_name = $1, last_name = $2, email = $3, updated_at = $4
		WHERE handle = $5
	`

	result, err := r.db.Exec(query, firstName, lastName, email, time.Now(), handle)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation on email
				return errors.ErrDuplicateAccount
			}
		}
		r.logger.Error("Failed to update profile", "handle", handle, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update profile").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		return errors.ErrAccountNotFound
	}

	return nil
}
