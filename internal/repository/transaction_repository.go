package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
)

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) CreateTransaction(tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(reference_number, account_handle, type, amount, description, counterparty, company, note, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()

	var idempotencyKey interface{}
	if tx.IdempotencyKey != nil {
		idempotencyKey = *tx.IdempotencyKey
	}

	err := r.db.QueryRow(
		query,
		tx.Reference,
		tx.AccountHandle,
		tx.Type,
		tx.Amount.String(),
		tx.Description,
		tx.Counterparty,
		tx.Company,
		tx.Note,
		idempotencyKey,
		now,
	).Scan(&tx.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				if pqErr.Constraint == "idx_transactions_idempotency_key" {
					r.logger.Warn("Duplicate idempotency key", "idempotency_key", tx.IdempotencyKey)
					return errors.ErrDuplicateKey
				}
				// The only other unique constraint is the reference number.
				r.logger.Warn("Reference number collision", "reference", tx.Reference)
				return errors.ErrReferenceCollision
			}
		}
		r.logger.Error("Failed to create transaction",
			"account_handle", tx.AccountHandle,
			"type", tx.Type,
			"amount", tx.Amount,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	tx.CreatedAt = now
	return nil
}

func (r *transactionRepository) GetByIdempotencyKey(key uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT id, reference_number, account_handle, type, amount, description, counterparty, company, note, idempotency_key, created_at
		FROM transactions WHERE idempotency_key = $1
	`

	rows, err := r.db.Query(query, key)
	if err != nil {
		r.logger.Error("Failed to get transaction by idempotency key", "idempotency_key", key, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	transaction, err := r.scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

func (r *transactionRepository) ListForAccount(handle string, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT id, reference_number, account_handle, type, amount, description, counterparty, company, note, idempotency_key, created_at
		FROM transactions
		WHERE account_handle = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, handle, limit)
	if err != nil {
		r.logger.Error("Failed to list transactions", "handle", handle, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		transaction, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}

	return transactions, nil
}

func (r *transactionRepository) scanTransaction(rows *sql.Rows) (*domain.Transaction, error) {
	var transaction domain.Transaction
	var amountStr string
	var counterparty, company, note, idempotencyKey sql.NullString

	err := rows.Scan(
		&transaction.ID,
		&transaction.Reference,
		&transaction.AccountHandle,
		&transaction.Type,
		&amountStr,
		&counterparty,
		&company,
		&note,
		&idempotencyKey,
		&transaction.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to scan transaction", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to scan transaction").WithDetails(err.Error())
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
	}
	transaction.Amount = amount

	if counterparty.Valid {
		transaction.Counterparty = &counterparty.String
	}
	if company.Valid {
		transaction.Company = &company.String
	}
	if note.Valid {
		transaction.Note = &note.String
	}
	if idempotencyKey.Valid {
		key, err := uuid.Parse(idempotencyKey.String)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to parse idempotency key").WithDetails(err.Error())
		}
		transaction.IdempotencyKey = &key
	}

	return &transaction, nil
}
