package repository

import (
	"database/sql"
	"log/slog"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
)

// Store is the Postgres-backed unit of work. A Store built from *sql.DB
// can open transactions; the Store handed to a WithTransaction callback
// runs every repository call on the same sql.Tx.
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

func (s *Store) Account() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

func (s *Store) Company() domain.CompanyRepository {
	return NewCompanyRepository(s.executor, s.logger)
}

// WithTransaction runs fn inside a database transaction. fn receives a
// Store bound to that transaction; returning an error rolls everything
// back, including any balance updates and record appends already issued.
func (s *Store) WithTransaction(fn func(domain.Store) error) error {
	db, ok := s.executor.(*sql.DB)
	if !ok {
		return errors.ErrCannotBeginTransaction
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to begin transaction").WithDetails(err.Error())
	}

	txStore := &Store{
		executor: &TxWrapper{Tx: tx},
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

var _ domain.Store = (*Store)(nil)
