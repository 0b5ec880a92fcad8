package service

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
	"kncbank/internal/reference"
)

// maxReferenceRetries bounds regeneration when a freshly generated
// reference number collides with a stored one. The whole operation is
// retried because the record append lives in the same transaction as
// the balance update.
const maxReferenceRetries = 3

// LedgerService is the ledger engine: the only component that moves
// money. Every operation applies its balance mutation and its record
// append inside one store transaction, so funds are moved exactly once
// on success and not at all on failure.
type LedgerService struct {
	store      domain.Store
	refs       *reference.Generator
	minDeposit decimal.Decimal
	logger     *slog.Logger
}

func NewLedgerService(store domain.Store, refs *reference.Generator, minDeposit decimal.Decimal, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:      store,
		refs:       refs,
		minDeposit: minDeposit,
		logger:     logger,
	}
}

// OperationResult is what every money-movement operation returns: the
// caller's balance after the operation and the reference number of the
// record written on the caller's side.
type OperationResult struct {
	NewBalance decimal.Decimal
	Reference  string
}

func (s *LedgerService) Deposit(handle string, amount decimal.Decimal) (*OperationResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if amount.LessThan(s.minDeposit) {
		return nil, errors.NewAppErrorf(errors.BelowMinimum, "minimum deposit amount is PHP %s", s.minDeposit.StringFixed(2))
	}

	s.logger.Info("Processing deposit", "handle", handle, "amount", amount)

	return s.withReferenceRetry(func() (*OperationResult, error) {
		var result *OperationResult
		err := s.store.WithTransaction(func(tx domain.Store) error {
			account, err := tx.Account().GetAccountForUpdate(handle)
			if err != nil {
				return err
			}

			newBalance := account.Balance.Add(amount)
			if err := tx.Account().UpdateAccountBalance(handle, newBalance); err != nil {
				return err
			}

			record := &domain.Transaction{
				Reference:     s.refs.Generate(),
				AccountHandle: handle,
				Type:          domain.TypeDeposit,
				Amount:        amount,
				Description:   fmt.Sprintf("Deposit of PHP %s", amount.StringFixed(2)),
			}
			if err := tx.Transaction().CreateTransaction(record); err != nil {
				return err
			}

			result = &OperationResult{NewBalance: newBalance, Reference: record.Reference}
			return nil
		})
		return result, err
	})
}

func (s *LedgerService) Withdraw(handle string, amount decimal.Decimal) (*OperationResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	s.logger.Info("Processing withdrawal", "handle", handle, "amount", amount)

	return s.withReferenceRetry(func() (*OperationResult, error) {
		var result *OperationResult
		err := s.store.WithTransaction(func(tx domain.Store) error {
			account, err := tx.Account().GetAccountForUpdate(handle)
			if err != nil {
				return err
			}

			if account.Balance.LessThan(amount) {
				return errors.ErrInsufficientFunds
			}

			newBalance := account.Balance.Sub(amount)
			if err := tx.Account().UpdateAccountBalance(handle, newBalance); err != nil {
				return err
			}

			record := &domain.Transaction{
				Reference:     s.refs.Generate(),
				AccountHandle: handle,
				Type:          domain.TypeWithdraw,
				Amount:        amount,
				Description:   fmt.Sprintf("Withdrawal of PHP %s", amount.StringFixed(2)),
			}
			if err := tx.Transaction().CreateTransaction(record); err != nil {
				return err
			}

			result = &OperationResult{NewBalance: newBalance, Reference: record.Reference}
			return nil
		})
		return result, err
	})
}

// Transfer debits sender and credits recipient as one atomic unit and
// writes a linked record on each side. An optional idempotency key makes
// retried requests return the original outcome instead of moving funds
// again.
func (s *LedgerService) Transfer(sender, recipient string, amount decimal.Decimal, note *string, idempotencyKey *uuid.UUID) (*OperationResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if sender == recipient {
		return nil, errors.ErrSelfTransfer
	}

	s.logger.Info("Processing transfer",
		"sender", sender,
		"recipient", recipient,
		"amount", amount,
		"idempotency_key", idempotencyKey)

	if idempotencyKey != nil {
		existing, err := s.store.Transaction().GetByIdempotencyKey(*idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.replayedTransfer(existing)
		}
	}

	result, err := s.withReferenceRetry(func() (*OperationResult, error) {
		var result *OperationResult
		err := s.store.WithTransaction(func(tx domain.Store) error {
			// Lock both rows in lexicographic handle order so two opposing
			// transfers between the same pair cannot deadlock.
			first, second := sender, recipient
			if second < first {
				first, second = second, first
			}

			locked := make(map[string]*domain.Account, 2)
			for _, handle := range []string{first, second} {
				account, err := tx.Account().GetAccountForUpdate(handle)
				if err != nil {
					return err
				}
				locked[handle] = account
			}
			senderAccount, recipientAccount := locked[sender], locked[recipient]

			if senderAccount.Balance.LessThan(amount) {
				return errors.ErrInsufficientFunds
			}

			newSenderBalance := senderAccount.Balance.Sub(amount)
			newRecipientBalance := recipientAccount.Balance.Add(amount)

			if err := tx.Account().UpdateAccountBalance(sender, newSenderBalance); err != nil {
				return err
			}
			if err := tx.Account().UpdateAccountBalance(recipient, newRecipientBalance); err != nil {
				return err
			}

			sendRecord := &domain.Transaction{
				Reference:      s.refs.Generate(),
				AccountHandle:  sender,
				Type:           domain.TypeSend,
				Amount:         amount,
				Description:    fmt.Sprintf("Sent PHP %s to %s", amount.StringFixed(2), recipient),
				Counterparty:   &recipient,
				Note:           note,
				IdempotencyKey: idempotencyKey,
			}
			if err := tx.Transaction().CreateTransaction(sendRecord); err != nil {
				return err
			}

			receiveRecord := &domain.Transaction{
				Reference:     s.refs.Generate(),
				AccountHandle: recipient,
				Type:          domain.TypeReceive,
				Amount:        amount,
				Description:   fmt.Sprintf("Received PHP %s from %s", amount.StringFixed(2), sender),
				Counterparty:  &sender,
				Note:          note,
			}
			if err := tx.Transaction().CreateTransaction(receiveRecord); err != nil {
				return err
			}

			result = &OperationResult{NewBalance: newSenderBalance, Reference: sendRecord.Reference}
			return nil
		})
		return result, err
	})

	// Two requests racing on the same idempotency key: the loser hits the
	// unique index and is answered with the winner's outcome.
	if err != nil && idempotencyKey != nil && isCode(err, errors.DuplicateTransaction) {
		existing, lookupErr := s.store.Transaction().GetByIdempotencyKey(*idempotencyKey)
		if lookupErr == nil && existing != nil {
			return s.replayedTransfer(existing)
		}
		return nil, err
	}

	return result, err
}

func (s *LedgerService) replayedTransfer(existing *domain.Transaction) (*OperationResult, error) {
	s.logger.Info("Returning existing transfer for idempotency key",
		"idempotency_key", existing.IdempotencyKey,
		"reference", existing.Reference)

	account, err := s.store.Account().GetAccount(existing.AccountHandle)
	if err != nil {
		return nil, err
	}
	return &OperationResult{NewBalance: account.Balance, Reference: existing.Reference}, nil
}

func (s *LedgerService) PayBill(handle, companyName string, amount decimal.Decimal, note *string) (*OperationResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	s.logger.Info("Processing bill payment", "handle", handle, "company", companyName, "amount", amount)

	return s.withReferenceRetry(func() (*OperationResult, error) {
		var result *OperationResult
		err := s.store.WithTransaction(func(tx domain.Store) error {
			account, err := tx.Account().GetAccountForUpdate(handle)
			if err != nil {
				return err
			}

			company, err := tx.Company().GetCompany(companyName)
			if err != nil {
				return err
			}
			if !company.IsActive {
				return errors.ErrPayeeNotFound
			}

			if account.Balance.LessThan(amount) {
				return errors.ErrInsufficientFunds
			}

			newBalance := account.Balance.Sub(amount)
			if err := tx.Account().UpdateAccountBalance(handle, newBalance); err != nil {
				return err
			}

			record := &domain.Transaction{
				Reference:     s.refs.Generate(),
				AccountHandle: handle,
				Type:          domain.TypeBillPayment,
				Amount:        amount,
				Description:   fmt.Sprintf("Bill payment to %s - PHP %s", companyName, amount.StringFixed(2)),
				Company:       &company.Name,
				Note:          note,
			}
			if err := tx.Transaction().CreateTransaction(record); err != nil {
				return err
			}

			result = &OperationResult{NewBalance: newBalance, Reference: record.Reference}
			return nil
		})
		return result, err
	})
}

func (s *LedgerService) GetBalance(handle string) (decimal.Decimal, error) {
	account, err := s.store.Account().GetAccount(handle)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// ListTransactions returns up to limit records for the account, newest
// first. A non-positive limit falls back to 10.
func (s *LedgerService) ListTransactions(handle string, limit int) ([]domain.Transaction, error) {
	if _, err := s.store.Account().GetAccount(handle); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return s.store.Transaction().ListForAccount(handle, limit)
}

// withReferenceRetry reruns the whole operation when the store rejects a
// generated reference number as already used. Anything else surfaces
// immediately; the transaction has already been rolled back by then.
func (s *LedgerService) withReferenceRetry(op func() (*OperationResult, error)) (*OperationResult, error) {
	var result *OperationResult
	var err error
	for attempt := 1; attempt <= maxReferenceRetries; attempt++ {
		result, err = op()
		if err == nil || !isCode(err, errors.ReferenceCollision) {
			return result, err
		}
		s.logger.Warn("Reference collision, retrying operation", "attempt", attempt)
	}
	return nil, err
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || amount.IsZero() {
		return errors.ErrInvalidAmount
	}
	return nil
}

func isCode(err error, code errors.ErrorCode) bool {
	appErr, ok := err.(*errors.AppError)
	return ok && appErr.Code == code
}
