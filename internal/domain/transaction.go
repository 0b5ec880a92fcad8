package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit     TransactionType = "deposit"
	TypeWithdraw    TransactionType = "withdraw"
	TypeSend        TransactionType = "send"
	TypeReceive     TransactionType = "receive"
	TypeBillPayment TransactionType = "bill_payment"
)

// Transaction is one append-only ledger record. A transfer produces two
// of them, one per affected account, linked through Counterparty.
type Transaction struct {
	ID             int64           `json:"id"`
	Reference      string          `json:"reference_number"`
	AccountHandle  string          `json:"account_handle"`
	Type           TransactionType `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	Counterparty   *string         `json:"counterparty,omitempty"`
	Company        *string         `json:"company,omitempty"`
	Note           *string         `json:"note,omitempty"`
	IdempotencyKey *uuid.UUID      `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type TransactionRepository interface {
	// CreateTransaction appends one record. There is no update or delete.
	CreateTransaction(tx *Transaction) error
	GetByIdempotencyKey(key uuid.UUID) (*Transaction, error)
	// ListForAccount returns up to limit records, newest first.
	ListForAccount(handle string, limit int) ([]Transaction, error)
}
