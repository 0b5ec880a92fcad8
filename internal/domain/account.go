package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a ledger account keyed by its immutable handle. The
// identity fields belong to the signup/profile glue; the ledger only
// ever touches Balance.
type Account struct {
	Handle    string          `json:"handle"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	HashedPIN string          `json:"-"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type AccountRepository interface {
	CreateAccount(account *Account) error
	GetAccount(handle string) (*Account, error)
	// GetAccountForUpdate locks the account row for the duration of the
	// surrounding transaction. Balance updates must happen under this lock.
	GetAccountForUpdate(handle string) (*Account, error)
	UpdateAccountBalance(handle string, newBalance decimal.Decimal) error
	UpdateProfile(handle, firstName, lastName, email string) error
}
