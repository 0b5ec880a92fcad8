package domain

import "time"

// Company is a payee the ledger can pay bills to.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type CompanyRepository interface {
	CreateCompany(company *Company) error
	GetCompany(name string) (*Company, error)
	ListActive() ([]Company, error)
}
