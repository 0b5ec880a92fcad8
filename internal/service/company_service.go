package service

import (
	"log/slog"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
)

// CompanyService manages the payee directory the ledger checks bill
// payments against.
type CompanyService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewCompanyService(store domain.Store, logger *slog.Logger) *CompanyService {
	return &CompanyService{
		store:  store,
		logger: logger,
	}
}

func (s *CompanyService) CreateCompany(name, category string) (*domain.Company, error) {
	if name == "" || category == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "name and category are required")
	}

	company := &domain.Company{
		Name:     name,
		Category: category,
	}
	if err := s.store.Company().CreateCompany(company); err != nil {
		return nil, err
	}

	return company, nil
}

func (s *CompanyService) ListCompanies() ([]domain.Company, error) {
	return s.store.Company().ListActive()
}
