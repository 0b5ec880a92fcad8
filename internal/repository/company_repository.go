package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
)

type companyRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewCompanyRepository(db SQLExecutor, logger *slog.Logger) domain.CompanyRepository {
	return &companyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *companyRepository) CreateCompany(company *domain.Company) error {
	query := `
		INSERT INTO companies (name, category, is_active, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, company.Name, company.Category, true, now).Scan(&company.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate company creation attempt", "name", company.Name)
				return errors.ErrDuplicateCompany
			}
		}
		r.logger.Error("Failed to create company", "name", company.Name, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create company").WithDetails(err.Error())
	}

	company.IsActive = true
	company.CreatedAt = now
	r.logger.Info("Company created", "name", company.Name, "id", company.ID)
	return nil
}

func (r *companyRepository) GetCompany(name string) (*domain.Company, error) {
	query := `
		SELECT id, name, category, is_active, created_at
		FROM companies WHERE name = $1
	`

	var company domain.Company
	err := r.db.QueryRow(query, name).Scan(
		&company.ID,
		&company.Name,
		&company.Category,
		&company.IsActive,
		&company.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Company not found", "name", name)
			return nil, errors.ErrPayeeNotFound
		}
		r.logger.Error("Failed to get company", "name", name, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get company").WithDetails(err.Error())
	}

	return &company, nil
}

func (r *companyRepository) ListActive() ([]domain.Company, error) {
	query := `
		SELECT id, name, category, is_active, created_at
		FROM companies WHERE is_active = TRUE
		ORDER BY name
	`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list companies", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list companies").WithDetails(err.Error())
	}
	defer rows.Close()

	var companies []domain.Company
	for rows.Next() {
		var company domain.Company
		if err := rows.Scan(&company.ID, &company.Name, &company.Category, &company.IsActive, &company.CreatedAt); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan company").WithDetails(err.Error())
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list companies").WithDetails(err.Error())
	}

	return companies, nil
}
