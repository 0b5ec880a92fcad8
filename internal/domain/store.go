package domain

// Store groups the repositories behind a single unit of work. Code that
// needs debit, credit and record appends to land together runs them
// inside one WithTransaction call; any error rolls the whole unit back.
type Store interface {
	Account() AccountRepository
	Transaction() TransactionRepository
	Company() CompanyRepository
	WithTransaction(fn func(Store) error) error
}
