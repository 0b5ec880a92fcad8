package service

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kncbank/internal/domain"
	"kncbank/internal/errors"
	"kncbank/internal/reference"
)

// fakeStore is an in-memory domain.Store. WithTransaction holds one
// mutex for the whole unit and restores a snapshot on error, which gives
// the same serialization and rollback behavior the Postgres store gets
// from row locks and transactions.
type fakeStore struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	records   []domain.Transaction
	companies map[string]domain.Company
	nextID    int64

	// failAppends makes the next N record appends fail with failErr,
	// to exercise rollback and retry paths.
	failAppends int
	failErr     *errors.AppError
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:  make(map[string]domain.Account),
		companies: make(map[string]domain.Company),
	}
}

func (f *fakeStore) addAccount(handle, balance string) {
	f.accounts[handle] = domain.Account{
		Handle:  handle,
		Balance: decimal.RequireFromString(balance),
	}
}

func (f *fakeStore) addCompany(name string, active bool) {
	f.companies[name] = domain.Company{Name: name, Category: "utility", IsActive: active}
}

func (f *fakeStore) balance(handle string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[handle].Balance
}

func (f *fakeStore) recordsFor(handle string) []domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transaction
	for _, r := range f.records {
		if r.AccountHandle == handle {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) Account() domain.AccountRepository         { return &fakeView{store: f} }
func (f *fakeStore) Transaction() domain.TransactionRepository { return &fakeView{store: f} }
func (f *fakeStore) Company() domain.CompanyRepository         { return &fakeView{store: f} }

func (f *fakeStore) WithTransaction(fn func(domain.Store) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := f.snapshot()
	if err := fn(&txStore{store: f}); err != nil {
		f.restore(snapshot)
		return err
	}
	return nil
}

type storeState struct {
	accounts map[string]domain.Account
	records  []domain.Transaction
	nextID   int64
}

func (f *fakeStore) snapshot() storeState {
	accounts := make(map[string]domain.Account, len(f.accounts))
	for k, v := range f.accounts {
		accounts[k] = v
	}
	records := make([]domain.Transaction, len(f.records))
	copy(records, f.records)
	return storeState{accounts: accounts, records: records, nextID: f.nextID}
}

func (f *fakeStore) restore(s storeState) {
	f.accounts = s.accounts
	f.records = s.records
	f.nextID = s.nextID
}

// txStore is the view handed to WithTransaction callbacks; its
// repositories operate on the already-locked store.
type txStore struct {
	store *fakeStore
}

func (t *txStore) Account() domain.AccountRepository         { return &fakeView{store: t.store, locked: true} }
func (t *txStore) Transaction() domain.TransactionRepository { return &fakeView{store: t.store, locked: true} }
func (t *txStore) Company() domain.CompanyRepository         { return &fakeView{store: t.store, locked: true} }
func (t *txStore) WithTransaction(fn func(domain.Store) error) error {
	return errors.ErrCannotBeginTransaction
}

// fakeView implements all three repository interfaces against the fake
// store, locking only when used outside a transaction.
type fakeView struct {
	store  *fakeStore
	locked bool
}

func (v *fakeView) lock() func() {
	if v.locked {
		return func() {}
	}
	v.store.mu.Lock()
	return v.store.mu.Unlock
}

func (v *fakeView) CreateAccount(account *domain.Account) error {
	defer v.lock()()
	if _, ok := v.store.accounts[account.Handle]; ok {
		return errors.ErrDuplicateAccount
	}
	v.store.accounts[account.Handle] = *account
	return nil
}

func (v *fakeView) GetAccount(handle string) (*domain.Account, error) {
	defer v.lock()()
	account, ok := v.store.accounts[handle]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return &account, nil
}

func (v *fakeView) GetAccountForUpdate(handle string) (*domain.Account, error) {
	return v.GetAccount(handle)
}

func (v *fakeView) UpdateAccountBalance(handle string, newBalance decimal.Decimal) error {
	defer v.lock()()
	account, ok := v.store.accounts[handle]
	if !ok {
		return errors.ErrAccountNotFound
	}
	account.Balance = newBalance
	v.store.accounts[handle] = account
	return nil
}

func (v *fakeView) UpdateProfile(handle, firstName, lastName, email string) error {
	defer v.lock()()
	account, ok := v.store.accounts[handle]
	if !ok {
		return errors.ErrAccountNotFound
	}
	account.FirstName, account.LastName, account.Email = firstName, lastName, email
	v.store.accounts[handle] = account
	return nil
}

func (v *fakeView) CreateTransaction(tx *domain.Transaction) error {
	defer v.lock()()
	if v.store.failAppends > 0 {
		v.store.failAppends--
		return v.store.failErr
	}
	for _, existing := range v.store.records {
		if existing.Reference == tx.Reference {
			return errors.ErrReferenceCollision
		}
		if tx.IdempotencyKey != nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *tx.IdempotencyKey {
			return errors.ErrDuplicateKey
		}
	}
	v.store.nextID++
	tx.ID = v.store.nextID
	tx.CreatedAt = time.Now()
	v.store.records = append(v.store.records, *tx)
	return nil
}

func (v *fakeView) GetByIdempotencyKey(key uuid.UUID) (*domain.Transaction, error) {
	defer v.lock()()
	for i := range v.store.records {
		r := v.store.records[i]
		if r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			return &r, nil
		}
	}
	return nil, nil
}

func (v *fakeView) ListForAccount(handle string, limit int) ([]domain.Transaction, error) {
	defer v.lock()()
	var out []domain.Transaction
	for _, r := range v.store.records {
		if r.AccountHandle == handle {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *fakeView) CreateCompany(company *domain.Company) error {
	defer v.lock()()
	if _, ok := v.store.companies[company.Name]; ok {
		return errors.ErrDuplicateCompany
	}
	v.store.companies[company.Name] = *company
	return nil
}

func (v *fakeView) GetCompany(name string) (*domain.Company, error) {
	defer v.lock()()
	company, ok := v.store.companies[name]
	if !ok {
		return nil, errors.ErrPayeeNotFound
	}
	return &company, nil
}

func (v *fakeView) ListActive() ([]domain.Company, error) {
	defer v.lock()()
	var out []domain.Company
	for _, c := range v.store.companies {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

var _ domain.Store = (*fakeStore)(nil)

func newTestLedger(store *fakeStore) *LedgerService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedgerService(store, reference.New(), decimal.NewFromInt(100), logger)
}

func strPtr(s string) *string { return &s }

func assertCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok, "expected *errors.AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func TestDeposit(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "0")
	ledger := newTestLedger(store)

	result, err := ledger.Deposit("alice", decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(150)))
	assert.NotEmpty(t, result.Reference)

	records := store.recordsFor("alice")
	require.Len(t, records, 1)
	assert.Equal(t, domain.TypeDeposit, records[0].Type)
	assert.True(t, records[0].Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, result.Reference, records[0].Reference)
}

func TestDepositBelowMinimum(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "0")
	ledger := newTestLedger(store)

	_, err := ledger.Deposit("alice", decimal.NewFromInt(50))
	assertCode(t, err, errors.BelowMinimum)

	assert.True(t, store.balance("alice").IsZero())
	assert.Empty(t, store.recordsFor("alice"))
}

func TestDepositInvalidAmount(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "0")
	ledger := newTestLedger(store)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-10)} {
		_, err := ledger.Deposit("alice", amount)
		assertCode(t, err, errors.InvalidAmount)
	}
	assert.Empty(t, store.recordsFor("alice"))
}

func TestDepositAccountNotFound(t *testing.T) {
	ledger := newTestLedger(newFakeStore())

	_, err := ledger.Deposit("ghost", decimal.NewFromInt(150))
	assertCode(t, err, errors.AccountNotFound)
}

func TestWithdraw(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "150")
	ledger := newTestLedger(store)

	result, err := ledger.Withdraw("alice", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(100)))

	records := store.recordsFor("alice")
	require.Len(t, records, 1)
	assert.Equal(t, domain.TypeWithdraw, records[0].Type)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "150")
	ledger := newTestLedger(store)

	_, err := ledger.Withdraw("alice", decimal.NewFromInt(200))
	assertCode(t, err, errors.InsufficientFunds)

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(150)))
	assert.Empty(t, store.recordsFor("alice"))
}

func TestTransfer(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "150")
	store.addAccount("bob", "0")
	ledger := newTestLedger(store)

	result, err := ledger.Transfer("alice", "bob", decimal.NewFromInt(100), strPtr("rent"), nil)
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(50)))

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(50)))
	assert.True(t, store.balance("bob").Equal(decimal.NewFromInt(100)))

	sent := store.recordsFor("alice")
	require.Len(t, sent, 1)
	assert.Equal(t, domain.TypeSend, sent[0].Type)
	require.NotNil(t, sent[0].Counterparty)
	assert.Equal(t, "bob", *sent[0].Counterparty)
	require.NotNil(t, sent[0].Note)
	assert.Equal(t, "rent", *sent[0].Note)
	assert.Equal(t, result.Reference, sent[0].Reference)

	received := store.recordsFor("bob")
	require.Len(t, received, 1)
	assert.Equal(t, domain.TypeReceive, received[0].Type)
	require.NotNil(t, received[0].Counterparty)
	assert.Equal(t, "alice", *received[0].Counterparty)
	assert.True(t, received[0].Amount.Equal(sent[0].Amount))
	assert.NotEqual(t, sent[0].Reference, received[0].Reference)
}

func TestTransferConservation(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "937.25")
	store.addAccount("bob", "62.75")
	ledger := newTestLedger(store)

	before := store.balance("alice").Add(store.balance("bob"))

	for i := 0; i < 20; i++ {
		_, err := ledger.Transfer("alice", "bob", decimal.RequireFromString("13.37"), nil, nil)
		require.NoError(t, err)
	}

	after := store.balance("alice").Add(store.balance("bob"))
	assert.True(t, before.Equal(after), "total funds changed: %s -> %s", before, after)
}

func TestTransferSelf(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "150")
	ledger := newTestLedger(store)

	_, err := ledger.Transfer("alice", "alice", decimal.NewFromInt(100), nil, nil)
	assertCode(t, err, errors.SelfTransfer)

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(150)))
	assert.Empty(t, store.recordsFor("alice"))
}

func TestTransferAmountValidatedBeforeExistence(t *testing.T) {
	ledger := newTestLedger(newFakeStore())

	// Both validations would fail; the structural one must win.
	_, err := ledger.Transfer("ghost", "phantom", decimal.NewFromInt(-5), nil, nil)
	assertCode(t, err, errors.InvalidAmount)
}

func TestTransferRecipientNotFoundRollsBack(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "150")
	ledger := newTestLedger(store)

	_, err := ledger.Transfer("alice", "ghost", decimal.NewFromInt(100), nil, nil)
	assertCode(t, err, errors.AccountNotFound)

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(150)))
	assert.Empty(t, store.recordsFor("alice"))
}

func TestTransferInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "50")
	store.addAccount("bob", "0")
	ledger := newTestLedger(store)

	_, err := ledger.Transfer("alice", "bob", decimal.NewFromInt(100), nil, nil)
	assertCode(t, err, errors.InsufficientFunds)

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(50)))
	assert.True(t, store.balance("bob").IsZero())
}

func TestTransferIdempotencyReplay(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "300")
	store.addAccount("bob", "0")
	ledger := newTestLedger(store)

	key := uuid.New()

	first, err := ledger.Transfer("alice", "bob", decimal.NewFromInt(100), nil, &key)
	require.NoError(t, err)

	second, err := ledger.Transfer("alice", "bob", decimal.NewFromInt(100), nil, &key)
	require.NoError(t, err)

	assert.Equal(t, first.Reference, second.Reference)
	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(200)), "funds must move only once")
	assert.True(t, store.balance("bob").Equal(decimal.NewFromInt(100)))
	assert.Len(t, store.recordsFor("alice"), 1)
}

func TestTransferRollbackOnRecordFailure(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "150")
	store.addAccount("bob", "0")
	// The record append fails after both balance mutations were
	// tentatively applied; everything must roll back.
	store.failAppends = 1
	store.failErr = errors.NewAppError(errors.InternalError, "storage write failed")
	ledger := newTestLedger(store)

	_, err := ledger.Transfer("alice", "bob", decimal.NewFromInt(100), nil, nil)
	assertCode(t, err, errors.InternalError)

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(150)))
	assert.True(t, store.balance("bob").IsZero())
	assert.Empty(t, store.recordsFor("alice"))
	assert.Empty(t, store.recordsFor("bob"))
}

func TestReferenceCollisionRetries(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "0")
	store.failAppends = 2
	store.failErr = errors.ErrReferenceCollision
	ledger := newTestLedger(store)

	result, err := ledger.Deposit("alice", decimal.NewFromInt(150))
	require.NoError(t, err, "two collisions must be absorbed by retry")
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(150)))
	assert.Len(t, store.recordsFor("alice"), 1)
}

func TestReferenceCollisionExhaustsRetries(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "0")
	store.failAppends = maxReferenceRetries
	store.failErr = errors.ErrReferenceCollision
	ledger := newTestLedger(store)

	_, err := ledger.Deposit("alice", decimal.NewFromInt(150))
	assertCode(t, err, errors.ReferenceCollision)

	assert.True(t, store.balance("alice").IsZero())
	assert.Empty(t, store.recordsFor("alice"))
}

func TestPayBill(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "500")
	store.addCompany("Meralco", true)
	ledger := newTestLedger(store)

	result, err := ledger.PayBill("alice", "Meralco", decimal.NewFromInt(200), strPtr("august bill"))
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(300)))

	records := store.recordsFor("alice")
	require.Len(t, records, 1)
	assert.Equal(t, domain.TypeBillPayment, records[0].Type)
	require.NotNil(t, records[0].Company)
	assert.Equal(t, "Meralco", *records[0].Company)
}

func TestPayBillPayeeNotFound(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "500")
	ledger := newTestLedger(store)

	_, err := ledger.PayBill("alice", "Nonexistent Utility", decimal.NewFromInt(200), nil)
	assertCode(t, err, errors.PayeeNotFound)

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(500)))
}

func TestPayBillInactiveCompany(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "500")
	store.addCompany("Defunct Corp", false)
	ledger := newTestLedger(store)

	_, err := ledger.PayBill("alice", "Defunct Corp", decimal.NewFromInt(200), nil)
	assertCode(t, err, errors.PayeeNotFound)
}

func TestPayBillInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "100")
	store.addCompany("Meralco", true)
	ledger := newTestLedger(store)

	_, err := ledger.PayBill("alice", "Meralco", decimal.NewFromInt(200), nil)
	assertCode(t, err, errors.InsufficientFunds)

	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(100)))
	assert.Empty(t, store.recordsFor("alice"))
}

func TestConcurrentWithdrawals(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "100")
	ledger := newTestLedger(store)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ledger.Withdraw("alice", decimal.NewFromInt(80))
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assertCode(t, err, errors.InsufficientFunds)
			failed++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one withdrawal must win")
	assert.Equal(t, 1, failed)
	assert.True(t, store.balance("alice").Equal(decimal.NewFromInt(20)))
	assert.False(t, store.balance("alice").IsNegative())
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "500")
	store.addAccount("bob", "500")
	ledger := newTestLedger(store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ledger.Transfer("alice", "bob", decimal.NewFromInt(10), nil, nil)
		}()
		go func() {
			defer wg.Done()
			ledger.Transfer("bob", "alice", decimal.NewFromInt(10), nil, nil)
		}()
	}
	wg.Wait()

	total := store.balance("alice").Add(store.balance("bob"))
	assert.True(t, total.Equal(decimal.NewFromInt(1000)), "total funds changed: %s", total)
}

func TestGetBalance(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "123.45")
	ledger := newTestLedger(store)

	balance, err := ledger.GetBalance("alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("123.45")))

	_, err = ledger.GetBalance("ghost")
	assertCode(t, err, errors.AccountNotFound)
}

func TestListTransactionsOrderAndLimit(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "0")
	ledger := newTestLedger(store)

	for i := 0; i < 5; i++ {
		_, err := ledger.Deposit("alice", decimal.NewFromInt(100))
		require.NoError(t, err)
	}

	list, err := ledger.ListTransactions("alice", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		notAfter := cur.CreatedAt.Before(prev.CreatedAt) ||
			(cur.CreatedAt.Equal(prev.CreatedAt) && cur.ID < prev.ID)
		assert.True(t, notAfter, "records must be newest first")
	}

	_, err = ledger.ListTransactions("ghost", 3)
	assertCode(t, err, errors.AccountNotFound)
}

func TestReferenceUniquenessAcrossOperations(t *testing.T) {
	store := newFakeStore()
	store.addAccount("alice", "0")
	store.addAccount("bob", "0")
	ledger := newTestLedger(store)

	for i := 0; i < 10; i++ {
		_, err := ledger.Deposit("alice", decimal.NewFromInt(100))
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := ledger.Transfer("alice", "bob", decimal.NewFromInt(10), nil, nil)
		require.NoError(t, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	seen := make(map[string]bool)
	for _, r := range store.records {
		assert.False(t, seen[r.Reference], "duplicate reference %s", r.Reference)
		seen[r.Reference] = true
	}
}
