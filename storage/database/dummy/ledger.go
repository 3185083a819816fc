package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/ledger"
)

// ledgerRepository backs accounts with the user table so balances stay
// consistent with the user repository.
type ledgerRepository struct {
	users *userTable
	txns  *transactionTable
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) ledger.Repository {
	return &ledgerRepository{users: db.user, txns: db.transaction}
}

func (repo *ledgerRepository) BeginTx(ctx context.Context) (core.DBTransactor, error) {
	return newTx(ctx)
}

func (repo *ledgerRepository) GetAccountByID(ctx context.Context, id string) (ledger.Account, error) {
	repo.users.RLock()
	defer repo.users.RUnlock()

	if usr, ok := repo.users.table[id]; ok {
		return ledger.Account{ID: usr.ID, Name: usr.Name, StudentID: usr.StudentID, Balance: usr.Balance}, nil
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (repo *ledgerRepository) GetAccountByStudentID(ctx context.Context, studentID string) (ledger.Account, error) {
	repo.users.RLock()
	defer repo.users.RUnlock()

	for _, usr := range repo.users.table {
		if usr.StudentID == studentID {
			return ledger.Account{ID: usr.ID, Name: usr.Name, StudentID: usr.StudentID, Balance: usr.Balance}, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

// DebitBalance checks and decrements under a single write lock so concurrent
// debits can never overdraw an account.
func (repo *ledgerRepository) DebitBalance(ctx context.Context, accountID string, amount int, svcExec ...core.DBExecutor) error {
	repo.users.Lock()
	defer repo.users.Unlock()

	usr, ok := repo.users.table[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if usr.Balance < amount {
		return ledger.ErrInsufficientFunds
	}
	usr.Balance -= amount
	if tx := asTx(svcExec); tx != nil {
		tx.record(func() {
			repo.users.Lock()
			defer repo.users.Unlock()
			if usr, ok := repo.users.table[accountID]; ok {
				usr.Balance += amount
			}
		})
	}
	return nil
}

func (repo *ledgerRepository) CreditBalance(ctx context.Context, accountID string, amount int, svcExec ...core.DBExecutor) error {
	repo.users.Lock()
	defer repo.users.Unlock()

	usr, ok := repo.users.table[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	usr.Balance += amount
	if tx := asTx(svcExec); tx != nil {
		tx.record(func() {
			repo.users.Lock()
			defer repo.users.Unlock()
			if usr, ok := repo.users.table[accountID]; ok {
				usr.Balance -= amount
			}
		})
	}
	return nil
}

func (repo *ledgerRepository) CreateTransaction(ctx context.Context, txn ledger.Transaction, svcExec ...core.DBExecutor) (ledger.Transaction, error) {
	repo.txns.Lock()
	defer repo.txns.Unlock()

	if _, exists := repo.txns.hashes[txn.Hash]; exists {
		return ledger.Transaction{}, ledger.ErrDuplicateTransaction
	}

	txn.ID = uuid.New().String()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	repo.txns.table[txn.ID] = &txn
	repo.txns.hashes[txn.Hash] = struct{}{}
	if tx := asTx(svcExec); tx != nil {
		id, hash := txn.ID, txn.Hash
		tx.record(func() {
			repo.txns.Lock()
			defer repo.txns.Unlock()
			delete(repo.txns.table, id)
			delete(repo.txns.hashes, hash)
		})
	}
	return txn, nil
}

func (repo *ledgerRepository) withNames(txn ledger.Transaction) ledger.Transaction {
	repo.users.RLock()
	defer repo.users.RUnlock()

	if id, ok := txn.Source.AccountID(); ok {
		if usr, found := repo.users.table[id]; found {
			txn.SourceName = usr.Name
		}
	}
	if usr, found := repo.users.table[txn.Destination]; found {
		txn.DestinationName = usr.Name
	}
	return txn
}

func (repo *ledgerRepository) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	repo.txns.RLock()
	txn, ok := repo.txns.table[id]
	repo.txns.RUnlock()

	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return repo.withNames(*txn), nil
}

func matchesTxnFilter(txn ledger.Transaction, filter ledger.QueryFilter) bool {
	if filter.AccountID != "" && !txn.Involves(filter.AccountID) {
		return false
	}
	if filter.Kind != "" && txn.Kind != filter.Kind {
		return false
	}
	if filter.SourceID != "" {
		if id, ok := txn.Source.AccountID(); !ok || id != filter.SourceID {
			return false
		}
	}
	if filter.Destination != "" && txn.Destination != filter.Destination {
		return false
	}
	return true
}

func (repo *ledgerRepository) FilterTransactions(
	ctx context.Context,
	filter ledger.QueryFilter,
	page core.Pagination,
) ([]ledger.Transaction, int, error) {
	repo.txns.RLock()
	var matches []ledger.Transaction
	for _, txn := range repo.txns.table {
		if matchesTxnFilter(*txn, filter) {
			matches = append(matches, *txn)
		}
	}
	repo.txns.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	total := len(matches)
	page.Clean()
	start := page.Offset()
	if start >= total {
		return nil, total, nil
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	paged := make([]ledger.Transaction, 0, end-start)
	for _, txn := range matches[start:end] {
		paged = append(paged, repo.withNames(txn))
	}
	return paged, total, nil
}
