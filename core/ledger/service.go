package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core"
)

var (
	// errors
	ErrAccountNotFound      = errors.New("account not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrSelfTransfer         = errors.New("cannot transfer to yourself")
	ErrInvalidAmount        = errors.New("amount must be a positive number of coins")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

type (
	Repository interface {
		// BeginTx opens a transaction the mutating methods below accept as
		// their trailing exec argument.
		BeginTx(ctx context.Context) (core.DBTransactor, error)
		GetAccountByID(ctx context.Context, id string) (Account, error)
		GetAccountByStudentID(ctx context.Context, studentID string) (Account, error)
		// DebitBalance decrements the account balance, failing with
		// ErrInsufficientFunds unless balance >= amount. The check and the
		// decrement are a single atomic conditional update; two concurrent
		// debits can never overdraw an account.
		DebitBalance(ctx context.Context, accountID string, amount int, exec ...core.DBExecutor) error
		CreditBalance(ctx context.Context, accountID string, amount int, exec ...core.DBExecutor) error
		// CreateTransaction appends a record; the hash column is unique and a
		// conflict yields ErrDuplicateTransaction.
		CreateTransaction(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error)
		GetTransaction(ctx context.Context, id string) (Transaction, error)
		// FilterTransactions returns matching records newest first along with
		// the total match count.
		FilterTransactions(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Transaction, int, error)
	}

	Service interface {
		Transfer(ctx context.Context, sourceID string, nt NewTransfer) (Transaction, error)
		Reward(ctx context.Context, granterID string, nr NewReward) (Transaction, error)
		// GoalPayout credits a goal reward. Pass exec to run it inside a
		// transaction the caller owns; without one it opens its own.
		GoalPayout(ctx context.Context, accountID string, amount int, goalID, goalTitle string, exec ...core.DBExecutor) (Transaction, error)
		Get(ctx context.Context, id string) (Transaction, error)
		History(ctx context.Context, accountID string, page core.Pagination) ([]Transaction, int, error)
		Filter(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Transaction, int, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger,
	}
}

// Transfer moves coins from the source account to the account identified by
// the destination student ID. The debit is an atomic conditional decrement;
// debit, credit and record append all run inside one transaction, so no
// partial effect survives a failure.
func (svc *service) Transfer(ctx context.Context, sourceID string, nt NewTransfer) (Transaction, error) {
	if nt.Amount <= 0 {
		return Transaction{}, core.NewValidationError(ErrInvalidAmount)
	}
	source, err := svc.repo.GetAccountByID(ctx, sourceID)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "finding source account")
	}
	dest, err := svc.repo.GetAccountByStudentID(ctx, nt.DestinationStudentID)
	if err != nil {
		return Transaction{}, err
	}
	if dest.ID == source.ID {
		return Transaction{}, core.NewValidationError(ErrSelfTransfer)
	}

	tx, err := svc.repo.BeginTx(ctx)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "beginning transfer")
	}
	defer svc.rollback(tx)

	if err = svc.repo.DebitBalance(ctx, source.ID, nt.Amount, tx); err != nil {
		return Transaction{}, err
	}
	if err = svc.repo.CreditBalance(ctx, dest.ID, nt.Amount, tx); err != nil {
		return Transaction{}, errors.Wrap(err, "crediting destination")
	}
	txn, err := svc.append(ctx, Transaction{
		Kind:        KindSent,
		Source:      AccountSender(source.ID),
		Destination: dest.ID,
		Amount:      nt.Amount,
		Description: nt.Description,
		Hash:        newHash("tx"),
	}, tx)
	if err != nil {
		return Transaction{}, err
	}
	if err = tx.Commit(); err != nil {
		return Transaction{}, errors.Wrap(err, "committing transfer")
	}
	return txn, nil
}

// Reward credits coins to the destination account. The granter is recorded
// as the source for audit but their balance is untouched.
func (svc *service) Reward(ctx context.Context, granterID string, nr NewReward) (Transaction, error) {
	if nr.Amount <= 0 {
		return Transaction{}, core.NewValidationError(ErrInvalidAmount)
	}
	dest, err := svc.repo.GetAccountByStudentID(ctx, nr.DestinationStudentID)
	if err != nil {
		return Transaction{}, err
	}

	tx, err := svc.repo.BeginTx(ctx)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "beginning reward")
	}
	defer svc.rollback(tx)

	if err = svc.repo.CreditBalance(ctx, dest.ID, nr.Amount, tx); err != nil {
		return Transaction{}, errors.Wrap(err, "crediting destination")
	}
	txn, err := svc.append(ctx, Transaction{
		Kind:        KindReceived,
		Source:      AccountSender(granterID),
		Destination: dest.ID,
		Amount:      nr.Amount,
		Description: nr.Description,
		Hash:        newHash("reward"),
	}, tx)
	if err != nil {
		return Transaction{}, err
	}
	if err = tx.Commit(); err != nil {
		return Transaction{}, errors.Wrap(err, "committing reward")
	}
	return txn, nil
}

// GoalPayout credits a goal's reward to an account on behalf of the system.
// The hash is deterministic per (goal, account) so a duplicate payout is
// rejected by the unique hash constraint.
func (svc *service) GoalPayout(ctx context.Context, accountID string, amount int, goalID, goalTitle string, exec ...core.DBExecutor) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, core.NewValidationError(ErrInvalidAmount)
	}
	if len(exec) > 0 {
		return svc.payout(ctx, accountID, amount, goalID, goalTitle, exec[0])
	}

	tx, err := svc.repo.BeginTx(ctx)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "beginning payout")
	}
	defer svc.rollback(tx)

	txn, err := svc.payout(ctx, accountID, amount, goalID, goalTitle, tx)
	if err != nil {
		return Transaction{}, err
	}
	if err = tx.Commit(); err != nil {
		return Transaction{}, errors.Wrap(err, "committing payout")
	}
	return txn, nil
}

func (svc *service) payout(ctx context.Context, accountID string, amount int, goalID, goalTitle string, exec core.DBExecutor) (Transaction, error) {
	if err := svc.repo.CreditBalance(ctx, accountID, amount, exec); err != nil {
		return Transaction{}, errors.Wrap(err, "crediting account")
	}
	return svc.append(ctx, Transaction{
		Kind:        KindReceived,
		Source:      SystemSender(),
		Destination: accountID,
		Amount:      amount,
		Description: fmt.Sprintf("Reward for completing goal: %s", goalTitle),
		Hash:        goalHash(goalID, accountID),
	}, exec)
}

func (svc *service) append(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error) {
	txn.CreatedAt = time.Now().UTC()
	created, err := svc.repo.CreateTransaction(ctx, txn, exec...)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "appending transaction record")
	}
	return created, nil
}

// rollback discards an uncommitted transaction; deferred on every path, it
// is a no-op after Commit. A rollback that itself fails leaves the ledger
// drifted and is logged loudly for manual inspection.
func (svc *service) rollback(tx core.DBTransactor) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		svc.logger.Error(fmt.Sprintf("ledger rollback failed: %v", err), err)
	}
}

func (svc *service) Get(ctx context.Context, id string) (Transaction, error) {
	return svc.repo.GetTransaction(ctx, id)
}

func (svc *service) History(ctx context.Context, accountID string, page core.Pagination) ([]Transaction, int, error) {
	return svc.repo.FilterTransactions(ctx, QueryFilter{AccountID: accountID}, page)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Transaction, int, error) {
	return svc.repo.FilterTransactions(ctx, filter, page)
}
