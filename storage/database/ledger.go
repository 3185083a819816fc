package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/ledger"
)

// pq error code for violating a unique constraint.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type ledgerRepository struct {
	db *sqlx.DB
}

var _ ledger.Repository = (*ledgerRepository)(nil)

func NewLedgerRepository(db *sqlx.DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

func (repo *ledgerRepository) BeginTx(ctx context.Context) (core.DBTransactor, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return tx, nil
}

func (repo *ledgerRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

func (repo *ledgerRepository) getAccount(ctx context.Context, where string, args ...interface{}) (ledger.Account, error) {
	var acc ledger.Account
	query := `SELECT id, name, student_id, balance FROM "user" WHERE ` + where
	err := repo.db.QueryRowxContext(ctx, query, args...).Scan(&acc.ID, &acc.Name, &acc.StudentID, &acc.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, ledger.ErrAccountNotFound
		}
		return ledger.Account{}, errors.Wrap(err, "retrieving account")
	}
	return acc, nil
}

func (repo *ledgerRepository) GetAccountByID(ctx context.Context, id string) (ledger.Account, error) {
	return repo.getAccount(ctx, `id = $1`, id)
}

func (repo *ledgerRepository) GetAccountByStudentID(ctx context.Context, studentID string) (ledger.Account, error) {
	return repo.getAccount(ctx, `student_id = $1`, studentID)
}

// DebitBalance decrements the balance only when the row still holds enough
// coins. The WHERE guard makes the check and the decrement one atomic
// statement; RowsAffected == 0 means either an insufficient balance or a
// missing account, disambiguated with a follow-up lookup.
func (repo *ledgerRepository) DebitBalance(ctx context.Context, accountID string, amount int, svcExec ...core.DBExecutor) error {
	query := `UPDATE "user" SET balance = balance - $1, updated_at = $2 WHERE id = $3 AND balance >= $1`
	res, err := repo.getExec(svcExec).ExecContext(ctx, query, amount, time.Now().UTC(), accountID)
	if err != nil {
		return errors.Wrap(err, "debiting balance")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "debiting balance")
	}
	if n == 0 {
		if _, err = repo.GetAccountByID(ctx, accountID); err != nil {
			return err
		}
		return ledger.ErrInsufficientFunds
	}
	return nil
}

func (repo *ledgerRepository) CreditBalance(ctx context.Context, accountID string, amount int, svcExec ...core.DBExecutor) error {
	query := `UPDATE "user" SET balance = balance + $1, updated_at = $2 WHERE id = $3`
	res, err := repo.getExec(svcExec).ExecContext(ctx, query, amount, time.Now().UTC(), accountID)
	if err != nil {
		return errors.Wrap(err, "crediting balance")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "crediting balance")
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

type dbTransaction struct {
	ID              string      `db:"id"`
	Kind            string      `db:"kind"`
	Source          null.String `db:"source"`
	Destination     string      `db:"destination"`
	Amount          int         `db:"amount"`
	Description     string      `db:"description"`
	Hash            string      `db:"hash"`
	CreatedAt       time.Time   `db:"created_at"`
	SourceName      null.String `db:"source_name"`
	DestinationName null.String `db:"destination_name"`
}

func (dt dbTransaction) transaction() ledger.Transaction {
	source := ledger.SystemSender()
	if dt.Source.Valid {
		source = ledger.AccountSender(dt.Source.String)
	}
	return ledger.Transaction{
		ID:              dt.ID,
		Kind:            dt.Kind,
		Source:          source,
		Destination:     dt.Destination,
		Amount:          dt.Amount,
		Description:     dt.Description,
		Hash:            dt.Hash,
		CreatedAt:       dt.CreatedAt,
		SourceName:      dt.SourceName.String,
		DestinationName: dt.DestinationName.String,
	}
}

func (repo *ledgerRepository) CreateTransaction(ctx context.Context, txn ledger.Transaction, svcExec ...core.DBExecutor) (ledger.Transaction, error) {
	txn.ID = uuid.New().String()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	var source null.String
	if id, ok := txn.Source.AccountID(); ok {
		source = null.StringFrom(id)
	}

	query := `
INSERT INTO transaction (id, kind, source, destination, amount, description, hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(svcExec).ExecContext(
		ctx, query, txn.ID, txn.Kind, source, txn.Destination, txn.Amount, txn.Description, txn.Hash, txn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Transaction{}, ledger.ErrDuplicateTransaction
		}
		return ledger.Transaction{}, errors.Wrap(err, "creating transaction")
	}
	return txn, nil
}

const transactionSelect = `
SELECT t.id, t.kind, t.source, t.destination, t.amount, t.description, t.hash, t.created_at,
       src.name AS source_name, dst.name AS destination_name
FROM transaction AS t
LEFT JOIN "user" AS src ON src.id = t.source
JOIN "user" AS dst ON dst.id = t.destination`

func (repo *ledgerRepository) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	var dt dbTransaction
	if err := repo.db.GetContext(ctx, &dt, transactionSelect+` WHERE t.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Transaction{}, ledger.ErrTransactionNotFound
		}
		return ledger.Transaction{}, errors.Wrap(err, "retrieving transaction")
	}
	return dt.transaction(), nil
}

func (repo *ledgerRepository) FilterTransactions(
	ctx context.Context,
	filter ledger.QueryFilter,
	page core.Pagination,
) ([]ledger.Transaction, int, error) {
	var where []string
	var args []interface{}

	if filter.AccountID != "" {
		where = append(where, `(t.source = ? OR t.destination = ?)`)
		args = append(args, filter.AccountID, filter.AccountID)
	}
	if filter.Kind != "" {
		where = append(where, `t.kind = ?`)
		args = append(args, filter.Kind)
	}
	if filter.SourceID != "" {
		where = append(where, `t.source = ?`)
		args = append(args, filter.SourceID)
	}
	if filter.Destination != "" {
		where = append(where, `t.destination = ?`)
		args = append(args, filter.Destination)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	countQuery := repo.db.Rebind(`SELECT COUNT(*) FROM transaction AS t` + whereClause)
	if err := repo.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting transactions")
	}

	page.Clean()
	query := repo.db.Rebind(fmt.Sprintf(
		`%s%s ORDER BY t.created_at DESC LIMIT %d OFFSET %d`, transactionSelect, whereClause, page.Limit, page.Offset(),
	))

	var dts []dbTransaction
	if err := repo.db.SelectContext(ctx, &dts, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "filtering transactions")
	}

	txns := make([]ledger.Transaction, 0, len(dts))
	for _, dt := range dts {
		txns = append(txns, dt.transaction())
	}
	return txns, total, nil
}
