// Package dummydb provides in-memory repositories for tests.
package dummydb

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/achievement"
	"github.com/campuscoin/campuscoin/core/goal"
	"github.com/campuscoin/campuscoin/core/ledger"
	"github.com/campuscoin/campuscoin/core/user"
)

type (
	DB struct {
		user        *userTable
		transaction *transactionTable
		goal        *goalTable
		achievement *achievementTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	transactionTable struct {
		sync.RWMutex
		table  map[string]*ledger.Transaction
		hashes map[string]struct{}
	}

	goalTable struct {
		sync.RWMutex
		table map[string]*goal.Goal
		// completions maps goal id to the set of account ids that completed
		// it, with completion times.
		completions map[string]map[string]time.Time
	}

	achievementTable struct {
		sync.RWMutex
		table map[string]*achievement.Achievement
	}
)

// dbTx satisfies core.DBTransactor for the in-memory repositories.
// Mutations apply immediately and register their exact inverse here;
// Rollback replays the inverses newest first, Commit discards them. The
// SQL statement methods exist only for the interface and are never used.
type dbTx struct {
	mu   sync.Mutex
	undo []func()
	done bool
}

var errNoSQL = errors.New("dummydb: transactions do not accept SQL statements")

func newTx(ctx context.Context) (core.DBTransactor, error) {
	return &dbTx{}, nil
}

// record registers the inverse of a mutation just applied through tx.
func (tx *dbTx) record(undo func()) {
	tx.mu.Lock()
	tx.undo = append(tx.undo, undo)
	tx.mu.Unlock()
}

func (tx *dbTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.undo = nil
	return nil
}

func (tx *dbTx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	return nil
}

func (tx *dbTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (tx *dbTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (tx *dbTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

// asTx extracts the in-memory transaction from a repository method's
// trailing exec argument, if one was passed.
func asTx(svcExec []core.DBExecutor) *dbTx {
	if len(svcExec) > 0 {
		if tx, ok := svcExec[0].(*dbTx); ok {
			return tx
		}
	}
	return nil
}

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		transaction: &transactionTable{
			table:  make(map[string]*ledger.Transaction),
			hashes: make(map[string]struct{}),
		},
		goal: &goalTable{
			table:       make(map[string]*goal.Goal),
			completions: make(map[string]map[string]time.Time),
		},
		achievement: &achievementTable{table: make(map[string]*achievement.Achievement)},
	}
	return db, nil
}
