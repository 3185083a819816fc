package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/ledger"
	"github.com/campuscoin/campuscoin/core/user"
	dummydb "github.com/campuscoin/campuscoin/storage/database/dummy"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type testEnv struct {
	usrRepo user.Repository
	svc     ledger.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	return &testEnv{
		usrRepo: dummydb.NewUserRepository(db),
		svc:     ledger.NewService(dummydb.NewLedgerRepository(db), nopLogger{}),
	}
}

func (env *testEnv) createAccount(t *testing.T, name, studentID string, balance int) user.User {
	t.Helper()
	usr, err := env.usrRepo.CreateUser(context.Background(), user.User{
		Name:           name,
		StudentID:      studentID,
		Email:          studentID + "@test.test",
		Roles:          user.StudentRoles,
		ApprovalStatus: user.ApprovalApproved,
		Balance:        balance,
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *testEnv) balance(t *testing.T, id string) int {
	t.Helper()
	usr, err := env.usrRepo.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUserByID() failed: %v", err)
	}
	return usr.Balance
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	alice := env.createAccount(t, "Alice", "al001", 100)
	bob := env.createAccount(t, "Bob", "bo001", 20)

	t.Run("moves coins and records the transaction", func(t *testing.T) {
		txn, err := env.svc.Transfer(ctx, alice.ID, ledger.NewTransfer{
			DestinationStudentID: bob.StudentID,
			Amount:               30,
			Description:          "lunch money",
		})
		if err != nil {
			t.Fatalf("Transfer() failed: %v", err)
		}

		assert.Equal(t, 70, env.balance(t, alice.ID))
		assert.Equal(t, 50, env.balance(t, bob.ID))
		assert.Equal(t, ledger.KindSent, txn.Kind)
		assert.Equal(t, bob.ID, txn.Destination)
		assert.Equal(t, 30, txn.Amount)
		srcID, ok := txn.Source.AccountID()
		assert.True(t, ok)
		assert.Equal(t, alice.ID, srcID)
		assert.True(t, txn.Involves(alice.ID))
		assert.True(t, txn.Involves(bob.ID))

		got, err := env.svc.Get(ctx, txn.ID)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		assert.Equal(t, txn.Hash, got.Hash)
	})

	t.Run("insufficient balance leaves both accounts untouched", func(t *testing.T) {
		_, err := env.svc.Transfer(ctx, alice.ID, ledger.NewTransfer{
			DestinationStudentID: bob.StudentID,
			Amount:               1000,
		})
		assert.Equal(t, ledger.ErrInsufficientFunds, errors.Cause(err))
		assert.Equal(t, 70, env.balance(t, alice.ID))
		assert.Equal(t, 50, env.balance(t, bob.ID))
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		for _, amount := range []int{0, -50} {
			_, err := env.svc.Transfer(ctx, alice.ID, ledger.NewTransfer{
				DestinationStudentID: bob.StudentID,
				Amount:               amount,
			})
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Transfer(amount=%d) error = %v, want a validation error", amount, err)
			}
			assert.Equal(t, ledger.ErrInvalidAmount, vErr.Err)
		}
		// in particular a negative amount must not run the transfer in reverse
		assert.Equal(t, 70, env.balance(t, alice.ID))
		assert.Equal(t, 50, env.balance(t, bob.ID))
	})

	t.Run("self transfer is rejected", func(t *testing.T) {
		_, err := env.svc.Transfer(ctx, alice.ID, ledger.NewTransfer{
			DestinationStudentID: alice.StudentID,
			Amount:               10,
		})
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr))
		assert.Equal(t, 70, env.balance(t, alice.ID))
	})

	t.Run("unknown destination", func(t *testing.T) {
		_, err := env.svc.Transfer(ctx, alice.ID, ledger.NewTransfer{
			DestinationStudentID: "nobody",
			Amount:               10,
		})
		assert.Equal(t, ledger.ErrAccountNotFound, errors.Cause(err))
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := env.svc.Transfer(ctx, "missing-id", ledger.NewTransfer{
			DestinationStudentID: bob.StudentID,
			Amount:               10,
		})
		assert.Equal(t, ledger.ErrAccountNotFound, errors.Cause(err))
	})
}

// Two concurrent 60-coin transfers out of a 100-coin account: the conditional
// debit guarantees at most one can succeed and the source can never go
// negative.
func TestTransferConcurrentOverdraw(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	src := env.createAccount(t, "Source", "src001", 100)
	dst1 := env.createAccount(t, "Dest One", "dst001", 0)
	dst2 := env.createAccount(t, "Dest Two", "dst002", 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, dest := range []string{dst1.StudentID, dst2.StudentID} {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			_, errs[i] = env.svc.Transfer(ctx, src.ID, ledger.NewTransfer{
				DestinationStudentID: dest,
				Amount:               60,
			})
		}(i, dest)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, ledger.ErrInsufficientFunds, errors.Cause(err))
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one transfer must win")

	srcBal := env.balance(t, src.ID)
	assert.Equal(t, 40, srcBal)
	assert.GreaterOrEqual(t, srcBal, 0)
	assert.Equal(t, 60, env.balance(t, dst1.ID)+env.balance(t, dst2.ID))
}

func TestReward(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	prof := env.createAccount(t, "Prof", "prof01", 0)
	student := env.createAccount(t, "Student", "stu001", 10)

	txn, err := env.svc.Reward(ctx, prof.ID, ledger.NewReward{
		DestinationStudentID: student.StudentID,
		Amount:               25,
		Description:          "great presentation",
	})
	if err != nil {
		t.Fatalf("Reward() failed: %v", err)
	}

	// the granter's own balance is not debited
	assert.Equal(t, 0, env.balance(t, prof.ID))
	assert.Equal(t, 35, env.balance(t, student.ID))
	assert.Equal(t, ledger.KindReceived, txn.Kind)
	srcID, ok := txn.Source.AccountID()
	assert.True(t, ok)
	assert.Equal(t, prof.ID, srcID)

	// a grant of zero or fewer coins is rejected before any mutation
	_, err = env.svc.Reward(ctx, prof.ID, ledger.NewReward{
		DestinationStudentID: student.StudentID,
		Amount:               0,
	})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, ledger.ErrInvalidAmount, vErr.Err)
	assert.Equal(t, 35, env.balance(t, student.ID))
}

func TestGoalPayout(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	student := env.createAccount(t, "Student", "stu002", 0)

	txn, err := env.svc.GoalPayout(ctx, student.ID, 50, "goal-1", "Attend the fair")
	if err != nil {
		t.Fatalf("GoalPayout() failed: %v", err)
	}
	assert.Equal(t, 50, env.balance(t, student.ID))
	assert.True(t, txn.Source.IsSystem())
	assert.Equal(t, ledger.KindReceived, txn.Kind)

	// a second payout for the same (goal, account) pair is rejected and the
	// credit is rolled back
	_, err = env.svc.GoalPayout(ctx, student.ID, 50, "goal-1", "Attend the fair")
	assert.Equal(t, ledger.ErrDuplicateTransaction, errors.Cause(err))
	assert.Equal(t, 50, env.balance(t, student.ID))

	// a different goal pays out fine
	_, err = env.svc.GoalPayout(ctx, student.ID, 30, "goal-2", "Join a study group")
	assert.NoError(t, err)
	assert.Equal(t, 80, env.balance(t, student.ID))

	// a non-positive reward never reaches the balance
	_, err = env.svc.GoalPayout(ctx, student.ID, -5, "goal-3", "Broken goal")
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, ledger.ErrInvalidAmount, vErr.Err)
	assert.Equal(t, 80, env.balance(t, student.ID))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	alice := env.createAccount(t, "Alice", "al002", 100)
	bob := env.createAccount(t, "Bob", "bo002", 100)
	carol := env.createAccount(t, "Carol", "ca002", 100)

	mustTransfer := func(srcID, destStudentID string, amount int) {
		t.Helper()
		if _, err := env.svc.Transfer(ctx, srcID, ledger.NewTransfer{
			DestinationStudentID: destStudentID,
			Amount:               amount,
		}); err != nil {
			t.Fatalf("Transfer() failed: %v", err)
		}
	}
	mustTransfer(alice.ID, bob.StudentID, 10)
	mustTransfer(bob.ID, carol.StudentID, 20)
	mustTransfer(carol.ID, alice.StudentID, 30)

	txns, total, err := env.svc.History(ctx, alice.ID, core.Pagination{})
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	assert.Equal(t, 2, total)
	for _, txn := range txns {
		assert.True(t, txn.Involves(alice.ID))
	}

	// names are resolved on reads
	assert.NotEmpty(t, txns[0].DestinationName)

	all, total, err := env.svc.Filter(ctx, ledger.QueryFilter{}, core.Pagination{})
	if err != nil {
		t.Fatalf("Filter() failed: %v", err)
	}
	assert.Equal(t, 3, total)
	// newest first
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i-1].CreatedAt.Before(all[i].CreatedAt))
	}
}
