package goal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/ledger"
)

var (
	// errors
	ErrNotFound         = errors.New("goal not found")
	ErrInactive         = errors.New("goal is no longer active")
	ErrExpired          = errors.New("goal is outside its time window")
	ErrAlreadyCompleted = errors.New("goal already completed")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// BeginTx opens a transaction AddCompletion accepts as its trailing
		// exec argument; completion and payout commit or roll back together.
		BeginTx(ctx context.Context) (core.DBTransactor, error)
		CreateGoal(ctx context.Context, g Goal) (Goal, error)
		GetGoalByID(ctx context.Context, id string) (Goal, error)
		// FilterAvailableGoals returns active goals whose time window contains
		// now, newest first, along with the total match count.
		FilterAvailableGoals(ctx context.Context, now time.Time, filter QueryFilter, page core.Pagination) ([]Goal, int, error)
		GoalsCompletedBy(ctx context.Context, accountID string) ([]Goal, error)
		UpdateGoal(ctx context.Context, g Goal, isActive *bool) (Goal, error)
		DeleteGoal(ctx context.Context, id string) error
		// AddCompletion records that the account completed the goal. The
		// membership is structurally unique; a second insert for the same
		// (goal, account) pair fails with ErrAlreadyCompleted.
		AddCompletion(ctx context.Context, goalID, accountID string, exec ...core.DBExecutor) error
		HasCompleted(ctx context.Context, goalID, accountID string) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, ng NewGoal) (Goal, error)
		Update(ctx context.Context, id string, ug UpdateGoal) (Goal, error)
		Delete(ctx context.Context, id string) error
		Get(ctx context.Context, id, forAccountID string) (WithStatus, error)
		ListAvailable(ctx context.Context, filter QueryFilter, forAccountID string, page core.Pagination) ([]WithStatus, int, error)
		ListCompletedBy(ctx context.Context, accountID string) ([]Goal, error)
		Complete(ctx context.Context, goalID, accountID string) (ledger.Transaction, error)
	}

	service struct {
		repo      Repository
		ledgerSvc ledger.Service
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, ledgerSvc ledger.Service, logger core.Logger) Service {
	return &service{
		repo:      repo,
		ledgerSvc: ledgerSvc,
		logger:    logger,
	}
}

func (svc *service) Create(ctx context.Context, ng NewGoal) (Goal, error) {
	now := time.Now().UTC()
	startsAt := ng.StartsAt.UTC()
	if ng.StartsAt.IsZero() {
		startsAt = now
	}
	g := Goal{
		Title:       ng.Title,
		Description: ng.Description,
		Kind:        ng.Kind,
		Requirement: ng.Requirement,
		Reward:      ng.Reward,
		IsActive:    true,
		StartsAt:    startsAt,
		EndsAt:      ng.EndsAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateGoal(ctx, g)
}

func (svc *service) Update(ctx context.Context, id string, ug UpdateGoal) (Goal, error) {
	g := Goal{
		ID:          id,
		Title:       ug.Title,
		Description: ug.Description,
		Kind:        ug.Kind,
		Requirement: ug.Requirement,
		Reward:      ug.Reward,
		EndsAt:      ug.EndsAt,
		UpdatedAt:   time.Now().UTC(),
	}
	return svc.repo.UpdateGoal(ctx, g, ug.IsActive)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetGoalByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteGoal(ctx, id)
}

func (svc *service) Get(ctx context.Context, id, forAccountID string) (WithStatus, error) {
	g, err := svc.repo.GetGoalByID(ctx, id)
	if err != nil {
		return WithStatus{}, err
	}
	completed, err := svc.repo.HasCompleted(ctx, id, forAccountID)
	if err != nil {
		return WithStatus{}, err
	}
	return WithStatus{Goal: g, Completed: completed}, nil
}

func (svc *service) ListAvailable(ctx context.Context, filter QueryFilter, forAccountID string, page core.Pagination) ([]WithStatus, int, error) {
	goals, total, err := svc.repo.FilterAvailableGoals(ctx, NowFunc().UTC(), filter, page)
	if err != nil {
		return nil, 0, err
	}
	withStatus := make([]WithStatus, 0, len(goals))
	for _, g := range goals {
		completed, err := svc.repo.HasCompleted(ctx, g.ID, forAccountID)
		if err != nil {
			return nil, 0, err
		}
		withStatus = append(withStatus, WithStatus{Goal: g, Completed: completed})
	}
	return withStatus, total, nil
}

func (svc *service) ListCompletedBy(ctx context.Context, accountID string) ([]Goal, error) {
	return svc.repo.GoalsCompletedBy(ctx, accountID)
}

// Complete marks the goal as completed by the account and pays out its
// reward, inside one transaction: a failed payout leaves no completion
// behind and the account can retry. Completion is idempotent per
// (goal, account): a second attempt is rejected, not silently ignored. The
// time window is re-checked here, so a goal that expired after being
// listed can no longer be completed.
func (svc *service) Complete(ctx context.Context, goalID, accountID string) (ledger.Transaction, error) {
	g, err := svc.repo.GetGoalByID(ctx, goalID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if !g.IsActive {
		return ledger.Transaction{}, core.NewValidationError(ErrInactive)
	}
	if !g.AvailableAt(NowFunc().UTC()) {
		return ledger.Transaction{}, core.NewValidationError(ErrExpired)
	}

	tx, err := svc.repo.BeginTx(ctx)
	if err != nil {
		return ledger.Transaction{}, errors.Wrap(err, "beginning completion")
	}
	defer svc.rollback(tx)

	if err = svc.repo.AddCompletion(ctx, goalID, accountID, tx); err != nil {
		if errors.Cause(err) == ErrAlreadyCompleted {
			return ledger.Transaction{}, core.NewValidationError(ErrAlreadyCompleted)
		}
		return ledger.Transaction{}, errors.Wrap(err, "recording completion")
	}
	txn, err := svc.ledgerSvc.GoalPayout(ctx, accountID, g.Reward, g.ID, g.Title, tx)
	if err != nil {
		return ledger.Transaction{}, errors.Wrap(err, "paying out goal reward")
	}
	if err = tx.Commit(); err != nil {
		return ledger.Transaction{}, errors.Wrap(err, "committing completion")
	}
	return txn, nil
}

func (svc *service) rollback(tx core.DBTransactor) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		svc.logger.Error(fmt.Sprintf("goal completion rollback failed: %v", err), err)
	}
}
