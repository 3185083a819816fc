package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/goal"
)

type goalRepository struct {
	db *goalTable
}

var _ goal.Repository = (*goalRepository)(nil) // interface compliance check

func NewGoalRepository(db *DB) goal.Repository {
	return &goalRepository{db: db.goal}
}

func (repo *goalRepository) BeginTx(ctx context.Context) (core.DBTransactor, error) {
	return newTx(ctx)
}

func (repo *goalRepository) withCompletions(g goal.Goal) goal.Goal {
	g.Completions = len(repo.db.completions[g.ID])
	return g
}

func (repo *goalRepository) CreateGoal(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	g.ID = uuid.New().String()
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	repo.db.table[g.ID] = &g
	return g, nil
}

func (repo *goalRepository) GetGoalByID(ctx context.Context, id string) (goal.Goal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if g, ok := repo.db.table[id]; ok {
		return repo.withCompletions(*g), nil
	}
	return goal.Goal{}, goal.ErrNotFound
}

func (repo *goalRepository) FilterAvailableGoals(
	ctx context.Context,
	now time.Time,
	filter goal.QueryFilter,
	page core.Pagination,
) ([]goal.Goal, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var matches []goal.Goal
	for _, g := range repo.db.table {
		if !g.AvailableAt(now) {
			continue
		}
		if filter.Kind != "" && g.Kind != filter.Kind {
			continue
		}
		matches = append(matches, repo.withCompletions(*g))
	}
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
	return matches[start:end], total, nil
}

func (repo *goalRepository) GoalsCompletedBy(ctx context.Context, accountID string) ([]goal.Goal, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	type completed struct {
		g  goal.Goal
		at time.Time
	}
	var matches []completed
	for id, accounts := range repo.db.completions {
		at, ok := accounts[accountID]
		if !ok {
			continue
		}
		if g, found := repo.db.table[id]; found {
			matches = append(matches, completed{g: repo.withCompletions(*g), at: at})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].at.After(matches[j].at) })

	goals := make([]goal.Goal, 0, len(matches))
	for _, m := range matches {
		goals = append(goals, m.g)
	}
	return goals, nil
}

func (repo *goalRepository) UpdateGoal(ctx context.Context, g goal.Goal, isActive *bool) (goal.Goal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[g.ID]
	if !ok {
		return goal.Goal{}, goal.ErrNotFound
	}

	if g.Title != "" {
		orig.Title = g.Title
	}
	if g.Description != "" {
		orig.Description = g.Description
	}
	if g.Kind != "" {
		orig.Kind = g.Kind
	}
	if g.Requirement > 0 {
		orig.Requirement = g.Requirement
	}
	if g.Reward > 0 {
		orig.Reward = g.Reward
	}
	if !g.StartsAt.IsZero() {
		orig.StartsAt = g.StartsAt
	}
	if g.EndsAt != nil {
		orig.EndsAt = g.EndsAt
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = time.Now().UTC()
	return repo.withCompletions(*orig), nil
}

func (repo *goalRepository) DeleteGoal(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.table, id)
	delete(repo.db.completions, id)
	return nil
}

func (repo *goalRepository) AddCompletion(ctx context.Context, goalID, accountID string, svcExec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	accounts, ok := repo.db.completions[goalID]
	if !ok {
		accounts = make(map[string]time.Time)
		repo.db.completions[goalID] = accounts
	}
	if _, exists := accounts[accountID]; exists {
		return goal.ErrAlreadyCompleted
	}
	accounts[accountID] = time.Now().UTC()
	if tx := asTx(svcExec); tx != nil {
		tx.record(func() {
			repo.db.Lock()
			defer repo.db.Unlock()
			delete(repo.db.completions[goalID], accountID)
		})
	}
	return nil
}

func (repo *goalRepository) HasCompleted(ctx context.Context, goalID, accountID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.completions[goalID][accountID]
	return ok, nil
}
