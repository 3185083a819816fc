package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/goal"
)

type goalRepository struct {
	db *sqlx.DB
}

var _ goal.Repository = (*goalRepository)(nil)

func NewGoalRepository(db *sqlx.DB) goal.Repository {
	return &goalRepository{db: db}
}

func (repo *goalRepository) BeginTx(ctx context.Context) (core.DBTransactor, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return tx, nil
}

type dbGoal struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Kind        string    `db:"kind"`
	Requirement int       `db:"requirement"`
	Reward      int       `db:"reward"`
	IsActive    bool      `db:"is_active"`
	StartsAt    time.Time `db:"starts_at"`
	EndsAt      null.Time `db:"ends_at"`
	Completions int       `db:"completions"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (dg dbGoal) goal() goal.Goal {
	g := goal.Goal{
		ID:          dg.ID,
		Title:       dg.Title,
		Description: dg.Description,
		Kind:        dg.Kind,
		Requirement: dg.Requirement,
		Reward:      dg.Reward,
		IsActive:    dg.IsActive,
		StartsAt:    dg.StartsAt,
		Completions: dg.Completions,
		CreatedAt:   dg.CreatedAt,
		UpdatedAt:   dg.UpdatedAt,
	}
	if dg.EndsAt.Valid {
		endsAt := dg.EndsAt.Time
		g.EndsAt = &endsAt
	}
	return g
}

const goalSelect = `
SELECT g.*, (SELECT COUNT(*) FROM goal_completion AS gc WHERE gc.goal_id = g.id) AS completions
FROM goal AS g`

func (repo *goalRepository) CreateGoal(ctx context.Context, g goal.Goal) (goal.Goal, error) {
	g.ID = uuid.New().String()
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	var endsAt null.Time
	if g.EndsAt != nil {
		endsAt = null.TimeFrom(*g.EndsAt)
	}

	query := `
INSERT INTO goal (id, title, description, kind, requirement, reward, is_active, starts_at, ends_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.db.ExecContext(
		ctx, query, g.ID, g.Title, g.Description, g.Kind, g.Requirement, g.Reward, g.IsActive,
		g.StartsAt, endsAt, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return goal.Goal{}, errors.Wrap(err, "creating goal")
	}
	return g, nil
}

func (repo *goalRepository) GetGoalByID(ctx context.Context, id string) (goal.Goal, error) {
	var dg dbGoal
	if err := repo.db.GetContext(ctx, &dg, goalSelect+` WHERE g.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goal.Goal{}, goal.ErrNotFound
		}
		return goal.Goal{}, errors.Wrap(err, "retrieving goal")
	}
	return dg.goal(), nil
}

func (repo *goalRepository) FilterAvailableGoals(
	ctx context.Context,
	now time.Time,
	filter goal.QueryFilter,
	page core.Pagination,
) ([]goal.Goal, int, error) {
	where := []string{`g.is_active`, `g.starts_at <= ?`, `(g.ends_at IS NULL OR g.ends_at >= ?)`}
	args := []interface{}{now, now}

	if filter.Kind != "" {
		where = append(where, `g.kind = ?`)
		args = append(args, filter.Kind)
	}
	whereClause := ` WHERE ` + strings.Join(where, " AND ")

	var total int
	countQuery := repo.db.Rebind(`SELECT COUNT(*) FROM goal AS g` + whereClause)
	if err := repo.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting goals")
	}

	page.Clean()
	query := repo.db.Rebind(fmt.Sprintf(
		`%s%s ORDER BY g.created_at DESC LIMIT %d OFFSET %d`, goalSelect, whereClause, page.Limit, page.Offset(),
	))

	var dgs []dbGoal
	if err := repo.db.SelectContext(ctx, &dgs, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "filtering goals")
	}

	goals := make([]goal.Goal, 0, len(dgs))
	for _, dg := range dgs {
		goals = append(goals, dg.goal())
	}
	return goals, total, nil
}

func (repo *goalRepository) GoalsCompletedBy(ctx context.Context, accountID string) ([]goal.Goal, error) {
	query := goalSelect + `
JOIN goal_completion AS gc ON gc.goal_id = g.id
WHERE gc.user_id = $1
ORDER BY gc.completed_at DESC`

	var dgs []dbGoal
	if err := repo.db.SelectContext(ctx, &dgs, query, accountID); err != nil {
		return nil, errors.Wrap(err, "retrieving completed goals")
	}

	goals := make([]goal.Goal, 0, len(dgs))
	for _, dg := range dgs {
		goals = append(goals, dg.goal())
	}
	return goals, nil
}

// UpdateGoal applies g's non-zero fields to the stored row; IsActive is only
// touched when isActive is non-nil.
func (repo *goalRepository) UpdateGoal(ctx context.Context, g goal.Goal, isActive *bool) (goal.Goal, error) {
	set := []string{`updated_at = ?`}
	args := []interface{}{time.Now().UTC()}

	add := func(clause string, arg interface{}) {
		set = append(set, clause)
		args = append(args, arg)
	}
	if g.Title != "" {
		add(`title = ?`, g.Title)
	}
	if g.Description != "" {
		add(`description = ?`, g.Description)
	}
	if g.Kind != "" {
		add(`kind = ?`, g.Kind)
	}
	if g.Requirement > 0 {
		add(`requirement = ?`, g.Requirement)
	}
	if g.Reward > 0 {
		add(`reward = ?`, g.Reward)
	}
	if !g.StartsAt.IsZero() {
		add(`starts_at = ?`, g.StartsAt)
	}
	if g.EndsAt != nil {
		add(`ends_at = ?`, *g.EndsAt)
	}
	if isActive != nil {
		add(`is_active = ?`, *isActive)
	}
	args = append(args, g.ID)

	query := repo.db.Rebind(`UPDATE goal SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING id`)
	var id string
	if err := repo.db.GetContext(ctx, &id, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goal.Goal{}, goal.ErrNotFound
		}
		return goal.Goal{}, errors.Wrap(err, "updating goal")
	}
	return repo.GetGoalByID(ctx, id)
}

func (repo *goalRepository) DeleteGoal(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM goal WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting goal")
	}
	return nil
}

// AddCompletion inserts the (goal, account) membership row. The composite
// primary key makes a repeat insert fail with ErrAlreadyCompleted no matter
// how the calls interleave.
func (repo *goalRepository) AddCompletion(ctx context.Context, goalID, accountID string, svcExec ...core.DBExecutor) error {
	var exec core.DBExecutor = repo.db
	if len(svcExec) > 0 {
		exec = svcExec[0]
	}
	query := `INSERT INTO goal_completion (goal_id, user_id, completed_at) VALUES ($1, $2, $3)`
	if _, err := exec.ExecContext(ctx, query, goalID, accountID, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return goal.ErrAlreadyCompleted
		}
		return errors.Wrap(err, "recording completion")
	}
	return nil
}

func (repo *goalRepository) HasCompleted(ctx context.Context, goalID, accountID string) (bool, error) {
	var completed bool
	query := `SELECT EXISTS (SELECT 1 FROM goal_completion WHERE goal_id = $1 AND user_id = $2)`
	if err := repo.db.GetContext(ctx, &completed, query, goalID, accountID); err != nil {
		return false, errors.Wrap(err, "checking completion")
	}
	return completed, nil
}
