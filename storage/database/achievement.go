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

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/achievement"
)

type achievementRepository struct {
	db *sqlx.DB
}

var _ achievement.Repository = (*achievementRepository)(nil)

func NewAchievementRepository(db *sqlx.DB) achievement.Repository {
	return &achievementRepository{db: db}
}

type dbAchievement struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	Kind         string    `db:"kind"`
	Category     string    `db:"category"`
	Icon         string    `db:"icon"`
	Requirements string    `db:"requirements"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (da dbAchievement) achievement() achievement.Achievement {
	return achievement.Achievement(da)
}

func (repo *achievementRepository) CreateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	a.ID = uuid.New().String()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `
INSERT INTO achievement (id, name, description, kind, category, icon, requirements, created_at, updated_at)
VALUES (:id, :name, :description, :kind, :category, :icon, :requirements, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, dbAchievement(a)); err != nil {
		return achievement.Achievement{}, errors.Wrap(err, "creating achievement")
	}
	return a, nil
}

func (repo *achievementRepository) GetAchievementByID(ctx context.Context, id string) (achievement.Achievement, error) {
	var da dbAchievement
	if err := repo.db.GetContext(ctx, &da, `SELECT * FROM achievement WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return achievement.Achievement{}, achievement.ErrNotFound
		}
		return achievement.Achievement{}, errors.Wrap(err, "retrieving achievement")
	}
	return da.achievement(), nil
}

func (repo *achievementRepository) FilterAchievements(
	ctx context.Context,
	filter achievement.QueryFilter,
	page core.Pagination,
) ([]achievement.Achievement, int, error) {
	var where []string
	var args []interface{}

	if filter.Kind != "" {
		where = append(where, `kind = ?`)
		args = append(args, filter.Kind)
	}
	if filter.Category != "" {
		where = append(where, `category = ?`)
		args = append(args, filter.Category)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	countQuery := repo.db.Rebind(`SELECT COUNT(*) FROM achievement` + whereClause)
	if err := repo.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting achievements")
	}

	page.Clean()
	query := repo.db.Rebind(fmt.Sprintf(
		`SELECT * FROM achievement%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, whereClause, page.Limit, page.Offset(),
	))

	var das []dbAchievement
	if err := repo.db.SelectContext(ctx, &das, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "filtering achievements")
	}

	achs := make([]achievement.Achievement, 0, len(das))
	for _, da := range das {
		achs = append(achs, da.achievement())
	}
	return achs, total, nil
}

func (repo *achievementRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	query := `SELECT DISTINCT category FROM achievement WHERE category <> '' ORDER BY category`
	if err := repo.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, errors.Wrap(err, "retrieving categories")
	}
	return categories, nil
}

// UpdateAchievement applies a's non-zero fields to the stored row.
func (repo *achievementRepository) UpdateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	set := []string{`updated_at = ?`}
	args := []interface{}{time.Now().UTC()}

	add := func(clause string, arg interface{}) {
		set = append(set, clause)
		args = append(args, arg)
	}
	if a.Name != "" {
		add(`name = ?`, a.Name)
	}
	if a.Description != "" {
		add(`description = ?`, a.Description)
	}
	if a.Kind != "" {
		add(`kind = ?`, a.Kind)
	}
	if a.Category != "" {
		add(`category = ?`, a.Category)
	}
	if a.Icon != "" {
		add(`icon = ?`, a.Icon)
	}
	if a.Requirements != "" {
		add(`requirements = ?`, a.Requirements)
	}
	args = append(args, a.ID)

	query := repo.db.Rebind(`UPDATE achievement SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING *`)
	var da dbAchievement
	if err := repo.db.GetContext(ctx, &da, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return achievement.Achievement{}, achievement.ErrNotFound
		}
		return achievement.Achievement{}, errors.Wrap(err, "updating achievement")
	}
	return da.achievement(), nil
}

func (repo *achievementRepository) DeleteAchievement(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM achievement WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting achievement")
	}
	return nil
}
