package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/campuscoin/campuscoin/core"
	"github.com/campuscoin/campuscoin/core/achievement"
)

type achievementRepository struct {
	db *achievementTable
}

var _ achievement.Repository = (*achievementRepository)(nil) // interface compliance check

func NewAchievementRepository(db *DB) achievement.Repository {
	return &achievementRepository{db: db.achievement}
}

func (repo *achievementRepository) CreateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a.ID = uuid.New().String()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	repo.db.table[a.ID] = &a
	return a, nil
}

func (repo *achievementRepository) GetAchievementByID(ctx context.Context, id string) (achievement.Achievement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.table[id]; ok {
		return *a, nil
	}
	return achievement.Achievement{}, achievement.ErrNotFound
}

func (repo *achievementRepository) FilterAchievements(
	ctx context.Context,
	filter achievement.QueryFilter,
	page core.Pagination,
) ([]achievement.Achievement, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var matches []achievement.Achievement
	for _, a := range repo.db.table {
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		matches = append(matches, *a)
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

func (repo *achievementRepository) Categories(ctx context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]struct{})
	var categories []string
	for _, a := range repo.db.table {
		if a.Category == "" {
			continue
		}
		if _, ok := seen[a.Category]; ok {
			continue
		}
		seen[a.Category] = struct{}{}
		categories = append(categories, a.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

func (repo *achievementRepository) UpdateAchievement(ctx context.Context, a achievement.Achievement) (achievement.Achievement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[a.ID]
	if !ok {
		return achievement.Achievement{}, achievement.ErrNotFound
	}

	if a.Name != "" {
		orig.Name = a.Name
	}
	if a.Description != "" {
		orig.Description = a.Description
	}
	if a.Kind != "" {
		orig.Kind = a.Kind
	}
	if a.Category != "" {
		orig.Category = a.Category
	}
	if a.Icon != "" {
		orig.Icon = a.Icon
	}
	if a.Requirements != "" {
		orig.Requirements = a.Requirements
	}
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *achievementRepository) DeleteAchievement(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.table, id)
	return nil
}
