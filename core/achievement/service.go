package achievement

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core"
)

var ErrNotFound = errors.New("achievement not found")

type (
	Repository interface {
		CreateAchievement(ctx context.Context, a Achievement) (Achievement, error)
		GetAchievementByID(ctx context.Context, id string) (Achievement, error)
		FilterAchievements(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Achievement, int, error)
		// Categories returns the distinct non-empty categories in use.
		Categories(ctx context.Context) ([]string, error)
		UpdateAchievement(ctx context.Context, a Achievement) (Achievement, error)
		DeleteAchievement(ctx context.Context, id string) error
	}

	Service interface {
		Create(ctx context.Context, na NewAchievement) (Achievement, error)
		Get(ctx context.Context, id string) (Achievement, error)
		Query(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Achievement, int, error)
		Categories(ctx context.Context) ([]string, error)
		Update(ctx context.Context, id string, ua UpdateAchievement) (Achievement, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, na NewAchievement) (Achievement, error) {
	now := time.Now().UTC()
	a := Achievement{
		Name:         na.Name,
		Description:  na.Description,
		Kind:         na.Kind,
		Category:     na.Category,
		Icon:         na.Icon,
		Requirements: na.Requirements,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateAchievement(ctx, a)
}

func (svc *service) Get(ctx context.Context, id string) (Achievement, error) {
	return svc.repo.GetAchievementByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Achievement, int, error) {
	return svc.repo.FilterAchievements(ctx, filter, page)
}

func (svc *service) Categories(ctx context.Context) ([]string, error) {
	return svc.repo.Categories(ctx)
}

func (svc *service) Update(ctx context.Context, id string, ua UpdateAchievement) (Achievement, error) {
	a := Achievement{
		ID:           id,
		Name:         ua.Name,
		Description:  ua.Description,
		Kind:         ua.Kind,
		Category:     ua.Category,
		Icon:         ua.Icon,
		Requirements: ua.Requirements,
		UpdatedAt:    time.Now().UTC(),
	}
	return svc.repo.UpdateAchievement(ctx, a)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetAchievementByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteAchievement(ctx, id)
}
