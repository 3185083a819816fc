package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core/achievement"
)

type achievementApi struct {
	svc      achievement.Service
	validate *validator.Validate
}

func registerAchievementAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := achievementApi{
		svc:      deps.AchievementSvc,
		validate: deps.Validate,
	}

	ag := g.Group("/achievements", jwt)
	ag.GET("", api.query)
	ag.GET("/categories", api.queryCategories)
	ag.POST("", api.create, adminMiddleware())
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update, adminMiddleware())
	ag.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *achievementApi) create(ctx echo.Context) error {
	var data achievement.NewAchievement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAchievement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating achievement")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *achievementApi) query(ctx echo.Context) error {
	filter := new(achievement.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []achievement.Achievement{})
	}
	filter.Clean()
	page := bindPagination(ctx)

	achs, total, err := api.svc.Query(ctx.Request().Context(), *filter, page)
	if err != nil {
		return errors.Wrap(err, "querying achievements")
	}
	if achs == nil {
		achs = []achievement.Achievement{}
	}
	return ctx.JSON(http.StatusOK, newPaginatedResponse(page, total, achs))
}

func (api *achievementApi) queryCategories(ctx echo.Context) error {
	categories, err := api.svc.Categories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if categories == nil {
		categories = []string{}
	}
	return ctx.JSON(http.StatusOK, categories)
}

func (api *achievementApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving achievement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *achievementApi) update(ctx echo.Context) error {
	var data achievement.UpdateAchievement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAchievement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating achievement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *achievementApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting achievement")
	}
	return ctx.NoContent(http.StatusNoContent)
}
