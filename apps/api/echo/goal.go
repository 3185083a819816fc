package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core/goal"
)

type goalApi struct {
	svc      goal.Service
	validate *validator.Validate
}

func registerGoalAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := goalApi{
		svc:      deps.GoalSvc,
		validate: deps.Validate,
	}

	gg := g.Group("/goals", jwt)
	gg.GET("", api.queryAvailable)
	gg.GET("/completed", api.queryCompleted)
	gg.POST("", api.create, staffMiddleware())
	gg.GET("/:id", api.retrieve)
	gg.PUT("/:id", api.update, adminMiddleware())
	gg.DELETE("/:id", api.destroy, adminMiddleware())
	gg.POST("/:id/complete", api.complete)
}

func (api *goalApi) create(ctx echo.Context) error {
	var data goal.NewGoal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGoal")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating goal")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *goalApi) queryAvailable(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(goal.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []goal.WithStatus{})
	}
	filter.Clean()
	page := bindPagination(ctx)

	goals, total, err := api.svc.ListAvailable(ctx.Request().Context(), *filter, claims.Subject, page)
	if err != nil {
		return errors.Wrap(err, "querying goals")
	}
	if goals == nil {
		goals = []goal.WithStatus{}
	}
	return ctx.JSON(http.StatusOK, newPaginatedResponse(page, total, goals))
}

func (api *goalApi) queryCompleted(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	goals, err := api.svc.ListCompletedBy(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying completed goals")
	}
	if goals == nil {
		goals = []goal.Goal{}
	}
	return ctx.JSON(http.StatusOK, goals)
}

func (api *goalApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	g, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "retrieving goal")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *goalApi) update(ctx echo.Context) error {
	var data goal.UpdateGoal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGoal")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating goal")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *goalApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting goal")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *goalApi) complete(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	txn, err := api.svc.Complete(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "completing goal")
	}
	return ctx.JSON(http.StatusCreated, TransactionResponse{Message: "Goal completed", Transaction: txn})
}
