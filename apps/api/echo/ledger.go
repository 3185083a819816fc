package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campuscoin/campuscoin/core/ledger"
)

type ledgerApi struct {
	svc      ledger.Service
	validate *validator.Validate
}

func registerLedgerAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := ledgerApi{
		svc:      deps.LedgerSvc,
		validate: deps.Validate,
	}

	tg := g.Group("/transactions", jwt)
	tg.GET("", api.history)
	tg.GET("/all", api.query, adminMiddleware())
	tg.POST("/transfer", api.transfer)
	tg.POST("/reward", api.reward, staffMiddleware())
	tg.GET("/:id", api.retrieve)
}

// TransactionResponse is the success envelope for coin movements.
type TransactionResponse struct {
	Message     string             `json:"message"`
	Transaction ledger.Transaction `json:"transaction"`
}

func (api *ledgerApi) transfer(ctx echo.Context) error {
	var data ledger.NewTransfer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTransfer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	txn, err := api.svc.Transfer(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "transferring coins")
	}
	return ctx.JSON(http.StatusCreated, TransactionResponse{Message: "Transfer completed", Transaction: txn})
}

func (api *ledgerApi) reward(ctx echo.Context) error {
	var data ledger.NewReward
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReward")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	txn, err := api.svc.Reward(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "granting reward")
	}
	return ctx.JSON(http.StatusCreated, TransactionResponse{Message: "Reward granted", Transaction: txn})
}

func (api *ledgerApi) history(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	page := bindPagination(ctx)

	txns, total, err := api.svc.History(ctx.Request().Context(), claims.Subject, page)
	if err != nil {
		return errors.Wrap(err, "querying transaction history")
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	return ctx.JSON(http.StatusOK, newPaginatedResponse(page, total, txns))
}

func (api *ledgerApi) query(ctx echo.Context) error {
	filter := new(ledger.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []ledger.Transaction{})
	}
	filter.Clean()
	page := bindPagination(ctx)

	txns, total, err := api.svc.Filter(ctx.Request().Context(), *filter, page)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	return ctx.JSON(http.StatusOK, newPaginatedResponse(page, total, txns))
}

func (api *ledgerApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	txn, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving transaction")
	}

	// only participants and admins may see a transaction
	if !(claims.IsAdmin || txn.Involves(claims.Subject)) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, txn)
}
