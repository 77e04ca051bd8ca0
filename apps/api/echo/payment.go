package echoapi

import (
	"bytes"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/payment"
)

type paymentApi struct {
	svc      payment.Service
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc payment.Service, validate *validator.Validate) {
	api := paymentApi{
		svc:      svc,
		validate: validate,
	}

	pg := g.Group("/payments", jwt)
	pg.POST("", api.process, financeOnly)
	pg.GET("", api.query, staffOnly)
	pg.GET("/statistics", api.statistics, financeOnly)

	// detail endpoints
	pg.GET("/:id", api.retrieve, staffOnly)
	pg.POST("/:id/refund", api.refund, financeOnly)
	pg.GET("/:id/receipt", api.receipt, staffOnly)
}

// Handlers

func (api *paymentApi) process(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if data.ProcessedBy == "" {
		data.ProcessedBy = contextUsername(ctx)
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	txn, err := api.svc.ProcessPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "processing payment")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}

	txns, err := api.svc.QueryTransactions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *paymentApi) statistics(ctx echo.Context) error {
	window, err := bindWindow(ctx)
	if err != nil {
		return err
	}

	stats, err := api.svc.GetPaymentStatistics(ctx.Request().Context(), payment.StatsFilter{Window: window})
	if err != nil {
		return errors.Wrap(err, "computing payment statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	txn, err := api.svc.GetTransactionByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding transaction")
	}
	return ctx.JSON(http.StatusOK, txn)
}

func (api *paymentApi) refund(ctx echo.Context) error {
	var data payment.Refund
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Refund")
	}
	if data.RefundedBy == "" {
		data.RefundedBy = contextUsername(ctx)
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	txn, err := api.svc.RefundPayment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "refunding payment")
	}
	return ctx.JSON(http.StatusOK, txn)
}

func (api *paymentApi) receipt(ctx echo.Context) error {
	r, err := api.svc.GenerateReceipt(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "generating receipt")
	}

	if ctx.QueryParam("format") == "text" {
		var buf bytes.Buffer
		if err = r.Render(&buf); err != nil {
			return errors.Wrap(err, "rendering receipt")
		}
		return ctx.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
	}
	return ctx.JSON(http.StatusOK, r)
}
