package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

type studentApi struct {
	svc        student.Service
	paymentSvc payment.Service
	validate   *validator.Validate
}

// ReconciliationResponse adds the printable diff to a payment.Reconciliation.
type ReconciliationResponse struct {
	payment.Reconciliation
	Diff string `json:"diff,omitempty"`
}

func registerStudentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc student.Service,
	paymentSvc payment.Service,
	validate *validator.Validate,
) {
	api := studentApi{
		svc:        svc,
		paymentSvc: paymentSvc,
		validate:   validate,
	}

	sg := g.Group("/students", jwt)
	sg.POST("", api.create, officeOnly)
	sg.GET("", api.query, staffOnly)

	// detail endpoints
	sg.GET("/:id", api.retrieve, staffOnly)
	sg.PUT("/:id/fee", api.assessFee, financeOnly)
	sg.POST("/:id/reminders", api.remind, financeOnly)
	sg.GET("/:id/reconciliation", api.reconcile, financeOnly)
}

// Handlers

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) query(ctx echo.Context) error {
	students, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) assessFee(ctx echo.Context) error {
	var data student.AssessFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssessFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.paymentSvc.AssessFee(ctx.Request().Context(), ctx.Param("id"), data.TuitionFee)
	if err != nil {
		return errors.Wrap(err, "assessing fee")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) remind(ctx echo.Context) error {
	res, err := api.paymentSvc.SendPaymentReminder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending payment reminder")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) reconcile(ctx echo.Context) error {
	rec, err := api.paymentSvc.Reconcile(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reconciling student")
	}
	return ctx.JSON(http.StatusOK, ReconciliationResponse{Reconciliation: rec, Diff: rec.Diff()})
}
