package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindWindow reads the `from` and `to` query params (YYYY-MM-DD, both inclusive).
func bindWindow(ctx echo.Context) (core.DateRange, error) {
	var window core.DateRange
	var fldErrs []core.FieldError
	for _, p := range []struct {
		param string
		dst   **core.Date
	}{{"from", &window.From}, {"to", &window.To}} {
		val := strings.TrimSpace(ctx.QueryParam(p.param))
		if val == "" {
			continue
		}
		d, err := core.ParseDate(val)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: p.param, Error: err.Error()})
			continue
		}
		*p.dst = &d
	}
	if fldErrs != nil {
		return core.DateRange{}, core.NewValidationError(core.ErrInvalidDate, fldErrs...)
	}
	return window, nil
}

func bindQueryFilter(ctx echo.Context) (payment.QueryFilter, error) {
	window, err := bindWindow(ctx)
	if err != nil {
		return payment.QueryFilter{}, err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	filter := payment.QueryFilter{
		StudentID: ctx.QueryParam("studentId"),
		Window:    window,
		Status:    payment.Status(ctx.QueryParam("status")),
		Method:    payment.Method(ctx.QueryParam("method")),
		Ordering:  ordering.Orderings,
	}
	filter.Clean()
	return filter, nil
}
