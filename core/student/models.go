package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type Status string

// Payment statuses
const (
	StatusUnpaid  Status = "Unpaid"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
)

// DeriveStatus is the only source of truth for a projection status.
func DeriveStatus(tuitionFee, paidAmount decimal.Decimal) Status {
	switch {
	case tuitionFee.Sub(paidAmount).LessThanOrEqual(decimal.Zero):
		return StatusPaid
	case paidAmount.GreaterThan(decimal.Zero):
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// Payments is the per-student projection of the payment ledger.
type Payments struct {
	TuitionFee   decimal.Decimal `json:"tuitionFee"`
	PaidAmount   decimal.Decimal `json:"paidAmount"`
	Balance      decimal.Decimal `json:"balance"`
	Status       Status          `json:"status"`
	LastPayment  *core.Date      `json:"lastPayment"`
	LastActivity *core.Date      `json:"lastActivity"`
}

// NewPayments returns the projection of a freshly assessed fee.
func NewPayments(tuitionFee decimal.Decimal) *Payments {
	p := &Payments{TuitionFee: tuitionFee}
	p.recompute()
	return p
}

func (p *Payments) recompute() {
	p.Balance = p.TuitionFee.Sub(p.PaidAmount)
	p.Status = DeriveStatus(p.TuitionFee, p.PaidAmount)
}

// Apply adds delta (negative for refunds) to the paid amount on the given day.
func (p *Payments) Apply(delta decimal.Decimal, on core.Date) {
	p.PaidAmount = p.PaidAmount.Add(delta)
	p.recompute()
	p.LastActivity = &on
	if delta.IsPositive() {
		p.LastPayment = &on
	}
}

// Assess sets a new tuition fee, keeping what has already been paid.
func (p *Payments) Assess(tuitionFee decimal.Decimal) {
	p.TuitionFee = tuitionFee
	p.recompute()
}

// Consistent reports whether balance and status agree with the fee and the paid amount.
func (p Payments) Consistent() bool {
	return p.Balance.Equal(p.TuitionFee.Sub(p.PaidAmount)) && p.Status == DeriveStatus(p.TuitionFee, p.PaidAmount)
}

func (p Payments) Equal(o Payments) bool {
	return p.TuitionFee.Equal(o.TuitionFee) &&
		p.PaidAmount.Equal(o.PaidAmount) &&
		p.Balance.Equal(o.Balance) &&
		p.Status == o.Status
}

func (p *Payments) Clone() *Payments {
	if p == nil {
		return nil
	}
	c := *p
	if p.LastPayment != nil {
		d := *p.LastPayment
		c.LastPayment = &d
	}
	if p.LastActivity != nil {
		d := *p.LastActivity
		c.LastActivity = &d
	}
	return &c
}

type Student struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Class      string    `json:"class"`
	Department string    `json:"department"`
	Email      string    `json:"email,omitempty"` // guardian contact
	Payments   *Payments `json:"payments"`
	CreatedAt  time.Time `json:"createdAt"` // UTC
	UpdatedAt  time.Time `json:"updatedAt"` // UTC
}

// HasFee reports whether a tuition fee was assessed for the student.
func (s Student) HasFee() bool {
	return s.Payments != nil && s.Payments.TuitionFee.IsPositive()
}

func (s Student) Clone() Student {
	s.Payments = s.Payments.Clone()
	return s
}

// NewStudent contains information needed to register a Student in the directory.
type NewStudent struct {
	ID         string           `json:"id" validate:"required,code"`
	Name       string           `json:"name" validate:"required,notblank"`
	Class      string           `json:"class"`
	Department string           `json:"department"`
	Email      string           `json:"email" validate:"omitempty,email"`
	TuitionFee *decimal.Decimal `json:"tuitionFee" validate:"omitempty,gt=0,money"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.ID = core.CleanString(ns.ID)
	ns.Name = core.CleanString(ns.Name)
	ns.Class = core.CleanString(ns.Class)
	ns.Department = core.CleanString(ns.Department)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return validate.Struct(ns)
}

type AssessFee struct {
	TuitionFee decimal.Decimal `json:"tuitionFee" validate:"gt=0,money"`
}

func (af AssessFee) Validate(validate *validator.Validate) error { return validate.Struct(af) }
