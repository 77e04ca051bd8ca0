package payment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type Method string

// Payment methods
const (
	MethodCash         Method = "cash"
	MethodMobileMoney  Method = "mobile_money"
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
)

var Methods = []Method{MethodCash, MethodMobileMoney, MethodBankTransfer, MethodCard}

// Known reports whether m is one of the reported methods; other values are stored but left out of breakdowns.
func (m Method) Known() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

type Status string

// Transaction statuses
const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded" // terminal
)

const defaultProcessedBy = "system"

// Transaction is a ledger entry. It is never modified after creation except by a single refund.
type Transaction struct {
	ID            string          `json:"id"`
	StudentID     string          `json:"studentId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod Method          `json:"paymentMethod"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	AcademicYear  string          `json:"academicYear"`
	Term          string          `json:"term"`
	Status        Status          `json:"status"`
	ProcessedBy   string          `json:"processedBy"`
	ProcessedAt   time.Time       `json:"processedAt"` // UTC
	ReceiptNumber string          `json:"receiptNumber"`
	RefundedAt    *time.Time      `json:"refundedAt,omitempty"` // UTC
	RefundReason  string          `json:"refundReason,omitempty"`
	RefundedBy    string          `json:"refundedBy,omitempty"`
}

func (t Transaction) IsRefunded() bool { return t.Status == StatusRefunded }

// NewPayment contains information needed to record a payment.
type NewPayment struct {
	StudentID     string          `json:"studentId" validate:"required,code"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0,money"`
	PaymentMethod Method          `json:"paymentMethod" validate:"required,notblank"`
	Reference     string          `json:"reference" validate:"omitempty,max=64"`
	Description   string          `json:"description" validate:"omitempty,max=255"`
	AcademicYear  string          `json:"academicYear" validate:"omitempty,max=16"`
	Term          string          `json:"term" validate:"omitempty,max=32"`
	ProcessedBy   string          `json:"processedBy"`
}

func (np *NewPayment) Clean() {
	np.StudentID = core.CleanString(np.StudentID)
	np.PaymentMethod = Method(core.CleanString(string(np.PaymentMethod), true /* lower */))
	np.Reference = core.CleanString(np.Reference)
	np.Description = core.CleanString(np.Description)
	np.AcademicYear = core.CleanString(np.AcademicYear)
	np.Term = core.CleanString(np.Term)
	np.ProcessedBy = core.CleanString(np.ProcessedBy)
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Clean()
	return validate.Struct(np)
}

type Refund struct {
	Reason     string `json:"reason" validate:"required,notblank,max=255"`
	RefundedBy string `json:"refundedBy"`
}

func (r *Refund) Validate(validate *validator.Validate) error {
	r.Reason = core.CleanString(r.Reason)
	r.RefundedBy = core.CleanString(r.RefundedBy)
	return validate.Struct(r)
}

// OrderingFields maps the orderable Transaction fields to their storage column.
var OrderingFields = map[string]string{
	"processedAt":   "processed_at",
	"amount":        "amount",
	"studentId":     "student_id",
	"receiptNumber": "receipt_number",
}

// DefaultOrdering lists transactions in the order they were processed.
var DefaultOrdering = []core.DBOrdering{{Field: "processedAt", Ascending: true}}

// QueryFilter applies AND operation on the set fields. The date window applies to ProcessedAt (UTC date).
type QueryFilter struct {
	StudentID string
	Window    core.DateRange
	Status    Status
	Method    Method
	Ordering  []core.DBOrdering
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
	qf.Method = Method(core.CleanString(string(qf.Method), true /* lower */))

	ordering := make([]core.DBOrdering, 0, len(qf.Ordering))
	for _, ord := range qf.Ordering {
		if _, ok := OrderingFields[ord.Field]; ok {
			ordering = append(ordering, ord)
		}
	}
	if len(ordering) == 0 {
		ordering = DefaultOrdering
	}
	qf.Ordering = ordering
}

type StatsFilter struct {
	Window core.DateRange
}

type MethodBreakdown struct {
	Cash         decimal.Decimal `json:"cash"`
	MobileMoney  decimal.Decimal `json:"mobile_money"`
	BankTransfer decimal.Decimal `json:"bank_transfer"`
	Card         decimal.Decimal `json:"card"`
}

func (mb *MethodBreakdown) add(m Method, amount decimal.Decimal) {
	switch m {
	case MethodCash:
		mb.Cash = mb.Cash.Add(amount)
	case MethodMobileMoney:
		mb.MobileMoney = mb.MobileMoney.Add(amount)
	case MethodBankTransfer:
		mb.BankTransfer = mb.BankTransfer.Add(amount)
	case MethodCard:
		mb.Card = mb.Card.Add(amount)
	}
}

// Statistics are computed over completed transactions; refunded ones are only counted apart.
type Statistics struct {
	TotalRevenue       decimal.Decimal `json:"totalRevenue"`
	TransactionCount   int             `json:"transactionCount"`
	AverageTransaction decimal.Decimal `json:"averageTransaction"`
	ByMethod           MethodBreakdown `json:"byMethod"`
	RefundedCount      int             `json:"refundedCount"`
	RefundedAmount     decimal.Decimal `json:"refundedAmount"`
	Transactions       []Transaction   `json:"transactions"`
}

type ReminderResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
