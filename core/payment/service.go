package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		student.Repository

		// LockStudent reads a student and, inside InTx, holds it until the transaction ends.
		LockStudent(ctx context.Context, id string) (student.Student, error)
		CreateTransaction(ctx context.Context, txn Transaction) (Transaction, error)
		GetTransaction(ctx context.Context, id string) (Transaction, error)
		GetTransactionByReference(ctx context.Context, studentID, reference string) (Transaction, error)
		QueryTransactions(ctx context.Context, filter QueryFilter) ([]Transaction, error)
		// UpdateTransaction only persists the refund fields of txn.
		UpdateTransaction(ctx context.Context, txn Transaction) (Transaction, error)

		// InTx runs fn against a Repository bound to a single storage transaction:
		// committed if fn returns nil, rolled back otherwise.
		InTx(ctx context.Context, fn func(repo Repository) error) error
	}

	Service interface {
		// Ledger
		ProcessPayment(ctx context.Context, np NewPayment) (Transaction, error)
		RefundPayment(ctx context.Context, id string, r Refund) (Transaction, error)
		GetAllTransactions(ctx context.Context) ([]Transaction, error)
		GetStudentTransactions(ctx context.Context, studentID string) ([]Transaction, error)
		GetTransactionByID(ctx context.Context, id string) (Transaction, error)
		GetTransactionsByDateRange(ctx context.Context, start, end core.Date) ([]Transaction, error)
		QueryTransactions(ctx context.Context, filter QueryFilter) ([]Transaction, error)

		// Projection
		AssessFee(ctx context.Context, studentID string, fee decimal.Decimal) (student.Student, error)
		Reconcile(ctx context.Context, studentID string) (Reconciliation, error)
		ReconcileAll(ctx context.Context, fix bool) ([]Reconciliation, error)

		// Reporting
		GetPaymentStatistics(ctx context.Context, filter StatsFilter) (Statistics, error)
		GenerateReceipt(ctx context.Context, id string) (Receipt, error)
		SendPaymentReminder(ctx context.Context, studentID string) (ReminderResult, error)
	}

	service struct {
		repo             Repository
		notifier         core.Notifier
		logger           core.Logger
		allowOverpayment bool
		appName          string
		locks            *keyedMutex
		tokens           *tokenClock
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, notifier core.Notifier, logger core.Logger, conf *core.Config) Service {
	return &service{
		repo:             repo,
		notifier:         notifier,
		logger:           logger,
		allowOverpayment: conf.Ledger.AllowOverpayment,
		appName:          conf.AppName,
		locks:            newKeyedMutex(),
		tokens:           new(tokenClock),
	}
}
