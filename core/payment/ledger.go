package payment

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
)

// ProcessPayment records a payment and applies it to the student's projection, atomically.
// A payment replaying an existing (studentId, reference) with the same amount and method returns the
// stored transaction without counting it twice.
func (svc *service) ProcessPayment(ctx context.Context, np NewPayment) (Transaction, error) {
	np.Clean()
	if !np.Amount.IsPositive() || !core.IsMoney(np.Amount) {
		return Transaction{}, ErrInvalidAmount
	}
	if np.StudentID == "" {
		return Transaction{}, ErrStudentNotFound
	}

	unlock := svc.locks.Lock(np.StudentID)
	defer unlock()

	now := NowFunc().UTC()
	tick := svc.tokens.next(now)
	id := newTransactionID()
	txn := Transaction{
		ID:            id,
		StudentID:     np.StudentID,
		Amount:        np.Amount,
		PaymentMethod: np.PaymentMethod,
		Reference:     np.Reference,
		Description:   np.Description,
		AcademicYear:  np.AcademicYear,
		Term:          np.Term,
		Status:        StatusCompleted,
		ProcessedBy:   np.ProcessedBy,
		ProcessedAt:   now,
		ReceiptNumber: receiptNumber(tick, id),
	}
	if txn.Reference == "" {
		txn.Reference = paymentReference(tick, id)
	}
	if txn.ProcessedBy == "" {
		txn.ProcessedBy = defaultProcessedBy
	}

	var replayed bool
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		s, err := repo.LockStudent(ctx, txn.StudentID)
		if err != nil {
			return err
		}
		if !s.HasFee() {
			return ErrNoFeeAssessed
		}

		existing, err := repo.GetTransactionByReference(ctx, txn.StudentID, txn.Reference)
		switch errors.Cause(err) {
		case nil:
			if !existing.Amount.Equal(txn.Amount) || existing.PaymentMethod != txn.PaymentMethod {
				return ErrDuplicateReference
			}
			txn, replayed = existing, true
			return nil
		case ErrTransactionNotFound: // pass
		default:
			return err
		}

		if !svc.allowOverpayment && s.Payments.PaidAmount.Add(txn.Amount).GreaterThan(s.Payments.TuitionFee) {
			return ErrOverpayment
		}

		if txn, err = repo.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		s.Payments.Apply(txn.Amount, core.DateOf(now))
		s.UpdatedAt = now
		_, err = repo.UpdateStudent(ctx, s)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	if replayed {
		svc.logger.Warn(fmt.Sprintf("payment %s replayed for student %s", txn.Reference, txn.StudentID))
	} else {
		svc.logger.Info(fmt.Sprintf("payment %s of %s recorded for student %s", txn.ReceiptNumber, txn.Amount, txn.StudentID))
	}
	return txn, nil
}

// RefundPayment marks a completed transaction as refunded and removes its amount from the student's projection.
func (svc *service) RefundPayment(ctx context.Context, id string, r Refund) (Transaction, error) {
	txn, err := svc.repo.GetTransaction(ctx, core.CleanString(id))
	if err != nil {
		return Transaction{}, err
	}

	unlock := svc.locks.Lock(txn.StudentID)
	defer unlock()

	now := NowFunc().UTC()
	err = svc.repo.InTx(ctx, func(repo Repository) error {
		s, err := repo.LockStudent(ctx, txn.StudentID)
		if err != nil {
			return err
		}
		// re-read under lock: a concurrent refund may have won
		if txn, err = repo.GetTransaction(ctx, txn.ID); err != nil {
			return err
		}
		if txn.IsRefunded() {
			return ErrAlreadyRefunded
		}
		if s.Payments == nil {
			return ErrNoFeeAssessed
		}

		txn.Status = StatusRefunded
		txn.RefundedAt = &now
		txn.RefundReason = core.CleanString(r.Reason)
		txn.RefundedBy = core.CleanString(r.RefundedBy)
		if txn.RefundedBy == "" {
			txn.RefundedBy = defaultProcessedBy
		}
		if txn, err = repo.UpdateTransaction(ctx, txn); err != nil {
			return err
		}

		s.Payments.Apply(txn.Amount.Neg(), core.DateOf(now))
		s.UpdatedAt = now
		_, err = repo.UpdateStudent(ctx, s)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	svc.logger.Info(fmt.Sprintf("payment %s refunded for student %s", txn.ReceiptNumber, txn.StudentID))
	return txn, nil
}

func (svc *service) GetAllTransactions(ctx context.Context) ([]Transaction, error) {
	return svc.QueryTransactions(ctx, QueryFilter{})
}

func (svc *service) GetStudentTransactions(ctx context.Context, studentID string) ([]Transaction, error) {
	return svc.QueryTransactions(ctx, QueryFilter{StudentID: studentID})
}

func (svc *service) GetTransactionByID(ctx context.Context, id string) (Transaction, error) {
	return svc.repo.GetTransaction(ctx, core.CleanString(id))
}

// GetTransactionsByDateRange lists the transactions processed between start and end (UTC dates, both inclusive).
func (svc *service) GetTransactionsByDateRange(ctx context.Context, start, end core.Date) ([]Transaction, error) {
	return svc.QueryTransactions(ctx, QueryFilter{Window: core.DateRange{From: &start, To: &end}})
}

func (svc *service) QueryTransactions(ctx context.Context, filter QueryFilter) ([]Transaction, error) {
	if !filter.Window.Valid() {
		return nil, ErrInvalidDateRange
	}
	filter.Clean()
	return svc.repo.QueryTransactions(ctx, filter)
}

// AssessFee creates or updates the projection of a student with a new tuition fee, keeping the paid amount.
func (svc *service) AssessFee(ctx context.Context, studentID string, fee decimal.Decimal) (student.Student, error) {
	if !fee.IsPositive() || !core.IsMoney(fee) {
		return student.Student{}, student.ErrInvalidFee
	}
	studentID = core.CleanString(studentID)

	unlock := svc.locks.Lock(studentID)
	defer unlock()

	var s student.Student
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		var err error
		if s, err = repo.LockStudent(ctx, studentID); err != nil {
			return err
		}
		if s.Payments == nil {
			s.Payments = student.NewPayments(fee)
		} else {
			s.Payments.Assess(fee)
		}
		s.UpdatedAt = NowFunc().UTC()
		s, err = repo.UpdateStudent(ctx, s)
		return err
	})
	if err != nil {
		return student.Student{}, err
	}
	return s, nil
}
