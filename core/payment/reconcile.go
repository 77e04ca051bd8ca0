package payment

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
)

// Reconciliation compares a stored projection with the one replayed from the ledger.
type Reconciliation struct {
	StudentID  string            `json:"studentId"`
	Stored     *student.Payments `json:"stored"`
	Expected   *student.Payments `json:"expected"`
	Consistent bool              `json:"consistent"`
	Fixed      bool              `json:"fixed"`
}

// Fixable reports whether the expected projection can be written back (a fee must be assessed).
func (rec Reconciliation) Fixable() bool {
	return !rec.Consistent && rec.Expected != nil && rec.Expected.TuitionFee.IsPositive()
}

// Diff renders a unified diff between the stored and the expected projection; empty when consistent.
func (rec Reconciliation) Diff() string {
	if rec.Consistent {
		return ""
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(describePayments(rec.Stored)),
		B:        difflib.SplitLines(describePayments(rec.Expected)),
		FromFile: rec.StudentID + " (stored)",
		ToFile:   rec.StudentID + " (ledger)",
		Context:  3,
	})
	return diff
}

func describePayments(p *student.Payments) string {
	if p == nil {
		return "no payments record\n"
	}
	return fmt.Sprintf("tuitionFee: %s\npaidAmount: %s\nbalance: %s\nstatus: %s\n", p.TuitionFee, p.PaidAmount, p.Balance, p.Status)
}

// replay rebuilds the projection of s from its ledger entries.
func replay(s student.Student, txns []Transaction) *student.Payments {
	if s.Payments == nil && len(txns) == 0 {
		return nil
	}

	var expected *student.Payments
	if s.Payments != nil {
		expected = student.NewPayments(s.Payments.TuitionFee)
	} else {
		expected = new(student.Payments)
	}
	var lastActivity core.Date
	for _, txn := range txns {
		day := core.DateOf(txn.ProcessedAt)
		expected.Apply(txn.Amount, day)
		if day.After(lastActivity) {
			lastActivity = day
		}
	}
	for _, txn := range txns {
		if txn.IsRefunded() && txn.RefundedAt != nil {
			day := core.DateOf(*txn.RefundedAt)
			expected.Apply(txn.Amount.Neg(), day)
			if day.After(lastActivity) {
				lastActivity = day
			}
		}
	}
	if !lastActivity.IsZero() {
		expected.LastActivity = &lastActivity
	}
	return expected
}

func reconcile(s student.Student, txns []Transaction) Reconciliation {
	expected := replay(s, txns)
	rec := Reconciliation{StudentID: s.ID, Stored: s.Payments.Clone(), Expected: expected}
	switch {
	case s.Payments == nil || expected == nil:
		rec.Consistent = s.Payments == nil && expected == nil
	default:
		rec.Consistent = s.Payments.Equal(*expected)
	}
	return rec
}

func (svc *service) reconcileWith(ctx context.Context, repo Repository, s student.Student) (Reconciliation, error) {
	txns, err := repo.QueryTransactions(ctx, QueryFilter{StudentID: s.ID, Ordering: DefaultOrdering})
	if err != nil {
		return Reconciliation{}, errors.Wrap(err, "querying student transactions")
	}
	return reconcile(s, txns), nil
}

// Reconcile checks that the stored projection of a student matches its ledger.
func (svc *service) Reconcile(ctx context.Context, studentID string) (Reconciliation, error) {
	s, err := svc.repo.GetStudent(ctx, core.CleanString(studentID))
	if err != nil {
		return Reconciliation{}, err
	}
	return svc.reconcileWith(ctx, svc.repo, s)
}

// ReconcileAll reconciles every student; with fix, drifted projections are rewritten from the ledger.
func (svc *service) ReconcileAll(ctx context.Context, fix bool) ([]Reconciliation, error) {
	students, err := svc.repo.QueryStudents(ctx)
	if err != nil {
		return nil, err
	}

	recs := make([]Reconciliation, 0, len(students))
	for _, s := range students {
		rec, err := svc.reconcileWith(ctx, svc.repo, s)
		if err != nil {
			return nil, err
		}
		if fix && rec.Fixable() {
			if rec, err = svc.fix(ctx, s.ID); err != nil {
				return nil, errors.Wrapf(err, "fixing student %s", s.ID)
			}
		}
		if !rec.Consistent {
			svc.logger.Warn(fmt.Sprintf("student %s projection drifted from the ledger (fixed: %v)", rec.StudentID, rec.Fixed), rec.Diff())
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// fix re-runs the reconciliation under the student lock and writes the expected projection back.
func (svc *service) fix(ctx context.Context, studentID string) (Reconciliation, error) {
	unlock := svc.locks.Lock(studentID)
	defer unlock()

	var rec Reconciliation
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		s, err := repo.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if rec, err = svc.reconcileWith(ctx, repo, s); err != nil {
			return err
		}
		if !rec.Fixable() {
			return nil
		}
		s.Payments = rec.Expected.Clone()
		s.UpdatedAt = NowFunc().UTC()
		if _, err = repo.UpdateStudent(ctx, s); err != nil {
			return err
		}
		rec.Fixed = true
		return nil
	})
	return rec, err
}
