// Package repotest holds the behaviour every payment.Repository implementation must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

var errRollback = errors.New("rollback")

// Run exercises a repository returned by newRepo; every call must return an empty store.
func Run(t *testing.T, newRepo func(t *testing.T) payment.Repository) {
	t.Run("students", func(t *testing.T) { testStudents(t, newRepo(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newRepo(t)) })
	t.Run("query", func(t *testing.T) { testQuery(t, newRepo(t)) })
	t.Run("transaction rollback", func(t *testing.T) { testRollback(t, newRepo(t)) })
	t.Run("cents", func(t *testing.T) { testCents(t, newRepo(t)) })
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func newStudent(id string, fee int64) student.Student {
	s := student.Student{
		ID:         id,
		Name:       "Student " + id,
		Class:      "S4",
		Department: "Secondary",
		Email:      id + "@parents.test",
		CreatedAt:  ts("2024-01-10T08:00:00Z"),
		UpdatedAt:  ts("2024-01-10T08:00:00Z"),
	}
	if fee > 0 {
		s.Payments = student.NewPayments(decimal.NewFromInt(fee))
	}
	return s
}

func newTxn(studentID, ref string, amount int64, at string, method ...payment.Method) payment.Transaction {
	m := payment.MethodCash
	if len(method) > 0 {
		m = method[0]
	}
	id, _ := uuid.NewV7()
	return payment.Transaction{
		ID:            id.String(),
		StudentID:     studentID,
		Amount:        decimal.NewFromInt(amount),
		PaymentMethod: m,
		Reference:     ref,
		Status:        payment.StatusCompleted,
		ProcessedBy:   "system",
		ProcessedAt:   ts(at),
		ReceiptNumber: "RCP-" + ref,
	}
}

func testStudents(t *testing.T, repo payment.Repository) {
	ctx := context.Background()

	_, err := repo.CreateStudent(ctx, newStudent("STU-2", 0))
	require.NoError(t, err)
	_, err = repo.CreateStudent(ctx, newStudent("STU-1", 150000))
	require.NoError(t, err)

	_, err = repo.CreateStudent(ctx, newStudent("STU-1", 0))
	assert.Equal(t, student.ErrExists, err)

	_, err = repo.GetStudent(ctx, "lol")
	assert.Equal(t, student.ErrNotFound, err)
	_, err = repo.LockStudent(ctx, "lol")
	assert.Equal(t, student.ErrNotFound, err)

	got, err := repo.GetStudent(ctx, "STU-1")
	require.NoError(t, err)
	assert.Equal(t, "Student STU-1", got.Name)
	assert.Equal(t, "STU-1@parents.test", got.Email)
	assert.True(t, got.CreatedAt.Equal(ts("2024-01-10T08:00:00Z")))
	require.NotNil(t, got.Payments)
	assert.True(t, got.Payments.TuitionFee.Equal(decimal.NewFromInt(150000)))
	assert.True(t, got.Payments.Balance.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, student.StatusUnpaid, got.Payments.Status)
	assert.Nil(t, got.Payments.LastPayment)

	noFee, err := repo.GetStudent(ctx, "STU-2")
	require.NoError(t, err)
	assert.Nil(t, noFee.Payments)

	// projection round trip
	got.Payments.Apply(decimal.NewFromInt(50000), core.MustParseDate("2024-04-10"))
	got.UpdatedAt = ts("2024-04-10T09:00:00Z")
	_, err = repo.UpdateStudent(ctx, got)
	require.NoError(t, err)

	got, err = repo.LockStudent(ctx, "STU-1")
	require.NoError(t, err)
	assert.True(t, got.Payments.PaidAmount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, got.Payments.Balance.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, student.StatusPartial, got.Payments.Status)
	require.NotNil(t, got.Payments.LastPayment)
	assert.Equal(t, "2024-04-10", got.Payments.LastPayment.String())
	require.NotNil(t, got.Payments.LastActivity)
	assert.Equal(t, "2024-04-10", got.Payments.LastActivity.String())
	assert.True(t, got.UpdatedAt.Equal(ts("2024-04-10T09:00:00Z")))

	_, err = repo.UpdateStudent(ctx, newStudent("lol", 0))
	assert.Equal(t, student.ErrNotFound, err)

	students, err := repo.QueryStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "STU-1", students[0].ID)
	assert.Equal(t, "STU-2", students[1].ID)
}

func testTransactions(t *testing.T, repo payment.Repository) {
	ctx := context.Background()
	_, err := repo.CreateStudent(ctx, newStudent("STU-1", 150000))
	require.NoError(t, err)
	_, err = repo.CreateStudent(ctx, newStudent("STU-2", 150000))
	require.NoError(t, err)

	_, err = repo.CreateTransaction(ctx, newTxn("lol", "REF-0", 100, "2024-04-10T10:00:00Z"))
	assert.Equal(t, student.ErrNotFound, err)

	txn := newTxn("STU-1", "REF-1", 50000, "2024-04-10T10:00:00Z")
	txn.Description = "Term 2"
	txn.AcademicYear = "2023-2024"
	txn.Term = "Term 2"
	_, err = repo.CreateTransaction(ctx, txn)
	require.NoError(t, err)

	dup := newTxn("STU-1", "REF-1", 100, "2024-04-11T10:00:00Z")
	dup.ReceiptNumber = "RCP-OTHER"
	_, err = repo.CreateTransaction(ctx, dup)
	assert.Equal(t, payment.ErrDuplicateReference, err)

	// references are scoped per student
	other := newTxn("STU-2", "REF-1", 100, "2024-04-11T10:00:00Z")
	other.ReceiptNumber = "RCP-STU-2"
	_, err = repo.CreateTransaction(ctx, other)
	require.NoError(t, err)

	_, err = repo.GetTransaction(ctx, "lol")
	assert.Equal(t, payment.ErrTransactionNotFound, err)
	_, err = repo.GetTransaction(ctx, uuid.NewString())
	assert.Equal(t, payment.ErrTransactionNotFound, err)
	_, err = repo.GetTransactionByReference(ctx, "STU-1", "REF-404")
	assert.Equal(t, payment.ErrTransactionNotFound, err)

	got, err := repo.GetTransactionByReference(ctx, "STU-1", "REF-1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	got, err = repo.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "STU-1", got.StudentID)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, payment.MethodCash, got.PaymentMethod)
	assert.Equal(t, "REF-1", got.Reference)
	assert.Equal(t, "Term 2", got.Description)
	assert.Equal(t, "2023-2024", got.AcademicYear)
	assert.Equal(t, "Term 2", got.Term)
	assert.Equal(t, payment.StatusCompleted, got.Status)
	assert.Equal(t, "system", got.ProcessedBy)
	assert.True(t, got.ProcessedAt.Equal(ts("2024-04-10T10:00:00Z")))
	assert.Equal(t, "RCP-REF-1", got.ReceiptNumber)
	assert.Nil(t, got.RefundedAt)
	assert.False(t, got.IsRefunded())

	refundedAt := ts("2024-04-12T10:00:00Z")
	got.Status = payment.StatusRefunded
	got.RefundedAt = &refundedAt
	got.RefundReason = "duplicate"
	got.RefundedBy = "bursar"
	got.Amount = decimal.NewFromInt(1) // immutable
	_, err = repo.UpdateTransaction(ctx, got)
	require.NoError(t, err)

	got, err = repo.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRefunded())
	require.NotNil(t, got.RefundedAt)
	assert.True(t, got.RefundedAt.Equal(refundedAt))
	assert.Equal(t, "duplicate", got.RefundReason)
	assert.Equal(t, "bursar", got.RefundedBy)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(50000)))

	_, err = repo.UpdateTransaction(ctx, newTxn("STU-1", "REF-404", 1, "2024-04-10T10:00:00Z"))
	assert.Equal(t, payment.ErrTransactionNotFound, err)
}

func testQuery(t *testing.T, repo payment.Repository) {
	ctx := context.Background()
	for _, id := range []string{"STU-1", "STU-2"} {
		_, err := repo.CreateStudent(ctx, newStudent(id, 1000000))
		require.NoError(t, err)
	}

	t1 := newTxn("STU-1", "R1", 3000, "2024-03-31T23:59:59Z")
	t2 := newTxn("STU-2", "R2", 1000, "2024-04-01T00:00:00Z", payment.MethodCard)
	t3 := newTxn("STU-1", "R3", 2000, "2024-04-30T23:59:59Z", payment.MethodMobileMoney)
	t4 := newTxn("STU-1", "R4", 4000, "2024-05-01T00:00:00Z")
	t3.Status = payment.StatusRefunded
	refundedAt := ts("2024-05-02T00:00:00Z")
	t3.RefundedAt = &refundedAt
	// inserted out of order
	for _, txn := range []payment.Transaction{t4, t2, t1, t3} {
		_, err := repo.CreateTransaction(ctx, txn)
		require.NoError(t, err)
	}

	from, to := core.MustParseDate("2024-04-01"), core.MustParseDate("2024-04-30")
	tests := []struct {
		name   string
		filter payment.QueryFilter
		want   []payment.Transaction
	}{
		{name: "default ordering", want: []payment.Transaction{t1, t2, t3, t4}},
		{name: "student", filter: payment.QueryFilter{StudentID: "STU-1"}, want: []payment.Transaction{t1, t3, t4}},
		{name: "status", filter: payment.QueryFilter{Status: payment.StatusRefunded}, want: []payment.Transaction{t3}},
		{name: "method", filter: payment.QueryFilter{Method: payment.MethodCash}, want: []payment.Transaction{t1, t4}},
		{name: "window", filter: payment.QueryFilter{Window: core.DateRange{From: &from, To: &to}}, want: []payment.Transaction{t2, t3}},
		{name: "open window", filter: payment.QueryFilter{Window: core.DateRange{From: &to}}, want: []payment.Transaction{t3, t4}},
		{
			name:   "amount descending",
			filter: payment.QueryFilter{Ordering: []core.DBOrdering{{Field: "amount"}}},
			want:   []payment.Transaction{t4, t1, t3, t2},
		},
		{
			name:   "student then processed at descending",
			filter: payment.QueryFilter{Ordering: []core.DBOrdering{{Field: "studentId", Ascending: true}, {Field: "processedAt"}}},
			want:   []payment.Transaction{t4, t3, t1, t2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.Clean()
			got, err := repo.QueryTransactions(ctx, tt.filter)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Reference, got[i].Reference, "position %d", i)
			}
		})
	}
}

func testRollback(t *testing.T, repo payment.Repository) {
	ctx := context.Background()
	s, err := repo.CreateStudent(ctx, newStudent("STU-1", 1000))
	require.NoError(t, err)

	err = repo.InTx(ctx, func(repo payment.Repository) error {
		if _, err := repo.CreateTransaction(ctx, newTxn("STU-1", "R1", 1000, "2024-04-10T10:00:00Z")); err != nil {
			return err
		}
		s.Payments.Apply(decimal.NewFromInt(1000), core.MustParseDate("2024-04-10"))
		if _, err := repo.UpdateStudent(ctx, s); err != nil {
			return err
		}
		return errRollback
	})
	assert.Equal(t, errRollback, err)

	txns, err := repo.QueryTransactions(ctx, payment.QueryFilter{Ordering: payment.DefaultOrdering})
	require.NoError(t, err)
	assert.Empty(t, txns)
	got, err := repo.GetStudent(ctx, "STU-1")
	require.NoError(t, err)
	assert.True(t, got.Payments.PaidAmount.IsZero())

	// committed
	err = repo.InTx(ctx, func(repo payment.Repository) error {
		_, err := repo.CreateTransaction(ctx, newTxn("STU-1", "R2", 1000, "2024-04-10T10:00:00Z"))
		return err
	})
	require.NoError(t, err)
	txns, err = repo.QueryTransactions(ctx, payment.QueryFilter{Ordering: payment.DefaultOrdering})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

// testCents checks that amounts with cents come back exactly and are ordered as numbers.
func testCents(t *testing.T, repo payment.Repository) {
	ctx := context.Background()

	s := newStudent("STU-1", 0)
	s.Payments = student.NewPayments(decimal.RequireFromString("150000.50"))
	_, err := repo.CreateStudent(ctx, s)
	require.NoError(t, err)

	amounts := []string{"100", "9.99", "1234.56", "0.10"}
	for i, amount := range amounts {
		txn := newTxn("STU-1", "REF-"+amount, 0, fmt.Sprintf("2024-04-%02dT10:00:00Z", i+1))
		txn.Amount = decimal.RequireFromString(amount)
		_, err = repo.CreateTransaction(ctx, txn)
		require.NoError(t, err)
		s.Payments.Apply(txn.Amount, core.DateOf(txn.ProcessedAt))
	}
	_, err = repo.UpdateStudent(ctx, s)
	require.NoError(t, err)

	got, err := repo.GetStudent(ctx, "STU-1")
	require.NoError(t, err)
	require.NotNil(t, got.Payments)
	assert.Equal(t, "1344.65", got.Payments.PaidAmount.String())
	assert.Equal(t, "148655.85", got.Payments.Balance.String())
	assert.True(t, got.Payments.Consistent(), "projection %+v", got.Payments)

	txns, err := repo.QueryTransactions(ctx, payment.QueryFilter{
		StudentID: "STU-1",
		Ordering:  []core.DBOrdering{{Field: "amount", Ascending: true}},
	})
	require.NoError(t, err)
	gotAmounts := make([]string, 0, len(txns))
	for _, txn := range txns {
		gotAmounts = append(gotAmounts, txn.Amount.StringFixed(2))
	}
	assert.Equal(t, []string{"0.10", "9.99", "100.00", "1234.56"}, gotAmounts)
}
