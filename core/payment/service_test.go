package payment_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
	notifysvc "github.com/trezcool/bursar/services/notify"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
	"github.com/trezcool/bursar/tests"
)

var dec = testutil.Dec

type fixture struct {
	repo     payment.Repository
	notifier *notifysvc.NotifierMock
	svc      payment.Service
}

func setup(t *testing.T, conf ...*core.Config) fixture {
	t.Helper()

	c := core.NewTestConfig()
	if len(conf) > 0 {
		c = conf[0]
	}
	repo := inmemdb.NewRepository(inmemdb.Open())
	notifier := notifysvc.NewNotifierMock()
	return fixture{
		repo:     repo,
		notifier: notifier,
		svc:      payment.NewService(repo, notifier, testutil.NewLogger(), c),
	}
}

// at freezes payment.NowFunc for the duration of the test.
func at(t *testing.T, ts string) {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t.Fatalf("time.Parse(): %v", err)
	}
	orig := payment.NowFunc
	payment.NowFunc = testutil.FixedNow(parsed)
	t.Cleanup(func() { payment.NowFunc = orig })
}

func pay(t *testing.T, svc payment.Service, studentID string, amount int64, method ...payment.Method) payment.Transaction {
	t.Helper()

	m := payment.MethodCash
	if len(method) > 0 {
		m = method[0]
	}
	txn, err := svc.ProcessPayment(context.Background(), payment.NewPayment{StudentID: studentID, Amount: dec(amount), PaymentMethod: m})
	if err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}
	return txn
}

func checkProjection(t *testing.T, s student.Student, paid, balance int64, status student.Status) {
	t.Helper()

	p := s.Payments
	if p == nil {
		t.Fatal("student has no payments projection")
	}
	if !p.PaidAmount.Equal(dec(paid)) || !p.Balance.Equal(dec(balance)) || p.Status != status {
		t.Errorf("projection = paid %s balance %s status %s; want paid %d balance %d status %s",
			p.PaidAmount, p.Balance, p.Status, paid, balance, status)
	}
	if !p.Balance.Equal(p.TuitionFee.Sub(p.PaidAmount)) {
		t.Errorf("balance %s != tuitionFee %s - paidAmount %s", p.Balance, p.TuitionFee, p.PaidAmount)
	}
}

func Test_service_ProcessPayment(t *testing.T) {
	f := setup(t)
	at(t, "2024-04-10T09:30:00Z")
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 150000)
	testutil.CreateStudent(t, f.repo, "STU-2", "Baraka", "S2", 0)

	tests := []struct {
		name    string
		np      payment.NewPayment
		wantErr error
	}{
		{name: "zero amount", np: payment.NewPayment{StudentID: "STU-1", PaymentMethod: payment.MethodCash}, wantErr: payment.ErrInvalidAmount},
		{name: "negative amount", np: payment.NewPayment{StudentID: "STU-1", Amount: dec(-10)}, wantErr: payment.ErrInvalidAmount},
		{name: "no student id", np: payment.NewPayment{Amount: dec(10)}, wantErr: payment.ErrStudentNotFound},
		{name: "unknown student", np: payment.NewPayment{StudentID: "lol", Amount: dec(10)}, wantErr: payment.ErrStudentNotFound},
		{name: "no fee assessed", np: payment.NewPayment{StudentID: "STU-2", Amount: dec(10)}, wantErr: payment.ErrNoFeeAssessed},
		{name: "recorded", np: payment.NewPayment{StudentID: " STU-1 ", Amount: dec(50000), PaymentMethod: "Mobile_Money", Term: "Term 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := f.svc.ProcessPayment(context.Background(), tt.np)
			if err != tt.wantErr {
				t.Fatalf("ProcessPayment() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if txn.ID == "" || txn.Status != payment.StatusCompleted || txn.StudentID != "STU-1" {
				t.Errorf("unexpected transaction %+v", txn)
			}
			if txn.PaymentMethod != payment.MethodMobileMoney || txn.Term != "Term 2" {
				t.Errorf("unexpected transaction fields %+v", txn)
			}
			if !strings.HasPrefix(txn.Reference, "PAY-") || !strings.HasPrefix(txn.ReceiptNumber, "RCP-") {
				t.Errorf("unexpected tokens %s / %s", txn.Reference, txn.ReceiptNumber)
			}
			if txn.ProcessedBy != "system" {
				t.Errorf("processedBy = %s, want system", txn.ProcessedBy)
			}
			s := testutil.GetStudent(t, f.repo, "STU-1")
			checkProjection(t, s, 50000, 100000, student.StatusPartial)
			if s.Payments.LastPayment == nil || s.Payments.LastPayment.String() != "2024-04-10" {
				t.Errorf("lastPayment = %v, want 2024-04-10", s.Payments.LastPayment)
			}
		})
	}

	// failures left no orphan ledger entries
	txns, err := f.svc.GetAllTransactions(context.Background())
	if err != nil {
		t.Fatalf("GetAllTransactions() failed: %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("GetAllTransactions() = %d transactions, want 1", len(txns))
	}
}

func Test_service_scenario(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 150000)

	pay(t, f.svc, "STU-1", 50000)
	checkProjection(t, testutil.GetStudent(t, f.repo, "STU-1"), 50000, 100000, student.StatusPartial)

	second := pay(t, f.svc, "STU-1", 100000)
	checkProjection(t, testutil.GetStudent(t, f.repo, "STU-1"), 150000, 0, student.StatusPaid)

	refunded, err := f.svc.RefundPayment(context.Background(), second.ID, payment.Refund{Reason: "duplicate deposit"})
	if err != nil {
		t.Fatalf("RefundPayment() failed: %v", err)
	}
	if refunded.Status != payment.StatusRefunded || refunded.RefundedAt == nil || refunded.RefundReason != "duplicate deposit" {
		t.Errorf("unexpected refunded transaction %+v", refunded)
	}
	checkProjection(t, testutil.GetStudent(t, f.repo, "STU-1"), 50000, 100000, student.StatusPartial)

	// nothing but the refund fields changed
	stored, err := f.svc.GetTransactionByID(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("GetTransactionByID() failed: %v", err)
	}
	if !stored.Amount.Equal(second.Amount) || stored.ReceiptNumber != second.ReceiptNumber ||
		stored.Reference != second.Reference || !stored.ProcessedAt.Equal(second.ProcessedAt) {
		t.Errorf("refund changed immutable fields: %+v vs %+v", stored, second)
	}
}

func Test_service_RefundPayment(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 150000)
	txn := pay(t, f.svc, "STU-1", 50000)

	at(t, "2024-05-02T08:00:00Z")
	tests := []struct {
		name       string
		id         string
		wantErr    error
		wantPaid   int64
		wantStatus student.Status
	}{
		{name: "unknown transaction", id: "lol", wantErr: payment.ErrTransactionNotFound, wantPaid: 50000, wantStatus: student.StatusPartial},
		{name: "refunded", id: txn.ID, wantStatus: student.StatusUnpaid},
		{name: "already refunded", id: txn.ID, wantErr: payment.ErrAlreadyRefunded, wantStatus: student.StatusUnpaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RefundPayment(context.Background(), tt.id, payment.Refund{Reason: "error", RefundedBy: "bursar"})
			if err != tt.wantErr {
				t.Fatalf("RefundPayment() error = %v, wantErr %v", err, tt.wantErr)
			}
			s := testutil.GetStudent(t, f.repo, "STU-1")
			checkProjection(t, s, tt.wantPaid, 150000-tt.wantPaid, tt.wantStatus)
		})
	}

	s := testutil.GetStudent(t, f.repo, "STU-1")
	if s.Payments.LastActivity == nil || s.Payments.LastActivity.String() != "2024-05-02" {
		t.Errorf("lastActivity = %v, want 2024-05-02", s.Payments.LastActivity)
	}
	if s.Payments.LastPayment == nil || s.Payments.LastPayment.String() == "2024-05-02" {
		t.Errorf("lastPayment should not move on refunds: %v", s.Payments.LastPayment)
	}

	refunded, _ := f.svc.GetTransactionByID(context.Background(), txn.ID)
	if refunded.RefundedBy != "bursar" || refunded.RefundReason != "error" || refunded.Status != payment.StatusRefunded {
		t.Errorf("unexpected refunded transaction %+v", refunded)
	}
}

func Test_service_balanceInvariant(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 100000)

	var txns []payment.Transaction
	steps := []struct {
		amount int64 // 0: refund the oldest non refunded transaction
	}{{30000}, {20000}, {0}, {50000}, {50000}, {0}, {0}, {10000}}
	for i, st := range steps {
		if st.amount > 0 {
			txns = append(txns, pay(t, f.svc, "STU-1", st.amount))
		} else {
			if _, err := f.svc.RefundPayment(context.Background(), txns[0].ID, payment.Refund{Reason: "test"}); err != nil {
				t.Fatalf("step %d: RefundPayment() failed: %v", i, err)
			}
			txns = txns[1:]
		}

		s := testutil.GetStudent(t, f.repo, "STU-1")
		if !s.Payments.Consistent() {
			t.Fatalf("step %d: inconsistent projection %+v", i, s.Payments)
		}
		var paid int64
		for _, txn := range txns {
			paid += txn.Amount.IntPart()
		}
		if !s.Payments.PaidAmount.Equal(dec(paid)) {
			t.Fatalf("step %d: paidAmount = %s, want %d", i, s.Payments.PaidAmount, paid)
		}
	}
}

func Test_service_idempotentReference(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 150000)
	testutil.CreateStudent(t, f.repo, "STU-2", "Baraka", "S2", 150000)
	ctx := context.Background()

	np := payment.NewPayment{StudentID: "STU-1", Amount: dec(50000), PaymentMethod: payment.MethodBankTransfer, Reference: "BK-778"}
	first, err := f.svc.ProcessPayment(ctx, np)
	if err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}

	replayed, err := f.svc.ProcessPayment(ctx, np)
	if err != nil {
		t.Fatalf("ProcessPayment() replay failed: %v", err)
	}
	if replayed.ID != first.ID || replayed.ReceiptNumber != first.ReceiptNumber {
		t.Errorf("replay returned a new transaction: %+v", replayed)
	}
	checkProjection(t, testutil.GetStudent(t, f.repo, "STU-1"), 50000, 100000, student.StatusPartial)

	conflicting := np
	conflicting.Amount = dec(60000)
	if _, err = f.svc.ProcessPayment(ctx, conflicting); err != payment.ErrDuplicateReference {
		t.Errorf("ProcessPayment() error = %v, want %v", err, payment.ErrDuplicateReference)
	}

	// references are scoped per student
	other := np
	other.StudentID = "STU-2"
	if _, err = f.svc.ProcessPayment(ctx, other); err != nil {
		t.Errorf("ProcessPayment() for another student failed: %v", err)
	}

	txns, _ := f.svc.GetStudentTransactions(ctx, "STU-1")
	if len(txns) != 1 {
		t.Errorf("GetStudentTransactions() = %d transactions, want 1", len(txns))
	}
}

func Test_service_overpayment(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Ledger.AllowOverpayment = false
	f := setup(t, conf)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 100000)

	pay(t, f.svc, "STU-1", 80000)
	_, err := f.svc.ProcessPayment(context.Background(), payment.NewPayment{StudentID: "STU-1", Amount: dec(30000), PaymentMethod: payment.MethodCash})
	if err != payment.ErrOverpayment {
		t.Fatalf("ProcessPayment() error = %v, want %v", err, payment.ErrOverpayment)
	}
	pay(t, f.svc, "STU-1", 20000)
	checkProjection(t, testutil.GetStudent(t, f.repo, "STU-1"), 100000, 0, student.StatusPaid)

	// allowed by default: the balance goes negative (credit)
	f = setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 100000)
	pay(t, f.svc, "STU-1", 120000)
	checkProjection(t, testutil.GetStudent(t, f.repo, "STU-1"), 120000, -20000, student.StatusPaid)
}

func Test_service_concurrentPayments(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 1000000)
	testutil.CreateStudent(t, f.repo, "STU-2", "Baraka", "S2", 1000000)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		for _, id := range []string{"STU-1", "STU-2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.svc.ProcessPayment(context.Background(), payment.NewPayment{StudentID: id, Amount: dec(1000), PaymentMethod: payment.MethodCash})
				errs <- err
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ProcessPayment() failed: %v", err)
		}
	}

	for _, id := range []string{"STU-1", "STU-2"} {
		checkProjection(t, testutil.GetStudent(t, f.repo, id), 50000, 950000, student.StatusPartial)
	}
	txns, _ := f.svc.GetAllTransactions(context.Background())
	receipts := make(map[string]bool, len(txns))
	for _, txn := range txns {
		if receipts[txn.ReceiptNumber] {
			t.Fatalf("duplicate receipt number %s", txn.ReceiptNumber)
		}
		receipts[txn.ReceiptNumber] = true
	}
	if len(txns) != 100 {
		t.Errorf("GetAllTransactions() = %d transactions, want 100", len(txns))
	}
}

func Test_service_GetTransactionsByDateRange(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 1000000)

	dates := []string{
		"2024-03-31T23:59:59Z",
		"2024-04-01T00:00:00Z",
		"2024-04-15T12:00:00Z",
		"2024-04-30T23:59:59Z",
		"2024-05-01T00:00:00Z",
	}
	byDate := make(map[string]payment.Transaction, len(dates))
	for _, d := range dates {
		at(t, d)
		byDate[d] = pay(t, f.svc, "STU-1", 1000)
	}

	ctx := context.Background()
	got, err := f.svc.GetTransactionsByDateRange(ctx, core.MustParseDate("2024-04-01"), core.MustParseDate("2024-04-30"))
	if err != nil {
		t.Fatalf("GetTransactionsByDateRange() failed: %v", err)
	}
	want := []string{dates[1], dates[2], dates[3]}
	if len(got) != len(want) {
		t.Fatalf("GetTransactionsByDateRange() = %d transactions, want %d", len(got), len(want))
	}
	for i, d := range want {
		if got[i].ID != byDate[d].ID {
			t.Errorf("GetTransactionsByDateRange()[%d] = %s, want the one processed at %s", i, got[i].ProcessedAt, d)
		}
	}

	if _, err = f.svc.GetTransactionsByDateRange(ctx, core.MustParseDate("2024-05-01"), core.MustParseDate("2024-04-01")); err != payment.ErrInvalidDateRange {
		t.Errorf("GetTransactionsByDateRange() error = %v, want %v", err, payment.ErrInvalidDateRange)
	}

	// single day window
	got, _ = f.svc.GetTransactionsByDateRange(ctx, core.MustParseDate("2024-05-01"), core.MustParseDate("2024-05-01"))
	if len(got) != 1 || got[0].ID != byDate[dates[4]].ID {
		t.Errorf("single day window = %v", got)
	}
}

func Test_service_QueryTransactions(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 1000000)
	testutil.CreateStudent(t, f.repo, "STU-2", "Baraka", "S2", 1000000)
	ctx := context.Background()

	t1 := pay(t, f.svc, "STU-1", 3000, payment.MethodCash)
	t2 := pay(t, f.svc, "STU-2", 1000, payment.MethodCard)
	t3 := pay(t, f.svc, "STU-1", 2000, payment.MethodCard)
	if _, err := f.svc.RefundPayment(ctx, t3.ID, payment.Refund{Reason: "test"}); err != nil {
		t.Fatalf("RefundPayment() failed: %v", err)
	}

	tests := []struct {
		name   string
		filter payment.QueryFilter
		want   []payment.Transaction
	}{
		{name: "all, in processing order", want: []payment.Transaction{t1, t2, t3}},
		{name: "by student", filter: payment.QueryFilter{StudentID: "STU-1"}, want: []payment.Transaction{t1, t3}},
		{name: "by method", filter: payment.QueryFilter{Method: payment.MethodCard}, want: []payment.Transaction{t2, t3}},
		{name: "by status", filter: payment.QueryFilter{Status: payment.StatusRefunded}, want: []payment.Transaction{t3}},
		{
			name: "ordered by -amount", filter: payment.QueryFilter{Ordering: []core.DBOrdering{{Field: "amount"}}},
			want: []payment.Transaction{t1, t3, t2},
		},
		{
			name: "unknown ordering ignored", filter: payment.QueryFilter{Ordering: []core.DBOrdering{{Field: "lol"}}},
			want: []payment.Transaction{t1, t2, t3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.QueryTransactions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryTransactions() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("QueryTransactions() = %d transactions, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].ID != tt.want[i].ID {
					t.Errorf("QueryTransactions()[%d] = %s, want %s", i, got[i].ReceiptNumber, tt.want[i].ReceiptNumber)
				}
			}
		})
	}
}

func Test_service_GetPaymentStatistics(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 1000000)
	ctx := context.Background()

	empty, err := f.svc.GetPaymentStatistics(ctx, payment.StatsFilter{})
	if err != nil {
		t.Fatalf("GetPaymentStatistics() failed: %v", err)
	}
	if empty.TransactionCount != 0 || !empty.AverageTransaction.IsZero() || empty.Transactions == nil {
		t.Errorf("empty statistics = %+v", empty)
	}

	at(t, "2024-04-10T10:00:00Z")
	pay(t, f.svc, "STU-1", 10000)
	pay(t, f.svc, "STU-1", 20000)
	third := pay(t, f.svc, "STU-1", 30000)

	stats, err := f.svc.GetPaymentStatistics(ctx, payment.StatsFilter{})
	if err != nil {
		t.Fatalf("GetPaymentStatistics() failed: %v", err)
	}
	if !stats.TotalRevenue.Equal(dec(60000)) || stats.TransactionCount != 3 ||
		!stats.AverageTransaction.Equal(dec(20000)) || !stats.ByMethod.Cash.Equal(dec(60000)) {
		t.Errorf("statistics = %+v", stats)
	}

	// refunds decrease revenue by the refunded amount
	if _, err = f.svc.RefundPayment(ctx, third.ID, payment.Refund{Reason: "test"}); err != nil {
		t.Fatalf("RefundPayment() failed: %v", err)
	}
	stats, _ = f.svc.GetPaymentStatistics(ctx, payment.StatsFilter{})
	if !stats.TotalRevenue.Equal(dec(30000)) || stats.TransactionCount != 2 || !stats.ByMethod.Cash.Equal(dec(30000)) {
		t.Errorf("statistics after refund = %+v", stats)
	}
	if stats.RefundedCount != 1 || !stats.RefundedAmount.Equal(dec(30000)) || len(stats.Transactions) != 3 {
		t.Errorf("refunds not reported: %+v", stats)
	}

	// windowed
	from, to := core.MustParseDate("2024-04-11"), core.MustParseDate("2024-04-30")
	stats, _ = f.svc.GetPaymentStatistics(ctx, payment.StatsFilter{Window: core.DateRange{From: &from, To: &to}})
	if stats.TransactionCount != 0 || !stats.TotalRevenue.IsZero() {
		t.Errorf("windowed statistics = %+v", stats)
	}
}

func TestComputeStatistics(t *testing.T) {
	txns := []payment.Transaction{
		{Amount: dec(100), PaymentMethod: payment.MethodCash, Status: payment.StatusCompleted},
		{Amount: dec(100), PaymentMethod: payment.MethodMobileMoney, Status: payment.StatusCompleted},
		{Amount: dec(100), PaymentMethod: "cheque", Status: payment.StatusCompleted},
		{Amount: dec(50), PaymentMethod: payment.MethodCard, Status: payment.StatusRefunded},
	}
	stats := payment.ComputeStatistics(txns)

	if !stats.TotalRevenue.Equal(dec(300)) || stats.TransactionCount != 3 || !stats.AverageTransaction.Equal(dec(100)) {
		t.Errorf("totals = %+v", stats)
	}
	mb := stats.ByMethod
	if !mb.Cash.Equal(dec(100)) || !mb.MobileMoney.Equal(dec(100)) || !mb.BankTransfer.IsZero() || !mb.Card.IsZero() {
		t.Errorf("byMethod = %+v", mb)
	}

	odd := payment.ComputeStatistics([]payment.Transaction{
		{Amount: dec(10), Status: payment.StatusCompleted},
		{Amount: dec(10), Status: payment.StatusCompleted},
		{Amount: dec(5), Status: payment.StatusCompleted},
	})
	if got := odd.AverageTransaction.String(); got != "8.33" {
		t.Errorf("averageTransaction = %s, want 8.33", got)
	}
}

func Test_service_GenerateReceipt(t *testing.T) {
	f := setup(t)
	at(t, "2024-04-10T10:00:00Z")
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 150000)
	ctx := context.Background()

	first, err := f.svc.ProcessPayment(ctx, payment.NewPayment{
		StudentID: "STU-1", Amount: dec(50000), PaymentMethod: payment.MethodCash,
		Reference: "CASH-1", Description: "Term 2 fees", ProcessedBy: "bursar",
	})
	if err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}

	r, err := f.svc.GenerateReceipt(ctx, first.ID)
	if err != nil {
		t.Fatalf("GenerateReceipt() failed: %v", err)
	}
	want := payment.Receipt{
		ReceiptNumber: first.ReceiptNumber,
		Date:          core.MustParseDate("2024-04-10"),
		Student:       payment.ReceiptStudent{ID: "STU-1", Name: "Amani", Class: "S4", Department: "Secondary"},
		Payment:       payment.ReceiptPayment{Amount: dec(50000), Method: payment.MethodCash, Reference: "CASH-1", Description: "Term 2 fees"},
		Balance:       dec(100000),
		ProcessedBy:   "bursar",
		Status:        payment.StatusCompleted,
	}
	if r.ReceiptNumber != want.ReceiptNumber || r.Date != want.Date || r.Student != want.Student ||
		!r.Payment.Amount.Equal(want.Payment.Amount) || r.Payment.Reference != want.Payment.Reference ||
		!r.Balance.Equal(want.Balance) || r.ProcessedBy != want.ProcessedBy || r.Status != want.Status {
		t.Errorf("GenerateReceipt() = %+v, want %+v", r, want)
	}

	// the balance is the live one
	pay(t, f.svc, "STU-1", 100000)
	r, _ = f.svc.GenerateReceipt(ctx, first.ID)
	if !r.Balance.IsZero() {
		t.Errorf("receipt balance = %s, want the current balance 0", r.Balance)
	}

	var out strings.Builder
	if err = r.Render(&out); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	for _, s := range []string{"RECEIPT " + first.ReceiptNumber, "Date: 2024-04-10", "Amani (STU-1)", "Amount:     50000", "For:        Term 2 fees"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("rendered receipt misses %q:\n%s", s, out.String())
		}
	}

	if _, err = f.svc.GenerateReceipt(ctx, "lol"); err != payment.ErrTransactionNotFound {
		t.Errorf("GenerateReceipt() error = %v, want %v", err, payment.ErrTransactionNotFound)
	}
}

func Test_service_SendPaymentReminder(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 150000)
	testutil.CreateStudent(t, f.repo, "STU-2", "Baraka", "S2", 0)
	testutil.CreateStudent(t, f.repo, "STU-3", "Chausiku", "S1", 1000)
	pay(t, f.svc, "STU-1", 50000)
	pay(t, f.svc, "STU-3", 1000)

	tests := []struct {
		name        string
		studentID   string
		notifyErr   error
		wantErr     error
		wantSuccess bool
		wantSent    int
	}{
		{name: "unknown student", studentID: "lol", wantErr: payment.ErrStudentNotFound},
		{name: "no fee", studentID: "STU-2"},
		{name: "fully paid", studentID: "STU-3"},
		{name: "delivery failed", studentID: "STU-1", notifyErr: errors.New("smtp down")},
		{name: "sent", studentID: "STU-1", wantSuccess: true, wantSent: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.notifier.Reset()
			f.notifier.Err = tt.notifyErr

			res, err := f.svc.SendPaymentReminder(context.Background(), tt.studentID)
			if err != tt.wantErr {
				t.Fatalf("SendPaymentReminder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Success != tt.wantSuccess {
				t.Errorf("SendPaymentReminder() = %+v, wantSuccess %v", res, tt.wantSuccess)
			}
			sent := f.notifier.Sent()
			if len(sent) != tt.wantSent {
				t.Fatalf("sent %d notifications, want %d", len(sent), tt.wantSent)
			}
			if tt.wantSent > 0 {
				n := sent[0]
				if len(n.To) != 1 || n.To[0].Address != "STU-1@parents.test" {
					t.Errorf("unexpected recipients %v", n.To)
				}
				if !strings.Contains(n.Body, "Balance due:    100000") {
					t.Errorf("unexpected body:\n%s", n.Body)
				}
			}
		})
	}
}

func Test_service_AssessFee(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 0)
	ctx := context.Background()

	if _, err := f.svc.AssessFee(ctx, "STU-1", dec(0)); err != student.ErrInvalidFee {
		t.Errorf("AssessFee() error = %v, want %v", err, student.ErrInvalidFee)
	}
	if _, err := f.svc.AssessFee(ctx, "lol", dec(10)); err != student.ErrNotFound {
		t.Errorf("AssessFee() error = %v, want %v", err, student.ErrNotFound)
	}

	s, err := f.svc.AssessFee(ctx, "STU-1", dec(100000))
	if err != nil {
		t.Fatalf("AssessFee() failed: %v", err)
	}
	checkProjection(t, s, 0, 100000, student.StatusUnpaid)

	pay(t, f.svc, "STU-1", 100000)
	s, _ = f.svc.AssessFee(ctx, "STU-1", dec(150000))
	checkProjection(t, s, 100000, 50000, student.StatusPartial)
}

func Test_service_Reconcile(t *testing.T) {
	f := setup(t)
	testutil.CreateStudent(t, f.repo, "STU-1", "Amani", "S4", 150000)
	testutil.CreateStudent(t, f.repo, "STU-2", "Baraka", "S2", 150000)
	testutil.CreateStudent(t, f.repo, "STU-3", "Chausiku", "S1", 0)
	ctx := context.Background()

	pay(t, f.svc, "STU-1", 50000)
	second := pay(t, f.svc, "STU-1", 100000)
	if _, err := f.svc.RefundPayment(ctx, second.ID, payment.Refund{Reason: "test"}); err != nil {
		t.Fatalf("RefundPayment() failed: %v", err)
	}
	pay(t, f.svc, "STU-2", 70000)

	rec, err := f.svc.Reconcile(ctx, "STU-1")
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if !rec.Consistent || rec.Diff() != "" {
		t.Errorf("Reconcile() = %+v, want consistent", rec)
	}

	// drift STU-2 behind the ledger's back
	drifted := testutil.GetStudent(t, f.repo, "STU-2")
	drifted.Payments.PaidAmount = dec(90000)
	drifted.Payments.Balance = dec(60000)
	if _, err = f.repo.UpdateStudent(ctx, drifted); err != nil {
		t.Fatalf("UpdateStudent() failed: %v", err)
	}

	rec, _ = f.svc.Reconcile(ctx, "STU-2")
	if rec.Consistent || !rec.Expected.PaidAmount.Equal(dec(70000)) {
		t.Errorf("Reconcile() = %+v, want drift detected", rec)
	}
	diff := rec.Diff()
	if !strings.Contains(diff, "-paidAmount: 90000") || !strings.Contains(diff, "+paidAmount: 70000") {
		t.Errorf("Diff() =\n%s", diff)
	}

	recs, err := f.svc.ReconcileAll(ctx, false)
	if err != nil {
		t.Fatalf("ReconcileAll() failed: %v", err)
	}
	if len(recs) != 3 || recs[1].StudentID != "STU-2" || recs[1].Consistent || recs[1].Fixed || !recs[2].Consistent {
		t.Errorf("ReconcileAll(false) = %+v", recs)
	}

	recs, _ = f.svc.ReconcileAll(ctx, true)
	if !recs[1].Fixed {
		t.Errorf("ReconcileAll(true) did not fix STU-2: %+v", recs[1])
	}
	checkProjection(t, testutil.GetStudent(t, f.repo, "STU-2"), 70000, 80000, student.StatusPartial)

	if _, err = f.svc.Reconcile(ctx, "lol"); err != payment.ErrStudentNotFound {
		t.Errorf("Reconcile() error = %v, want %v", err, payment.ErrStudentNotFound)
	}
}
