package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const (
	studentColumns = `id, name, class, department, email, has_payments, tuition_fee, paid_amount, balance, status,
		last_payment, last_activity, created_at, updated_at`
	transactionColumns = `id, student_id, amount, payment_method, reference, description, academic_year, term, status,
		processed_by, processed_at, receipt_number, refunded_at, refund_reason, refunded_by`
)

type (
	studentRow struct {
		ID           string          `db:"id"`
		Name         string          `db:"name"`
		Class        string          `db:"class"`
		Department   string          `db:"department"`
		Email        null.String     `db:"email"`
		HasPayments  bool            `db:"has_payments"`
		TuitionFee   decimal.Decimal `db:"tuition_fee"`
		PaidAmount   decimal.Decimal `db:"paid_amount"`
		Balance      decimal.Decimal `db:"balance"`
		Status       null.String     `db:"status"`
		LastPayment  null.Time       `db:"last_payment"`
		LastActivity null.Time       `db:"last_activity"`
		CreatedAt    time.Time       `db:"created_at"`
		UpdatedAt    time.Time       `db:"updated_at"`
	}

	transactionRow struct {
		ID            string          `db:"id"`
		StudentID     string          `db:"student_id"`
		Amount        decimal.Decimal `db:"amount"`
		PaymentMethod string          `db:"payment_method"`
		Reference     string          `db:"reference"`
		Description   string          `db:"description"`
		AcademicYear  string          `db:"academic_year"`
		Term          string          `db:"term"`
		Status        string          `db:"status"`
		ProcessedBy   string          `db:"processed_by"`
		ProcessedAt   time.Time       `db:"processed_at"`
		ReceiptNumber string          `db:"receipt_number"`
		RefundedAt    null.Time       `db:"refunded_at"`
		RefundReason  null.String     `db:"refund_reason"`
		RefundedBy    null.String     `db:"refunded_by"`
	}
)

func dateOrNull(d *core.Date) null.Time {
	if d == nil {
		return null.Time{}
	}
	return null.TimeFrom(d.Start())
}

func nullDate(t null.Time) *core.Date {
	if !t.Valid {
		return nil
	}
	d := core.DateOf(t.Time)
	return &d
}

func toStudentRow(s student.Student) studentRow {
	row := studentRow{
		ID:         s.ID,
		Name:       s.Name,
		Class:      s.Class,
		Department: s.Department,
		Email:      null.NewString(s.Email, s.Email != ""),
		CreatedAt:  s.CreatedAt.UTC(),
		UpdatedAt:  s.UpdatedAt.UTC(),
	}
	if p := s.Payments; p != nil {
		row.HasPayments = true
		row.TuitionFee = p.TuitionFee
		row.PaidAmount = p.PaidAmount
		row.Balance = p.Balance
		row.Status = null.StringFrom(string(p.Status))
		row.LastPayment = dateOrNull(p.LastPayment)
		row.LastActivity = dateOrNull(p.LastActivity)
	}
	return row
}

func (row studentRow) student() student.Student {
	s := student.Student{
		ID:         row.ID,
		Name:       row.Name,
		Class:      row.Class,
		Department: row.Department,
		Email:      row.Email.String,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.HasPayments {
		s.Payments = &student.Payments{
			TuitionFee:   row.TuitionFee,
			PaidAmount:   row.PaidAmount,
			Balance:      row.Balance,
			Status:       student.Status(row.Status.String),
			LastPayment:  nullDate(row.LastPayment),
			LastActivity: nullDate(row.LastActivity),
		}
	}
	return s
}

func toTransactionRow(txn payment.Transaction) transactionRow {
	return transactionRow{
		ID:            txn.ID,
		StudentID:     txn.StudentID,
		Amount:        txn.Amount,
		PaymentMethod: string(txn.PaymentMethod),
		Reference:     txn.Reference,
		Description:   txn.Description,
		AcademicYear:  txn.AcademicYear,
		Term:          txn.Term,
		Status:        string(txn.Status),
		ProcessedBy:   txn.ProcessedBy,
		ProcessedAt:   txn.ProcessedAt.UTC(),
		ReceiptNumber: txn.ReceiptNumber,
		RefundedAt:    null.TimeFromPtr(txn.RefundedAt),
		RefundReason:  null.NewString(txn.RefundReason, txn.RefundReason != ""),
		RefundedBy:    null.NewString(txn.RefundedBy, txn.RefundedBy != ""),
	}
}

func (row transactionRow) transaction() payment.Transaction {
	txn := payment.Transaction{
		ID:            row.ID,
		StudentID:     row.StudentID,
		Amount:        row.Amount,
		PaymentMethod: payment.Method(row.PaymentMethod),
		Reference:     row.Reference,
		Description:   row.Description,
		AcademicYear:  row.AcademicYear,
		Term:          row.Term,
		Status:        payment.Status(row.Status),
		ProcessedBy:   row.ProcessedBy,
		ProcessedAt:   row.ProcessedAt.UTC(),
		ReceiptNumber: row.ReceiptNumber,
		RefundReason:  row.RefundReason.String,
		RefundedBy:    row.RefundedBy.String,
	}
	if row.RefundedAt.Valid {
		at := row.RefundedAt.Time.UTC()
		txn.RefundedAt = &at
	}
	return txn
}

// repository stores students and their ledger in Postgres.
type repository struct {
	db   *sqlx.DB
	exec sqlx.ExtContext // db, or tx inside InTx
	tx   *sqlx.Tx
}

var _ payment.Repository = (*repository)(nil) // interface compliance check

func NewRepository(db *sqlx.DB) payment.Repository {
	return &repository{db: db, exec: db}
}

// trapNoRowsErr maps "no rows" to notFound
func trapNoRowsErr(err error, notFound error, op string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return core.NewStorageError(op, err)
}

func (repo *repository) InTx(ctx context.Context, fn func(repo payment.Repository) error) (err error) {
	if repo.tx != nil { // already in a transaction
		return fn(repo)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.NewStorageError("beginning transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&repository{db: repo.db, exec: tx, tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return core.NewStorageError("committing transaction", err)
	}
	return nil
}

// Students

func (repo *repository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	q := `INSERT INTO students (` + studentColumns + `) VALUES (:id, :name, :class, :department, :email, :has_payments,
		:tuition_fee, :paid_amount, :balance, :status, :last_payment, :last_activity, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, toStudentRow(s)); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return student.Student{}, student.ErrExists
		}
		return student.Student{}, core.NewStorageError("inserting student", err)
	}
	return s, nil
}

func (repo *repository) getStudent(ctx context.Context, id string, forUpdate bool) (student.Student, error) {
	q := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var row studentRow
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}
	return row.student(), nil
}

func (repo *repository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.getStudent(ctx, id, false)
}

// LockStudent holds the student row until the surrounding transaction ends.
func (repo *repository) LockStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.getStudent(ctx, id, repo.tx != nil)
}

func (repo *repository) QueryStudents(ctx context.Context) ([]student.Student, error) {
	var rows []studentRow
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, `SELECT `+studentColumns+` FROM students ORDER BY id`); err != nil {
		return nil, core.NewStorageError("querying students", err)
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *repository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	q := `UPDATE students SET name = :name, class = :class, department = :department, email = :email,
		has_payments = :has_payments, tuition_fee = :tuition_fee, paid_amount = :paid_amount, balance = :balance,
		status = :status, last_payment = :last_payment, last_activity = :last_activity, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.exec, q, toStudentRow(s))
	if err != nil {
		return student.Student{}, core.NewStorageError("updating student", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return student.Student{}, core.NewStorageError("updating student", err)
	} else if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

// Transactions

func (repo *repository) CreateTransaction(ctx context.Context, txn payment.Transaction) (payment.Transaction, error) {
	q := `INSERT INTO payment_transactions (` + transactionColumns + `) VALUES (:id, :student_id, :amount, :payment_method,
		:reference, :description, :academic_year, :term, :status, :processed_by, :processed_at, :receipt_number,
		:refunded_at, :refund_reason, :refunded_by)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, toTransactionRow(txn)); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
			switch {
			case pqErr.Code == foreignKeyViolation:
				return payment.Transaction{}, student.ErrNotFound
			case pqErr.Code == uniqueViolation && pqErr.Constraint == "payment_transactions_student_reference_key":
				return payment.Transaction{}, payment.ErrDuplicateReference
			}
		}
		return payment.Transaction{}, core.NewStorageError("inserting transaction", err)
	}
	return txn, nil
}

func (repo *repository) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payment.Transaction{}, payment.ErrTransactionNotFound
	}
	var row transactionRow
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return payment.Transaction{}, trapNoRowsErr(err, payment.ErrTransactionNotFound, "finding transaction")
	}
	return row.transaction(), nil
}

func (repo *repository) GetTransactionByReference(ctx context.Context, studentID, reference string) (payment.Transaction, error) {
	var row transactionRow
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE student_id = $1 AND reference = $2`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, studentID, reference); err != nil {
		return payment.Transaction{}, trapNoRowsErr(err, payment.ErrTransactionNotFound, "finding transaction by reference")
	}
	return row.transaction(), nil
}

func orderBy(ordering []core.DBOrdering) string {
	if len(ordering) == 0 {
		ordering = payment.DefaultOrdering
	}
	cols := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := payment.OrderingFields[ord.Field]
		if !ok {
			continue
		}
		if ord.Ascending {
			cols = append(cols, col+" ASC")
		} else {
			cols = append(cols, col+" DESC")
		}
	}
	return strings.Join(append(cols, "id ASC"), ", ")
}

func (repo *repository) QueryTransactions(ctx context.Context, filter payment.QueryFilter) ([]payment.Transaction, error) {
	var where []string
	var args []interface{}
	if filter.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Method != "" {
		where = append(where, "payment_method = ?")
		args = append(args, string(filter.Method))
	}
	if from := filter.Window.From; from != nil {
		where = append(where, "processed_at >= ?")
		args = append(args, from.Start())
	}
	if to := filter.Window.To; to != nil {
		where = append(where, "processed_at < ?")
		args = append(args, to.End())
	}

	q := `SELECT ` + transactionColumns + ` FROM payment_transactions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY %s`, orderBy(filter.Ordering))

	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, core.NewStorageError("querying transactions", err)
	}
	txns := make([]payment.Transaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, row.transaction())
	}
	return txns, nil
}

// UpdateTransaction only writes the refund fields.
func (repo *repository) UpdateTransaction(ctx context.Context, txn payment.Transaction) (payment.Transaction, error) {
	if _, err := uuid.Parse(txn.ID); err != nil {
		return payment.Transaction{}, payment.ErrTransactionNotFound
	}
	q := `UPDATE payment_transactions SET status = :status, refunded_at = :refunded_at, refund_reason = :refund_reason,
		refunded_by = :refunded_by WHERE id = :id RETURNING ` + transactionColumns
	q, args, err := sqlx.Named(q, toTransactionRow(txn))
	if err != nil {
		return payment.Transaction{}, core.NewStorageError("updating transaction", err)
	}
	var row transactionRow
	if err = sqlx.GetContext(ctx, repo.exec, &row, repo.db.Rebind(q), args...); err != nil {
		return payment.Transaction{}, trapNoRowsErr(err, payment.ErrTransactionNotFound, "updating transaction")
	}
	return row.transaction(), nil
}
