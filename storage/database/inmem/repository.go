package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

type repository struct {
	db *DB
	tx *tables // set inside InTx
}

var _ payment.Repository = (*repository)(nil) // interface compliance check

func NewRepository(db *DB) payment.Repository {
	return &repository{db: db}
}

func (repo *repository) view(fn func(t *tables)) {
	if repo.tx != nil {
		fn(repo.tx)
		return
	}
	repo.db.read(fn)
}

// write runs fn in the current transaction, or in a transaction of its own.
func (repo *repository) write(ctx context.Context, fn func(t *tables) error) error {
	if repo.tx != nil {
		return fn(repo.tx)
	}
	return repo.InTx(ctx, func(r payment.Repository) error {
		return fn(r.(*repository).tx)
	})
}

func (repo *repository) InTx(ctx context.Context, fn func(repo payment.Repository) error) error {
	if repo.tx != nil { // already in a transaction
		return fn(repo)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	tx := repo.db.begin()
	done := false
	defer func() {
		if !done { // error or panic in fn
			repo.db.rollback()
		}
	}()

	if err := fn(&repository{db: repo.db, tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	done = true
	repo.db.commit(tx)
	return nil
}

// Students

func (repo *repository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	err := repo.write(ctx, func(t *tables) error {
		if _, ok := t.students[s.ID]; ok {
			return student.ErrExists
		}
		t.students[s.ID] = s.Clone()
		return nil
	})
	if err != nil {
		return student.Student{}, err
	}
	return s, nil
}

func (repo *repository) GetStudent(_ context.Context, id string) (student.Student, error) {
	var s student.Student
	var ok bool
	repo.view(func(t *tables) {
		s, ok = t.students[id]
		s = s.Clone()
	})
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

func (repo *repository) LockStudent(ctx context.Context, id string) (student.Student, error) {
	// transactions are serialized by DB.writeMu
	return repo.GetStudent(ctx, id)
}

func (repo *repository) QueryStudents(_ context.Context) ([]student.Student, error) {
	var students []student.Student
	repo.view(func(t *tables) {
		students = make([]student.Student, 0, len(t.students))
		for _, s := range t.students {
			students = append(students, s.Clone())
		}
	})
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (repo *repository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	err := repo.write(ctx, func(t *tables) error {
		orig, ok := t.students[s.ID]
		if !ok {
			return student.ErrNotFound
		}
		s.CreatedAt = orig.CreatedAt
		t.students[s.ID] = s.Clone()
		return nil
	})
	if err != nil {
		return student.Student{}, err
	}
	return s, nil
}

// Transactions

func cloneTxn(txn payment.Transaction) payment.Transaction {
	if txn.RefundedAt != nil {
		at := *txn.RefundedAt
		txn.RefundedAt = &at
	}
	return txn
}

func (repo *repository) CreateTransaction(ctx context.Context, txn payment.Transaction) (payment.Transaction, error) {
	err := repo.write(ctx, func(t *tables) error {
		if _, ok := t.students[txn.StudentID]; !ok {
			return student.ErrNotFound
		}
		if _, ok := t.transactions[txn.ID]; ok {
			return core.NewStorageError("inserting transaction", errors.Errorf("duplicate id %s", txn.ID))
		}
		for _, other := range t.transactions {
			if other.StudentID == txn.StudentID && other.Reference == txn.Reference {
				return payment.ErrDuplicateReference
			}
			if other.ReceiptNumber == txn.ReceiptNumber {
				return core.NewStorageError("inserting transaction", errors.Errorf("duplicate receipt number %s", txn.ReceiptNumber))
			}
		}
		t.transactions[txn.ID] = cloneTxn(txn)
		return nil
	})
	if err != nil {
		return payment.Transaction{}, err
	}
	return txn, nil
}

func (repo *repository) GetTransaction(_ context.Context, id string) (payment.Transaction, error) {
	var txn payment.Transaction
	var ok bool
	repo.view(func(t *tables) {
		txn, ok = t.transactions[id]
	})
	if !ok {
		return payment.Transaction{}, payment.ErrTransactionNotFound
	}
	return cloneTxn(txn), nil
}

func (repo *repository) GetTransactionByReference(_ context.Context, studentID, reference string) (payment.Transaction, error) {
	var txn payment.Transaction
	var ok bool
	repo.view(func(t *tables) {
		for _, other := range t.transactions {
			if other.StudentID == studentID && other.Reference == reference {
				txn, ok = other, true
				return
			}
		}
	})
	if !ok {
		return payment.Transaction{}, payment.ErrTransactionNotFound
	}
	return cloneTxn(txn), nil
}

func (repo *repository) QueryTransactions(_ context.Context, filter payment.QueryFilter) ([]payment.Transaction, error) {
	txns := make([]payment.Transaction, 0)
	repo.view(func(t *tables) {
		for _, txn := range t.transactions {
			if matches(txn, filter) {
				txns = append(txns, cloneTxn(txn))
			}
		}
	})
	sortTransactions(txns, filter.Ordering)
	return txns, nil
}

func (repo *repository) UpdateTransaction(ctx context.Context, txn payment.Transaction) (payment.Transaction, error) {
	var updated payment.Transaction
	err := repo.write(ctx, func(t *tables) error {
		orig, ok := t.transactions[txn.ID]
		if !ok {
			return payment.ErrTransactionNotFound
		}
		// only the refund fields are mutable
		orig.Status = txn.Status
		orig.RefundedAt = txn.RefundedAt
		orig.RefundReason = txn.RefundReason
		orig.RefundedBy = txn.RefundedBy
		t.transactions[txn.ID] = cloneTxn(orig)
		updated = orig
		return nil
	})
	if err != nil {
		return payment.Transaction{}, err
	}
	return cloneTxn(updated), nil
}

func matches(txn payment.Transaction, filter payment.QueryFilter) bool {
	if filter.StudentID != "" && txn.StudentID != filter.StudentID {
		return false
	}
	if filter.Status != "" && txn.Status != filter.Status {
		return false
	}
	if filter.Method != "" && txn.PaymentMethod != filter.Method {
		return false
	}
	return filter.Window.Contains(txn.ProcessedAt)
}

func compareField(a, b payment.Transaction, field string) int {
	switch field {
	case "processedAt":
		switch {
		case a.ProcessedAt.Before(b.ProcessedAt):
			return -1
		case a.ProcessedAt.After(b.ProcessedAt):
			return 1
		}
		return 0
	case "amount":
		return a.Amount.Cmp(b.Amount)
	case "studentId":
		return strings.Compare(a.StudentID, b.StudentID)
	case "receiptNumber":
		return strings.Compare(a.ReceiptNumber, b.ReceiptNumber)
	}
	return 0
}

func sortTransactions(txns []payment.Transaction, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = payment.DefaultOrdering
	}
	sort.SliceStable(txns, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareField(txns[i], txns[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return txns[i].ID < txns[j].ID // v7 ids are time-ordered
	})
}
