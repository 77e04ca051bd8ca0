package gormrepos

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

// Open opens (and migrates) the SQLite database at path; ":memory:" gives a throw-away database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	// a single writer; also keeps ":memory:" on one connection
	sqlDB.SetMaxOpenConns(1)

	if err = db.AutoMigrate(&studentModel{}, &transactionModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrating sqlite database")
	}
	return db, nil
}

type repository struct {
	db   *gorm.DB
	inTx bool
}

var _ payment.Repository = (*repository)(nil) // interface compliance check

func NewRepository(db *gorm.DB) payment.Repository {
	return &repository{db: db}
}

func storageErr(err error, notFound error, op string) error {
	if notFound != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return core.NewStorageError(op, err)
}

func (repo *repository) InTx(ctx context.Context, fn func(repo payment.Repository) error) error {
	if repo.inTx {
		return fn(repo)
	}
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx, inTx: true})
	})
}

// Students

func (repo *repository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	m := toStudentModel(s)
	if err := repo.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return student.Student{}, student.ErrExists
		}
		return student.Student{}, storageErr(err, nil, "inserting student")
	}
	return m.student(), nil
}

func (repo *repository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var m studentModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return student.Student{}, storageErr(err, student.ErrNotFound, "finding student")
	}
	return m.student(), nil
}

// LockStudent is a plain read: SQLite transactions hold the database lock.
func (repo *repository) LockStudent(ctx context.Context, id string) (student.Student, error) {
	return repo.GetStudent(ctx, id)
}

func (repo *repository) QueryStudents(ctx context.Context) ([]student.Student, error) {
	var models []studentModel
	if err := repo.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, storageErr(err, nil, "querying students")
	}
	students := make([]student.Student, 0, len(models))
	for _, m := range models {
		students = append(students, m.student())
	}
	return students, nil
}

func (repo *repository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	m := toStudentModel(s)
	res := repo.db.WithContext(ctx).Model(&studentModel{}).Where("id = ?", m.ID).Select(
		"name", "class", "department", "email", "has_payments", "tuition_fee", "paid_amount", "balance",
		"status", "last_payment", "last_activity", "updated_at",
	).Updates(&m)
	if res.Error != nil {
		return student.Student{}, storageErr(res.Error, nil, "updating student")
	}
	if res.RowsAffected == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

// Transactions

func (repo *repository) CreateTransaction(ctx context.Context, txn payment.Transaction) (payment.Transaction, error) {
	db := repo.db.WithContext(ctx)

	var n int64
	if err := db.Model(&studentModel{}).Where("id = ?", txn.StudentID).Count(&n).Error; err != nil {
		return payment.Transaction{}, storageErr(err, nil, "checking student")
	}
	if n == 0 {
		return payment.Transaction{}, student.ErrNotFound
	}
	if err := db.Model(&transactionModel{}).Where("student_id = ? AND reference = ?", txn.StudentID, txn.Reference).Count(&n).Error; err != nil {
		return payment.Transaction{}, storageErr(err, nil, "checking reference")
	}
	if n > 0 {
		return payment.Transaction{}, payment.ErrDuplicateReference
	}

	m := toTransactionModel(txn)
	if err := db.Create(&m).Error; err != nil {
		return payment.Transaction{}, storageErr(err, nil, "inserting transaction")
	}
	return m.transaction(), nil
}

func (repo *repository) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	var m transactionModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return payment.Transaction{}, storageErr(err, payment.ErrTransactionNotFound, "finding transaction")
	}
	return m.transaction(), nil
}

func (repo *repository) GetTransactionByReference(ctx context.Context, studentID, reference string) (payment.Transaction, error) {
	var m transactionModel
	err := repo.db.WithContext(ctx).Where("student_id = ? AND reference = ?", studentID, reference).Take(&m).Error
	if err != nil {
		return payment.Transaction{}, storageErr(err, payment.ErrTransactionNotFound, "finding transaction by reference")
	}
	return m.transaction(), nil
}

func (repo *repository) QueryTransactions(ctx context.Context, filter payment.QueryFilter) ([]payment.Transaction, error) {
	q := repo.db.WithContext(ctx).Model(&transactionModel{})
	if filter.StudentID != "" {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Method != "" {
		q = q.Where("payment_method = ?", string(filter.Method))
	}
	if from := filter.Window.From; from != nil {
		q = q.Where("processed_at >= ?", from.Start())
	}
	if to := filter.Window.To; to != nil {
		q = q.Where("processed_at < ?", to.End())
	}

	ordering := filter.Ordering
	if len(ordering) == 0 {
		ordering = payment.DefaultOrdering
	}
	for _, ord := range ordering {
		col, ok := payment.OrderingFields[ord.Field]
		if !ok {
			continue
		}
		if col == "amount" { // stored as text
			col = "CAST(amount AS NUMERIC)"
		}
		if ord.Ascending {
			q = q.Order(col + " ASC")
		} else {
			q = q.Order(col + " DESC")
		}
	}
	q = q.Order("id ASC")

	var models []transactionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, storageErr(err, nil, "querying transactions")
	}
	txns := make([]payment.Transaction, 0, len(models))
	for _, m := range models {
		txns = append(txns, m.transaction())
	}
	return txns, nil
}

// UpdateTransaction only writes the refund fields.
func (repo *repository) UpdateTransaction(ctx context.Context, txn payment.Transaction) (payment.Transaction, error) {
	m := toTransactionModel(txn)
	res := repo.db.WithContext(ctx).Model(&transactionModel{}).Where("id = ?", m.ID).
		Select("status", "refunded_at", "refund_reason", "refunded_by").Updates(&m)
	if res.Error != nil {
		return payment.Transaction{}, storageErr(res.Error, nil, "updating transaction")
	}
	if res.RowsAffected == 0 {
		return payment.Transaction{}, payment.ErrTransactionNotFound
	}
	return repo.GetTransaction(ctx, m.ID)
}
