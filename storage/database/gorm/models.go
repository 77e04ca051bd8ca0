package gormrepos

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

// Decimals are stored as TEXT: SQLite keeps NUMERIC values with a fraction as REAL, which would not round-trip.
type (
	studentModel struct {
		ID           string          `gorm:"primaryKey;size:64"`
		Name         string          `gorm:"size:255;not null"`
		Class        string          `gorm:"size:64;not null;default:''"`
		Department   string          `gorm:"size:128;not null;default:''"`
		Email        *string         `gorm:"size:255"`
		HasPayments  bool            `gorm:"not null;default:false"`
		TuitionFee   decimal.Decimal `gorm:"type:text;not null;default:'0'"`
		PaidAmount   decimal.Decimal `gorm:"type:text;not null;default:'0'"`
		Balance      decimal.Decimal `gorm:"type:text;not null;default:'0'"`
		Status       *string         `gorm:"size:16"`
		LastPayment  *datatypes.Date
		LastActivity *datatypes.Date
		CreatedAt    time.Time `gorm:"not null;autoCreateTime:false"`
		UpdatedAt    time.Time `gorm:"not null;autoUpdateTime:false"`
	}

	transactionModel struct {
		ID            string          `gorm:"primaryKey;size:36"`
		StudentID     string          `gorm:"size:64;not null;uniqueIndex:payment_transactions_student_reference_key,priority:1"`
		Amount        decimal.Decimal `gorm:"type:text;not null"`
		PaymentMethod string          `gorm:"size:32;not null"`
		Reference     string          `gorm:"size:64;not null;uniqueIndex:payment_transactions_student_reference_key,priority:2"`
		Description   string          `gorm:"size:255;not null;default:''"`
		AcademicYear  string          `gorm:"size:16;not null;default:''"`
		Term          string          `gorm:"size:32;not null;default:''"`
		Status        string          `gorm:"size:16;not null;default:completed"`
		ProcessedBy   string          `gorm:"size:128;not null"`
		ProcessedAt   time.Time       `gorm:"not null;index"`
		ReceiptNumber string          `gorm:"size:32;not null;uniqueIndex"`
		RefundedAt    *time.Time
		RefundReason  *string `gorm:"size:255"`
		RefundedBy    *string `gorm:"size:128"`
	}
)

func (studentModel) TableName() string     { return "students" }
func (transactionModel) TableName() string { return "payment_transactions" }

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optDate(d *core.Date) *datatypes.Date {
	if d == nil {
		return nil
	}
	v := datatypes.Date(d.Start())
	return &v
}

func dateOf(d *datatypes.Date) *core.Date {
	if d == nil {
		return nil
	}
	v := core.DateOf(time.Time(*d))
	return &v
}

func toStudentModel(s student.Student) studentModel {
	m := studentModel{
		ID:         s.ID,
		Name:       s.Name,
		Class:      s.Class,
		Department: s.Department,
		Email:      optString(s.Email),
		CreatedAt:  s.CreatedAt.UTC(),
		UpdatedAt:  s.UpdatedAt.UTC(),
	}
	if p := s.Payments; p != nil {
		m.HasPayments = true
		m.TuitionFee = p.TuitionFee
		m.PaidAmount = p.PaidAmount
		m.Balance = p.Balance
		m.Status = optString(string(p.Status))
		m.LastPayment = optDate(p.LastPayment)
		m.LastActivity = optDate(p.LastActivity)
	}
	return m
}

func (m studentModel) student() student.Student {
	s := student.Student{
		ID:         m.ID,
		Name:       m.Name,
		Class:      m.Class,
		Department: m.Department,
		Email:      strOf(m.Email),
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
	if m.HasPayments {
		s.Payments = &student.Payments{
			TuitionFee:   m.TuitionFee,
			PaidAmount:   m.PaidAmount,
			Balance:      m.Balance,
			Status:       student.Status(strOf(m.Status)),
			LastPayment:  dateOf(m.LastPayment),
			LastActivity: dateOf(m.LastActivity),
		}
	}
	return s
}

func toTransactionModel(txn payment.Transaction) transactionModel {
	m := transactionModel{
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
		RefundReason:  optString(txn.RefundReason),
		RefundedBy:    optString(txn.RefundedBy),
	}
	if txn.RefundedAt != nil {
		at := txn.RefundedAt.UTC()
		m.RefundedAt = &at
	}
	return m
}

func (m transactionModel) transaction() payment.Transaction {
	txn := payment.Transaction{
		ID:            m.ID,
		StudentID:     m.StudentID,
		Amount:        m.Amount,
		PaymentMethod: payment.Method(m.PaymentMethod),
		Reference:     m.Reference,
		Description:   m.Description,
		AcademicYear:  m.AcademicYear,
		Term:          m.Term,
		Status:        payment.Status(m.Status),
		ProcessedBy:   m.ProcessedBy,
		ProcessedAt:   m.ProcessedAt.UTC(),
		ReceiptNumber: m.ReceiptNumber,
		RefundReason:  strOf(m.RefundReason),
		RefundedBy:    strOf(m.RefundedBy),
	}
	if m.RefundedAt != nil {
		at := m.RefundedAt.UTC()
		txn.RefundedAt = &at
	}
	return txn
}
