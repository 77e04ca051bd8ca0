package payment

import (
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/student"
)

var (
	// errors
	ErrInvalidAmount       = errors.New("amount must be a positive number with at most 2 decimal places")
	ErrStudentNotFound     = student.ErrNotFound
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
	ErrNoFeeAssessed       = errors.New("no tuition fee assessed for this student")
	ErrDuplicateReference  = errors.New("a different payment with this reference already exists for this student")
	ErrOverpayment         = errors.New("payment exceeds the outstanding balance")
	ErrInvalidDateRange    = errors.New("start date must not be after end date")
)

// IsNotFound reports whether err means a missing student or transaction.
func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrStudentNotFound || cause == ErrTransactionNotFound
}

// IsConflict reports whether err is a business rule rejecting the current state.
func IsConflict(err error) bool {
	switch errors.Cause(err) {
	case ErrAlreadyRefunded, ErrNoFeeAssessed, ErrDuplicateReference, ErrOverpayment:
		return true
	}
	return false
}
