package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
	logsvc "github.com/trezcool/bursar/services/logger"
)

// NewLogger returns a logger that neither prints nor reports.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator wired with the app's custom tags and english translations.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate, translator
}

// CreateStudent saves a student; a zero fee leaves the student without payments projection.
func CreateStudent(
	t *testing.T,
	repo student.Repository,
	id, name, class string,
	tuitionFee int64,
	createdAt ...time.Time,
) student.Student {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	s := student.Student{
		ID:         id,
		Name:       name,
		Class:      class,
		Department: "Secondary",
		Email:      id + "@parents.test",
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if tuitionFee > 0 {
		s.Payments = student.NewPayments(decimal.NewFromInt(tuitionFee))
	}
	s, err := repo.CreateStudent(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

// GetStudent re-reads a student from repo.
func GetStudent(t *testing.T, repo student.Repository, id string) student.Student {
	t.Helper()

	s, err := repo.GetStudent(context.Background(), id)
	if err != nil {
		t.Fatalf("GetStudent() failed: %v", err)
	}
	return s
}

func Dec(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

// FixedNow returns a mockable clock func frozen at the given UTC instant.
func FixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
