package student_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
	"github.com/trezcool/bursar/tests"
)

func Test_service_Create(t *testing.T) {
	repo := inmemdb.NewRepository(inmemdb.Open())
	svc := student.NewService(repo)
	testutil.CreateStudent(t, repo, "STU-1", "Amani", "S4", 0)

	fee := decimal.NewFromInt(150000)
	zero := decimal.Zero
	subCent := decimal.RequireFromString("150000.001")
	tests := []struct {
		name        string
		ns          student.NewStudent
		wantErr     error
		wantPayment bool
	}{
		{name: "existing id", ns: student.NewStudent{ID: "STU-1", Name: "Amani"}, wantErr: student.ErrExists},
		{name: "zero fee", ns: student.NewStudent{ID: "STU-2", Name: "Baraka", TuitionFee: &zero}, wantErr: student.ErrInvalidFee},
		{name: "fraction of a cent", ns: student.NewStudent{ID: "STU-2", Name: "Baraka", TuitionFee: &subCent}, wantErr: student.ErrInvalidFee},
		{name: "without fee", ns: student.NewStudent{ID: "STU-2", Name: "Baraka", Class: "S2"}},
		{name: "with fee", ns: student.NewStudent{ID: "STU-3", Name: "Chausiku", TuitionFee: &fee}, wantPayment: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := svc.Create(context.Background(), tt.ns)
			if tt.wantErr != nil {
				if vErr, ok := err.(*core.ValidationError); ok {
					err = vErr.Err
				}
				if errors.Cause(err) != tt.wantErr {
					t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() failed: %v", err)
			}
			if s.CreatedAt.IsZero() || s.ID != tt.ns.ID {
				t.Errorf("unexpected student %+v", s)
			}
			if got := s.HasFee(); got != tt.wantPayment {
				t.Fatalf("HasFee() = %v, want %v", got, tt.wantPayment)
			}
			if tt.wantPayment && (s.Payments.Status != student.StatusUnpaid || !s.Payments.Balance.Equal(fee)) {
				t.Errorf("unexpected projection %+v", s.Payments)
			}
		})
	}

	students, err := svc.Query(context.Background())
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(students) != 3 || students[0].ID != "STU-1" || students[2].ID != "STU-3" {
		t.Errorf("Query() = %+v", students)
	}
}

func Test_service_GetByID(t *testing.T) {
	repo := inmemdb.NewRepository(inmemdb.Open())
	svc := student.NewService(repo)
	testutil.CreateStudent(t, repo, "STU-1", "Amani", "S4", 1000)

	if s, err := svc.GetByID(context.Background(), " STU-1 "); err != nil || s.Name != "Amani" {
		t.Errorf("GetByID() = %+v, %v", s, err)
	}
	if _, err := svc.GetByID(context.Background(), "lol"); err != student.ErrNotFound {
		t.Errorf("GetByID() error = %v, want %v", err, student.ErrNotFound)
	}
}
