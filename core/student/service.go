package student

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/bursar/core"
)

var (
	// errors
	ErrNotFound   = errors.New("student not found")
	ErrExists     = errors.New("a student with this id already exists")
	ErrInvalidFee = errors.New("tuition fee must be greater than 0 with at most 2 decimal places")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context) ([]Student, error)
		// UpdateStudent saves every field of s, payments projection included.
		UpdateStudent(ctx context.Context, s Student) (Student, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewStudent) (Student, error)
		GetByID(ctx context.Context, id string) (Student, error)
		Query(ctx context.Context) ([]Student, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := nowFunc().UTC()
	s := Student{
		ID:         ns.ID,
		Name:       ns.Name,
		Class:      ns.Class,
		Department: ns.Department,
		Email:      ns.Email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if ns.TuitionFee != nil {
		if !ns.TuitionFee.IsPositive() || !core.IsMoney(*ns.TuitionFee) {
			return Student{}, ErrInvalidFee
		}
		s.Payments = NewPayments(*ns.TuitionFee)
	}
	if _, err := svc.repo.GetStudent(ctx, s.ID); err == nil {
		return Student{}, core.NewValidationError(ErrExists, core.FieldError{Field: "id", Error: ErrExists.Error()})
	} else if err != ErrNotFound {
		return Student{}, err
	}
	return svc.repo.CreateStudent(ctx, s)
}

func (svc *service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, core.CleanString(id))
}

func (svc *service) Query(ctx context.Context) ([]Student, error) {
	return svc.repo.QueryStudents(ctx)
}
