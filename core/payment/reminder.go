package payment

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/student"
)

type reminderData struct {
	AppName string
	Student student.Student
}

// SendPaymentReminder hands a balance reminder to the notifier. Delivery problems are reported in the
// result, never as an error: only an unknown student (or a storage failure) is.
func (svc *service) SendPaymentReminder(ctx context.Context, studentID string) (ReminderResult, error) {
	s, err := svc.repo.GetStudent(ctx, core.CleanString(studentID))
	if err != nil {
		return ReminderResult{}, err
	}
	if !s.HasFee() {
		return ReminderResult{Message: ErrNoFeeAssessed.Error()}, nil
	}
	if !s.Payments.Balance.IsPositive() {
		return ReminderResult{Message: "nothing due: fees are fully paid"}, nil
	}

	var body strings.Builder
	if err = templates.ExecuteTemplate(&body, "reminder.txt", reminderData{AppName: svc.appName, Student: s}); err != nil {
		return ReminderResult{}, errors.Wrap(err, "rendering reminder")
	}
	n := core.Notification{
		Subject: fmt.Sprintf("Payment reminder for %s", s.Name),
		Body:    body.String(),
	}
	if s.Email != "" {
		n.To = []mail.Address{{Name: s.Name, Address: s.Email}}
	}

	if err = svc.notifier.Notify(ctx, n); err != nil {
		svc.logger.Error(fmt.Sprintf("sending payment reminder to %s: %v", s.ID, err), err)
		return ReminderResult{Message: "reminder could not be delivered"}, nil
	}
	return ReminderResult{Success: true, Message: fmt.Sprintf("reminder sent for an outstanding balance of %s", s.Payments.Balance)}, nil
}
