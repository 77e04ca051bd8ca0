package notifysvc

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/bursar/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"

	sendgridAPIFunc = sendgrid.API // mockable

	errNoRecipients = errors.New("notification has no recipients")
)

type sendgridNotifier struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ core.Notifier = (*sendgridNotifier)(nil)

// NewSendgridNotifier emails notifications to their recipients.
func NewSendgridNotifier(conf *core.Config) core.Notifier {
	from := conf.DefaultFromEmail()
	return &sendgridNotifier{
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (n sendgridNotifier) prepare(msg core.Notification) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = n.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(n.getSGEmail(to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return m
}

func (n sendgridNotifier) getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (n sendgridNotifier) Notify(ctx context.Context, msg core.Notification) error {
	if !msg.HasRecipients() {
		return errNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(n.key, endpoint, host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(n.prepare(msg))

	res, err := sendgridAPIFunc(req)
	if err != nil {
		return errors.Wrap(err, "sending email")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email - status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}
