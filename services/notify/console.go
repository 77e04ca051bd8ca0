package notifysvc

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/bursar/core"
)

type consoleNotifier struct {
	from          mail.Address
	subjPrefix    string
	out           *log.Logger
	disableOutput bool
}

var _ core.Notifier = (*consoleNotifier)(nil)

// NewConsoleNotifier prints notifications instead of delivering them.
func NewConsoleNotifier(conf *core.Config, out *log.Logger) core.Notifier {
	return &consoleNotifier{
		from:       conf.DefaultFromEmail(),
		subjPrefix: "[" + conf.AppName + "] ",
		out:        out,
	}
}

func (n consoleNotifier) Notify(_ context.Context, msg core.Notification) error {
	if n.disableOutput {
		return nil
	}
	n.out.Println(n.format(msg))
	return nil
}

func (n consoleNotifier) format(msg core.Notification) string {
	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "From: %s\r\n", n.from.String())
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", n.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	_, _ = fmt.Fprint(body, "Content-Type: text/plain\r\n\r\n")
	_, _ = fmt.Fprintf(body, "%s\r\n", msg.Body)
	return body.String()
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// NotifierMock records notifications instead of printing them; Err, when set, is returned by Notify.
type NotifierMock struct {
	mu   sync.Mutex
	sent []core.Notification
	Err  error
}

var _ core.Notifier = (*NotifierMock)(nil)

func NewNotifierMock() *NotifierMock {
	return new(NotifierMock)
}

func (n *NotifierMock) Notify(_ context.Context, msg core.Notification) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *NotifierMock) Sent() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.sent...)
}

func (n *NotifierMock) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
	n.Err = nil
}
