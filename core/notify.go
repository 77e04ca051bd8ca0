package core

import (
	"context"
	"net/mail"
)

type Notification struct {
	To      []mail.Address
	Subject string
	Body    string // text/plain
}

func (n Notification) HasRecipients() bool { return len(n.To) > 0 }

// Notifier delivers notifications to guardians or staff channels.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
