package notifysvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/sendgrid/rest"

	"github.com/trezcool/bursar/core"
)

var reminder = core.Notification{
	To:      []mail.Address{{Name: "Amani", Address: "amani@parents.test"}},
	Subject: "Payment reminder for Amani",
	Body:    "Balance due: 100000",
}

func Test_consoleNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := NewConsoleNotifier(core.NewTestConfig(), log.New(&buf, "", 0))

	if err := n.Notify(context.Background(), reminder); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Subject: [Bursar] Payment reminder for Amani",
		`To: "Amani" <amani@parents.test>`,
		"Balance due: 100000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

func TestNotifierMock(t *testing.T) {
	n := NewNotifierMock()
	_ = n.Notify(context.Background(), reminder)
	if got := n.Sent(); len(got) != 1 || got[0].Subject != reminder.Subject {
		t.Fatalf("Sent() = %v", got)
	}

	n.Err = errors.New("down")
	if err := n.Notify(context.Background(), reminder); err != n.Err {
		t.Errorf("Notify() error = %v, want %v", err, n.Err)
	}
	n.Reset()
	if len(n.Sent()) != 0 || n.Err != nil {
		t.Error("Reset() did not clear the mock")
	}
}

func Test_sendgridNotifier_Notify(t *testing.T) {
	origFunc := sendgridAPIFunc
	defer func() { sendgridAPIFunc = origFunc }()

	conf := core.NewTestConfig()
	conf.SendgridApiKey = "SG.key"
	n := NewSendgridNotifier(conf)

	var gotReq rest.Request
	tests := []struct {
		name    string
		msg     core.Notification
		status  int
		apiErr  error
		wantErr bool
	}{
		{name: "no recipients", msg: core.Notification{Subject: "x"}, wantErr: true},
		{name: "api error", msg: reminder, apiErr: errors.New("timeout"), wantErr: true},
		{name: "rejected", msg: reminder, status: http.StatusUnauthorized, wantErr: true},
		{name: "accepted", msg: reminder, status: http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
				gotReq = req
				if tt.apiErr != nil {
					return nil, tt.apiErr
				}
				return &rest.Response{StatusCode: tt.status}, nil
			}
			if err := n.Notify(context.Background(), tt.msg); (err != nil) != tt.wantErr {
				t.Errorf("Notify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	var body struct {
		Personalizations []struct {
			Subject string `json:"subject"`
		} `json:"personalizations"`
	}
	if err := json.Unmarshal(gotReq.Body, &body); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(body.Personalizations) != 1 || body.Personalizations[0].Subject != "[Bursar] Payment reminder for Amani" {
		t.Errorf("unexpected request body %s", gotReq.Body)
	}
	if gotReq.Headers["Authorization"] != "Bearer SG.key" {
		t.Errorf("unexpected Authorization header %q", gotReq.Headers["Authorization"])
	}
}

type fakeChannel struct {
	channelID string
	content   string
	err       error
}

func (f *fakeChannel) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID, f.content = channelID, content
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func Test_discordNotifier_Notify(t *testing.T) {
	fake := new(fakeChannel)
	n := discordNotifier{session: fake, channelID: "42"}

	if err := n.Notify(context.Background(), reminder); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if fake.channelID != "42" || !strings.HasPrefix(fake.content, "**Payment reminder for Amani**") {
		t.Errorf("unexpected message %q to %q", fake.content, fake.channelID)
	}

	long := reminder
	long.Body = strings.Repeat("x", 3*discordMaxMessageLen)
	_ = n.Notify(context.Background(), long)
	if len(fake.content) > discordMaxMessageLen {
		t.Errorf("message too long: %d", len(fake.content))
	}

	// multi-byte names and descriptions must not be split mid-rune
	for _, prefix := range []string{"", "x", "xx"} {
		long.Body = prefix + strings.Repeat("Zoë paid €", discordMaxMessageLen)
		_ = n.Notify(context.Background(), long)
		if len(fake.content) > discordMaxMessageLen || !utf8.ValidString(fake.content) || !strings.HasSuffix(fake.content, "…```") {
			t.Errorf("prefix %q: bad truncation (%d bytes, valid utf-8: %v)", prefix, len(fake.content), utf8.ValidString(fake.content))
		}
	}

	fake.err = errors.New("missing access")
	if err := n.Notify(context.Background(), reminder); err == nil {
		t.Error("Notify() expected an error")
	}
}
