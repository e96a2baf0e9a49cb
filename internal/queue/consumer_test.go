package queue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/model"
)

type sentMail struct {
	to      []string
	subject string
	html    string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to []string, subject, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

func newConsumer(s *fakeSender) *Consumer {
	return &Consumer{
		FrontendURL: "https://journal.example/",
		Sender:      s,
		Dedupe:      NewMemoryDeduper(),
		Log:         zerolog.Nop(),
	}
}

func eventBody(t *testing.T) []byte {
	t.Helper()
	n := model.Notification{
		RecipientID: 7,
		Type:        model.NotifyArticleApproved,
		Message:     "Your submission was accepted.",
		Data:        model.NotificationData{SubmissionID: 3},
	}
	u := model.User{ID: 7, Email: "author@example.com"}
	ev, ok, err := NotificationEvent(n, u, "Submission accepted", "/submissions/3")
	if err != nil || !ok {
		t.Fatalf("NotificationEvent: ok=%v err=%v", ok, err)
	}
	return ev.Payload
}

func TestProcessSendsOncePerEvent(t *testing.T) {
	s := &fakeSender{}
	c := newConsumer(s)
	body := eventBody(t)

	for i := 0; i < 3; i++ {
		if err := c.Process(context.Background(), body); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(s.sent))
	}
	m := s.sent[0]
	if m.to[0] != "author@example.com" || m.subject != "Submission accepted" {
		t.Fatalf("unexpected mail %+v", m)
	}
	if !strings.Contains(m.html, "https://journal.example/submissions/3") {
		t.Fatal("link missing from body")
	}
}

func TestProcessReleasesClaimOnSendFailure(t *testing.T) {
	s := &fakeSender{err: errors.New("smtp down")}
	c := newConsumer(s)
	body := eventBody(t)

	if err := c.Process(context.Background(), body); err == nil {
		t.Fatal("expected error")
	}
	s.err = nil
	if err := c.Process(context.Background(), body); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d, want 1 after retry", len(s.sent))
	}
}

func TestProcessRejectsMalformed(t *testing.T) {
	c := newConsumer(&fakeSender{})
	if err := c.Process(context.Background(), []byte("{nope")); !errors.Is(err, errMalformed) {
		t.Fatalf("got %v", err)
	}
	if err := c.Process(context.Background(), []byte(`{"event_id":"x"}`)); !errors.Is(err, errMalformed) {
		t.Fatalf("missing recipient: got %v", err)
	}
}

func TestNotificationEventSkipsUsersWithoutEmail(t *testing.T) {
	_, ok, err := NotificationEvent(model.Notification{}, model.User{ID: 1}, "s", "")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}
