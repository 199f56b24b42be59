package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"citefleurie/pkg/mailer"
)

func validSubmission() ContactSubmission {
	return ContactSubmission{
		Name:      "Ana Martin",
		Email:     "ana@example.com",
		Phone:     "079 123 45 67",
		Subject:   "Réservation",
		Message:   "Bonjour,\nune table pour 4 samedi soir ?",
		ClientIP:  "203.0.113.5",
		UserAgent: "test-agent",
	}
}

func TestSubmitContactSendsNotificationThenConfirmation(t *testing.T) {
	env := newTestEnv(t)
	msg, err := env.app.SubmitContact(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	sent := env.mailer.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(sent))
	}
	notification, confirmation := sent[0], sent[1]
	if notification.To != "owner@example.com" || notification.ReplyTo != "ana@example.com" || notification.From != "site@example.com" {
		t.Fatalf("unexpected notification envelope: %+v", notification)
	}
	if !strings.Contains(notification.Subject, "Ana Martin") {
		t.Fatalf("notification subject = %q", notification.Subject)
	}
	if !strings.Contains(notification.TextBody, "une table pour 4") || !strings.Contains(notification.HTMLBody, "079 123 45 67") {
		t.Fatal("notification body misses submission fields")
	}
	if confirmation.To != "ana@example.com" || confirmation.ReplyTo != "" {
		t.Fatalf("unexpected confirmation envelope: %+v", confirmation)
	}
	stored, ok, err := env.store.GetContactMessage(context.Background(), msg.ID)
	if err != nil || !ok {
		t.Fatalf("stored message missing: ok=%v err=%v", ok, err)
	}
	if stored.Meta["clientIp"] != "203.0.113.5" {
		t.Fatalf("meta = %+v", stored.Meta)
	}
}

func TestSubmitContactEscapesHTML(t *testing.T) {
	env := newTestEnv(t)
	in := validSubmission()
	in.Message = "<script>alert(1)</script>"
	if _, err := env.app.SubmitContact(context.Background(), in); err != nil {
		t.Fatalf("submit: %v", err)
	}
	body := env.mailer.messages()[0].HTMLBody
	if strings.Contains(body, "<script>") {
		t.Fatalf("html body not escaped: %s", body)
	}
}

func TestSubmitContactValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]func(*ContactSubmission){
		"missing email":   func(s *ContactSubmission) { s.Email = "" },
		"missing name":    func(s *ContactSubmission) { s.Name = "  " },
		"missing message": func(s *ContactSubmission) { s.Message = "" },
		"bad email":       func(s *ContactSubmission) { s.Email = "ana at example" },
		"display name":    func(s *ContactSubmission) { s.Email = "Ana <ana@example.com>" },
		"header newline":  func(s *ContactSubmission) { s.Subject = "hi\r\nBcc: x@example.com" },
		"long message":    func(s *ContactSubmission) { s.Message = strings.Repeat("a", maxMessageLen+1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validSubmission()
			mutate(&in)
			if _, err := env.app.SubmitContact(context.Background(), in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if n := env.store.ContactMessageCount(); n != 0 {
		t.Fatalf("validation failures stored %d messages", n)
	}
	if len(env.mailer.messages()) != 0 {
		t.Fatal("validation failures sent email")
	}
}

func TestSubmitContactStorageFailureSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.store.failSaveContact = true
	if _, err := env.app.SubmitContact(context.Background(), validSubmission()); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(env.mailer.messages()) != 0 {
		t.Fatal("email sent for an unrecorded message")
	}
}

func TestSubmitContactRelayDownKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.fail = func(mailer.Message) error { return errors.New("dial tcp: connection refused") }

	msg, err := env.app.SubmitContact(context.Background(), validSubmission())
	if !errors.Is(err, ErrEmail) {
		t.Fatalf("expected ErrEmail, got %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected the recorded message to be returned")
	}
	if _, ok, _ := env.store.GetContactMessage(context.Background(), msg.ID); !ok {
		t.Fatal("message must stay recorded when the relay is down")
	}
}

func TestSubmitContactConfirmationFailureIsEmailError(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.fail = func(m mailer.Message) error {
		if m.To == "ana@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}
	_, err := env.app.SubmitContact(context.Background(), validSubmission())
	if !errors.Is(err, ErrEmail) {
		t.Fatalf("expected ErrEmail, got %v", err)
	}
	if sent := env.mailer.messages(); len(sent) != 1 || sent[0].To != "owner@example.com" {
		t.Fatalf("expected only the notification to go out, got %+v", sent)
	}
}
