package app

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"citefleurie/internal/util"
	"citefleurie/pkg/domain"
	"citefleurie/pkg/mailer"
)

const (
	maxNameLen    = 200
	maxSubjectLen = 200
	maxPhoneLen   = 50
	maxMessageLen = 5000
)

// ContactSubmission is one public contact form post.
type ContactSubmission struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	ClientIP  string `json:"-"`
	UserAgent string `json:"-"`
}

// SubmitContact records the message, then notifies the operator and finally
// confirms to the visitor. The record is written before any email; when a
// send fails the returned message is still stored and the error wraps ErrEmail.
func (a *App) SubmitContact(ctx context.Context, in ContactSubmission) (domain.ContactMessage, error) {
	msg, err := a.validateContact(in)
	if err != nil {
		return domain.ContactMessage{}, err
	}

	saveCtx, cancel := a.bounded(ctx)
	saved, err := a.store.SaveContactMessage(saveCtx, msg)
	cancel()
	if err != nil {
		return domain.ContactMessage{}, storageErr("could not record message", err)
	}
	logger := util.LoggerFromContext(ctx).With("contact_id", saved.ID)

	notification, err := a.notificationEmail(saved)
	if err != nil {
		logger.Error("contact_email_failed", "stage", "render", "err", err)
		return saved, emailErr("message recorded but notification email failed", err)
	}
	if err := a.send(ctx, notification); err != nil {
		logger.Error("contact_email_failed", "stage", "notification", "err", err)
		return saved, emailErr("message recorded but notification email failed", err)
	}

	confirmation, err := a.confirmationEmail(saved)
	if err == nil {
		err = a.send(ctx, confirmation)
	}
	if err != nil {
		logger.Error("contact_email_failed", "stage", "confirmation", "err", err)
		return saved, emailErr("message recorded but confirmation email failed", err)
	}
	logger.Info("contact_message_sent")
	return saved, nil
}

func (a *App) send(ctx context.Context, msg mailer.Message) error {
	ctx, cancel := a.bounded(ctx)
	defer cancel()
	return a.mailer.Send(ctx, msg)
}

func (a *App) validateContact(in ContactSubmission) (domain.ContactMessage, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	message := strings.TrimSpace(in.Message)
	phone := strings.TrimSpace(in.Phone)
	subject := strings.TrimSpace(in.Subject)

	switch {
	case name == "":
		return domain.ContactMessage{}, validationf("name is required")
	case email == "":
		return domain.ContactMessage{}, validationf("email is required")
	case message == "":
		return domain.ContactMessage{}, validationf("message is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.ContactMessage{}, validationf("email is not a valid address")
	}
	if strings.ContainsAny(name+subject+phone, "\r\n") {
		return domain.ContactMessage{}, validationf("name, subject and phone must be a single line")
	}
	for _, f := range []struct {
		field string
		value string
		max   int
	}{
		{"name", name, maxNameLen},
		{"subject", subject, maxSubjectLen},
		{"phone", phone, maxPhoneLen},
		{"message", message, maxMessageLen},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return domain.ContactMessage{}, validationf("%s is too long (max %d characters)", f.field, f.max)
		}
	}

	meta := map[string]string{}
	if ip := strings.TrimSpace(in.ClientIP); ip != "" {
		meta["clientIp"] = ip
	}
	if ua := strings.TrimSpace(in.UserAgent); ua != "" {
		if len(ua) > 512 {
			ua = ua[:512]
		}
		meta["userAgent"] = ua
	}
	return domain.ContactMessage{
		Name:      name,
		Email:     email,
		Phone:     phone,
		Subject:   subject,
		Message:   message,
		Meta:      meta,
		CreatedAt: a.now().UTC(),
	}, nil
}

func (a *App) notificationEmail(msg domain.ContactMessage) (mailer.Message, error) {
	htmlBody, textBody, err := renderContactEmail(notificationTemplate, a.siteName, msg)
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{
		From:     a.mailFrom,
		To:       a.contactEmail,
		ReplyTo:  msg.Email,
		Subject:  fmt.Sprintf("Nouveau message de %s - %s", msg.Name, a.siteName),
		HTMLBody: htmlBody,
		TextBody: textBody,
	}, nil
}

func (a *App) confirmationEmail(msg domain.ContactMessage) (mailer.Message, error) {
	htmlBody, textBody, err := renderContactEmail(confirmationTemplate, a.siteName, msg)
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{
		From:     a.mailFrom,
		To:       msg.Email,
		Subject:  fmt.Sprintf("Confirmation de votre demande de contact - %s", a.siteName),
		HTMLBody: htmlBody,
		TextBody: textBody,
	}, nil
}
