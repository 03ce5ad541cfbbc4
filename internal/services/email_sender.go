package services

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"resetd/internal/models"
)

type EmailSender interface {
	Send(to string, subject string, body string) error
}

const resetSubject = "Reset your password"

var resetBody = template.Must(template.New("reset").Parse(`Hello,

We received a request to reset the password for {{.Email}}.

Open this link to choose a new password:

{{.Link}}

This link expires in {{.ValidFor}} (at {{.ExpiresAt}}).
If you did not ask for a reset you can ignore this email.
`))

// EmailNotifier renders a reset notice as a plain-text email.
type EmailNotifier struct {
	sender EmailSender
	now    func() time.Time
}

func NewEmailNotifier(sender EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender, now: time.Now}
}

func (n *EmailNotifier) Notify(ctx context.Context, notice models.ResetNotice) error {
	body, err := renderResetBody(notice, n.now())
	if err != nil {
		return err
	}
	if err := n.sender.Send(notice.Email, resetSubject, body); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func renderResetBody(notice models.ResetNotice, now time.Time) (string, error) {
	validFor := notice.ExpiresAt.Sub(now).Round(time.Minute)
	if validFor < time.Minute {
		validFor = time.Minute
	}

	var b strings.Builder
	err := resetBody.Execute(&b, map[string]any{
		"Email":     notice.Email,
		"Link":      notice.Link,
		"ValidFor":  strings.TrimSuffix(validFor.String(), "0s"),
		"ExpiresAt": notice.ExpiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("render reset email: %w", err)
	}
	return b.String(), nil
}
