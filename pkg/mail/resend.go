// Package mail dispatches participant invitation emails through Resend.
package mail

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/sethvargo/go-retry"

	"github.com/searcho-ai/searcho/pkg/core"
	"github.com/searcho-ai/searcho/pkg/study"
)

// ResendMailer implements study.Mailer on the Resend API.
type ResendMailer struct {
	client   *resend.Client
	from     string
	linkBase string
	logger   *slog.Logger

	retries uint64
	backoff time.Duration
}

var _ study.Mailer = (*ResendMailer)(nil)

// NewResend builds a mailer. linkBase is the public origin invitation links
// are built on, e.g. https://app.searcho.ai.
func NewResend(apiKey, from, linkBase string, logger *slog.Logger) *ResendMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResendMailer{
		client:   resend.NewClient(apiKey),
		from:     from,
		linkBase: strings.TrimSuffix(strings.TrimSpace(linkBase), "/"),
		logger:   logger,
		retries:  2,
		backoff:  time.Second,
	}
}

// SendInvitation dispatches one invitation and returns the provider message
// id. Transient failures are retried with backoff before giving up.
func (m *ResendMailer) SendInvitation(ctx context.Context, msg study.InvitationEmail) (string, error) {
	req := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: invitationSubject(msg),
		Html:    invitationHTML(m.linkBase, msg),
	}

	var messageID string
	backoff := retry.WithMaxRetries(m.retries, retry.NewExponential(m.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		sent, err := m.client.Emails.SendWithContext(ctx, req)
		if err != nil {
			return retry.RetryableError(err)
		}
		messageID = sent.Id
		return nil
	})
	if err != nil {
		m.logger.Warn("invitation email send failed", "to", msg.To, "error", err)
		return "", fmt.Errorf("send invitation: %w: %w", core.NewUpstreamError("email delivery"), err)
	}
	return messageID, nil
}

func invitationSubject(msg study.InvitationEmail) string {
	switch strings.ToLower(strings.TrimSpace(msg.StudyType)) {
	case "unmoderated":
		return fmt.Sprintf("You're invited to try %s", msg.ProjectTitle)
	default:
		return fmt.Sprintf("You're invited to a research interview for %s", msg.ProjectTitle)
	}
}

// invitationHTML renders the invitation body. The link carries the opaque
// invitation token; nothing else about the study is encoded in the URL.
func invitationHTML(linkBase string, msg study.InvitationEmail) string {
	link := linkBase + "/participate/" + msg.Token

	greeting := "Hi,"
	if name := strings.TrimSpace(msg.Name); name != "" {
		greeting = fmt.Sprintf("Hi %s,", html.EscapeString(name))
	}

	deviceNote := ""
	switch strings.ToLower(strings.TrimSpace(msg.TargetDevice)) {
	case "mobile":
		deviceNote = "<p>Please join from your <strong>mobile phone</strong>.</p>"
	case "desktop":
		deviceNote = "<p>Please join from a <strong>desktop or laptop</strong> computer.</p>"
	}

	return fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<p>%s</p>
<p>You have been invited to take part in a research study: <strong>%s</strong>.</p>
%s
<p><a href="%s" style="display:inline-block;padding:12px 24px;background:#4f46e5;color:#ffffff;text-decoration:none;border-radius:6px;">Join the study</a></p>
<p>Or copy this link into your browser:<br>%s</p>
<p>This invitation expires on %s.</p>
<p>If you were not expecting this email you can safely ignore it.</p>
</div>`,
		greeting,
		html.EscapeString(msg.ProjectTitle),
		deviceNote,
		link,
		link,
		msg.ExpiresAt.Format("January 2, 2006"),
	)
}
