// Package mail renders and delivers the invitation email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
	"time"

	"github.com/opentrusty/tenantgate/internal/observability/logger"
)

// Invitation is the data needed to tell an invitee about their workspace.
// It is serialised as JSON into the outbox.
type Invitation struct {
	To           string        `json:"to"`
	Organization string        `json:"organization"`
	InviterName  string        `json:"inviter_name"`
	Link         string        `json:"link"`
	ExpiresIn    time.Duration `json:"expires_in"`
	TenantID     string        `json:"tenant_id"`
	ActorID      string        `json:"actor_id"`
}

// Email is a rendered message with text and HTML bodies
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers a rendered email
type Sender interface {
	Send(ctx context.Context, e Email) error
}

type inviteView struct {
	Invitation
	Expires string
}

var (
	inviteText = texttemplate.Must(texttemplate.New("invite.txt").Parse(inviteTextTemplate))
	inviteHTML = htmltemplate.Must(htmltemplate.New("invite.html").Parse(inviteHTMLTemplate))
)

// BuildInvitationEmail renders the invitation for inv.To.
func BuildInvitationEmail(inv Invitation) (Email, error) {
	view := inviteView{Invitation: inv, Expires: humanDuration(inv.ExpiresIn)}

	var text, html bytes.Buffer
	if err := inviteText.Execute(&text, view); err != nil {
		return Email{}, fmt.Errorf("failed to render invite text: %w", err)
	}
	if err := inviteHTML.Execute(&html, view); err != nil {
		return Email{}, fmt.Errorf("failed to render invite html: %w", err)
	}

	return Email{
		To:       inv.To,
		Subject:  fmt.Sprintf("You have been invited to join %s", inv.Organization),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return d.String()
	}
}

// Direct renders and sends each invitation synchronously.
type Direct struct {
	sender Sender
}

// NewDirect wraps a sender as an invitation notifier
func NewDirect(sender Sender) *Direct {
	return &Direct{sender: sender}
}

// Notify renders inv and hands it to the sender
func (d *Direct) Notify(ctx context.Context, inv Invitation) error {
	e, err := BuildInvitationEmail(inv)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, e)
}

// LogSender writes emails to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that logs; nil uses slog.Default.
func NewLogSender(l *slog.Logger) *LogSender {
	if l == nil {
		l = slog.Default()
	}
	return &LogSender{logger: l}
}

func (s *LogSender) Send(ctx context.Context, e Email) error {
	s.logger.InfoContext(ctx, "email not sent (log driver)",
		logger.Component("mail"),
		slog.String("to", e.To),
		slog.String("subject", e.Subject),
		slog.String("body", e.TextBody),
	)
	return nil
}

const inviteTextTemplate = `Hello,

{{.InviterName}} has invited you to join {{.Organization}}.

Accept the invitation and choose a password here:
{{.Link}}
{{if .Expires}}
This link expires in {{.Expires}}.
{{end}}
If you were not expecting this invitation, you can ignore this email.
`

const inviteHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Invitation to {{.Organization}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px;">
              <h1 style="margin: 0 0 16px; font-size: 22px; color: #1f2937;">Join {{.Organization}}</h1>
              <p style="margin: 0 0 24px; font-size: 16px; color: #374151; line-height: 1.5;">
                {{.InviterName}} has invited you to join <strong>{{.Organization}}</strong>.
              </p>
              <p style="text-align: center;">
                <a href="{{.Link}}" style="display: inline-block; padding: 14px 32px; background-color: #4f46e5; color: #ffffff; text-decoration: none; border-radius: 6px;">Accept invitation</a>
              </p>
              {{if .Expires}}<p style="margin: 24px 0 0; font-size: 13px; color: #9ca3af; text-align: center;">This link expires in {{.Expires}}.</p>{{end}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
