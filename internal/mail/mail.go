// Package mail renders and delivers account emails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/obs"
)

// Message is a rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders account emails and hands them to a Sender.
type Mailer struct {
	sender Sender
	from   string
}

var _ auth.Notifier = (*Mailer)(nil)

// New returns a Mailer using sender.
func New(sender Sender, from string) *Mailer {
	return &Mailer{sender: sender, from: from}
}

type templateData struct {
	FirstName string
	URL       string
}

var templates = template.Must(template.New("mail").Parse(`
{{define "welcome"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2>Welcome to OpsFloww, {{.FirstName}}!</h2>
<p>We're excited to have you on board. Please verify your email by clicking the link below:</p>
<p><a href="{{.URL}}">Verify Email</a></p>
<p>This link expires in 24 hours.</p>
</div>{{end}}
{{define "verify"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2>Hi {{.FirstName}},</h2>
<p>Please confirm your email address by clicking the link below:</p>
<p><a href="{{.URL}}">Verify Email</a></p>
<p>This link expires in 24 hours.</p>
</div>{{end}}
{{define "reset"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2>Hi {{.FirstName}},</h2>
<p>Forgot your password? Use the link below to set a new one:</p>
<p><a href="{{.URL}}">Reset Password</a></p>
<p>This link is valid for 1 hour. If you didn't request a reset, please ignore this email.</p>
</div>{{end}}
{{define "changed"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2>Hi {{.FirstName}},</h2>
<p>Your password was changed. If this wasn't you, reset your password immediately and contact support.</p>
</div>{{end}}
`))

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func (m *Mailer) send(ctx context.Context, u *auth.User, tmpl, subject, url string) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl, templateData{FirstName: firstName(u.Name), URL: url}); err != nil {
		return fmt.Errorf("render %s email: %w", tmpl, err)
	}
	msg := Message{From: m.from, To: u.Email, Subject: subject, HTML: buf.String()}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", tmpl, err)
	}
	obs.FromContext(ctx).WithField("template", tmpl).WithField("user_id", u.ID).Info("email sent")
	return nil
}

func (m *Mailer) SendWelcome(ctx context.Context, u *auth.User, verifyURL string) error {
	return m.send(ctx, u, "welcome", "Welcome to OpsFloww!", verifyURL)
}

func (m *Mailer) SendEmailVerification(ctx context.Context, u *auth.User, verifyURL string) error {
	return m.send(ctx, u, "verify", "Verify your email address", verifyURL)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, u *auth.User, resetURL string) error {
	return m.send(ctx, u, "reset", "Your password reset token (valid for 1 hour)", resetURL)
}

func (m *Mailer) SendPasswordChanged(ctx context.Context, u *auth.User) error {
	return m.send(ctx, u, "changed", "Your password has been changed", "")
}
