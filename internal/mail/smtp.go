package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"opsfloww.io/internal/obs"
)

// SMTPSender delivers through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string

	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender for host:port.
func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, Username: username, Password: password, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	if err := s.sendMail(addr, auth, envelopeAddress(msg.From), []string{msg.To}, buildMessage(msg)); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}
	return nil
}

func buildMessage(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// envelopeAddress strips a display name: "Name <a@b>" becomes "a@b".
func envelopeAddress(from string) string {
	if i := strings.LastIndexByte(from, '<'); i >= 0 {
		if j := strings.LastIndexByte(from, '>'); j > i {
			return from[i+1 : j]
		}
	}
	return strings.TrimSpace(from)
}

// LogSender records messages in the log instead of delivering them. The body is
// not logged since it carries one-time tokens.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	obs.FromContext(ctx).WithField("to", msg.To).WithField("subject", msg.Subject).Info("email delivery disabled, message dropped")
	return nil
}
