package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// SMTPConfig names the mail relay and envelope addresses send_email
// read out of the crawler's [crawler] section
// (smtp_host/smtp_port/smtp_username/smtp_password/smtp_from/
// admin_mail_to).
//
// No third-party mail-transport library appears anywhere in this
// codebase's reference material (see DESIGN.md), so this is the one
// ambient concern carried on the standard library rather than forcing
// in an ungrounded dependency.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// SMTPNotifier sends host-failure reports by SMTP.
type SMTPNotifier struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPNotifier builds a notifier against cfg. Authentication is
// skipped when Username or Password is empty, matching send_email's
// "if username and password" guard.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	n := &SMTPNotifier{cfg: cfg}
	if cfg.Username != "" && cfg.Password != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n
}

const smtpDateFormat = "Mon, 02 Jan 2006 15:04:05 -0700"

// Notify formats and sends msg. Errors are returned to the caller
// rather than swallowed internally (the caller, crawler.MarkNotUpToDate,
// is responsible for logging-and-continuing, per spec.md §4.7), but
// Notify itself never panics or blocks past ctx's deadline.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", n.cfg.To)
	fmt.Fprintf(&b, "Subject: %s MirrorManager crawler report\r\n", msg.HostName)
	fmt.Fprintf(&b, "Date: %s\r\n\r\n", time.Now().Format(smtpDateFormat))
	fmt.Fprintf(&b, "%s\n", msg.Reason)
	if msg.LogPath != "" {
		fmt.Fprintf(&b, "Log can be found at %s\n", msg.LogPath)
	}
	if msg.Exception != nil {
		fmt.Fprintf(&b, "Exception info: type %s; value %s\n", msg.Exception.Kind, msg.Exception.Value)
		b.WriteString(msg.Exception.Stack)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, n.auth, n.cfg.From, []string{n.cfg.To}, []byte(b.String()))
	}()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "notify: send mail")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
