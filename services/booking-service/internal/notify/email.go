package notify

import (
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EmailSender interface {
	Send(to string, subject string, body string) error
}

// SMTPSender delivers plain-text mail. Without a username it talks unauthenticated SMTP,
// which is what local catchers such as Mailpit expect.
type SMTPSender struct {
	addr string
	host string
	from string
	auth smtp.Auth
	now  func() time.Time
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@photobook.local"
	}
	s := &SMTPSender{
		addr: net.JoinHostPort(host, strings.TrimSpace(cfg.Port)),
		host: host,
		from: from,
		now:  time.Now,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	msg := s.compose(to, subject, body)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp %s: %w", s.addr, err)
	}
	return nil
}

// compose builds an RFC 5322 message. Subjects are Q-encoded so accented package and
// customer names survive.
func (s *SMTPSender) compose(to, subject, body string) string {
	domain := "photobook.local"
	if at := strings.LastIndex(s.from, "@"); at >= 0 {
		domain = s.from[at+1:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.String()
}
