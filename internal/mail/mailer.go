package mail

import (
	"fmt"
	"log"
	"net"
	"net/smtp"
)

type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends plain-text mail over SMTP with STARTTLS.
type SMTPMailer struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	addr := net.JoinHostPort(m.Host, m.Port)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, to, subject, body))
	auth := smtp.PlainAuth("", m.User, m.Password, m.Host)
	return smtp.SendMail(addr, auth, m.From, []string{to}, msg)
}

// LogMailer writes mail to the process log instead of sending it. Used when
// SMTP_HOST is not configured (local development).
type LogMailer struct{}

func (LogMailer) Send(to, subject, body string) error {
	log.Printf("[mail] to=%s subject=%q body=%q", to, subject, body)
	return nil
}
