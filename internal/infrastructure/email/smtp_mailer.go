// Package email envío de avisos por SMTP (gomail).
package email

import (
	"context"
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jhoicas/contratos-api/internal/application/request"
	"github.com/jhoicas/contratos-api/pkg/config"
)

var _ request.Mailer = (*SMTPMailer)(nil)

// sender abstrae gomail.Dialer para poder probar sin servidor SMTP.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer envía mensajes de texto plano; cada destinatario va en copia oculta.
type SMTPMailer struct {
	from   string
	dialer sender
}

// NewSMTPMailer construye el mailer. Devuelve nil si SMTP no está configurado.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	if !cfg.Enabled() {
		return nil
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &SMTPMailer{from: cfg.From, dialer: d}
}

// Send arma el mensaje y lo entrega. gomail no acepta contexto: si ctx ya venció no se intenta.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.from)
	msg.SetHeader("Bcc", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
