// Package mail delivers notifications over authenticated SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/meizi0715/bdt-v1.5/internal/publisher"
)

// implicitTLSPort is the SMTPS port; other ports negotiate STARTTLS.
const implicitTLSPort = 465

// Config carries SMTP credentials and addressing.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendFunc func(e *email.Email, addr string, auth smtp.Auth, tlsCfg *tls.Config) error

// Publisher sends each Message as one plain-text mail.
type Publisher struct {
	cfg  Config
	send sendFunc
}

// New validates cfg and picks the TLS mode from the port.
func New(cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port must be positive")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mail from is required")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	send := (*email.Email).SendWithStartTLS
	if cfg.Port == implicitTLSPort {
		send = (*email.Email).SendWithTLS
	}
	return &Publisher{cfg: cfg, send: send}, nil
}

// Name implements publisher.Publisher.
func (p *Publisher) Name() string { return "mail" }

// Publish builds and sends the mail. The underlying client has no context
// support, so ctx is only checked before dialing.
func (p *Publisher) Publish(ctx context.Context, msg publisher.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	e, err := p.build(msg)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	tlsCfg := &tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12}
	if err := p.send(e, addr, auth, tlsCfg); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

func (p *Publisher) build(msg publisher.Message) (*email.Email, error) {
	e := email.NewEmail()
	e.From = p.cfg.From
	e.To = append([]string(nil), p.cfg.To...)
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)
	for _, a := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(a.Data), a.Name, a.ContentType); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return e, nil
}
