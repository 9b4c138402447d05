package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meizi0715/bdt-v1.5/internal/publisher"
)

type capture struct {
	email *email.Email
	addr  string
	auth  smtp.Auth
	tls   *tls.Config
	err   error
}

func (c *capture) send(e *email.Email, addr string, auth smtp.Auth, tlsCfg *tls.Config) error {
	c.email, c.addr, c.auth, c.tls = e, addr, auth, tlsCfg
	return c.err
}

func validConfig() Config {
	return Config{
		Host:     "smtp.gmail.com",
		Port:     465,
		Username: "watcher@example.com",
		Password: "app-password",
		From:     "watcher@example.com",
		To:       []string{"team@example.com"},
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*Config){
		"host": func(c *Config) { c.Host = "" },
		"port": func(c *Config) { c.Port = 0 },
		"from": func(c *Config) { c.From = "" },
		"to":   func(c *Config) { c.To = nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestPublishBuildsMail(t *testing.T) {
	t.Parallel()

	pub, err := New(validConfig())
	require.NoError(t, err)
	c := &capture{}
	pub.send = c.send

	err = pub.Publish(context.Background(), publisher.Message{
		Subject: "空き状況(01/05)",
		Body:    "各位\n空きなし\n以上",
		Attachments: []publisher.Attachment{{
			Name: "slots.ics", ContentType: "text/calendar", Data: []byte("BEGIN:VCALENDAR"),
		}},
	})
	require.NoError(t, err)

	require.NotNil(t, c.email)
	assert.Equal(t, "smtp.gmail.com:465", c.addr)
	assert.NotNil(t, c.auth)
	assert.Equal(t, "smtp.gmail.com", c.tls.ServerName)
	assert.Equal(t, "空き状況(01/05)", c.email.Subject)
	assert.Equal(t, "各位\n空きなし\n以上", string(c.email.Text))
	assert.Equal(t, []string{"team@example.com"}, c.email.To)
	require.Len(t, c.email.Attachments, 1)
	assert.Equal(t, "slots.ics", c.email.Attachments[0].Filename)
}

func TestPublishWrapsSendError(t *testing.T) {
	t.Parallel()

	pub, err := New(validConfig())
	require.NoError(t, err)
	boom := errors.New("535 auth failed")
	pub.send = (&capture{err: boom}).send

	err = pub.Publish(context.Background(), publisher.Message{Subject: "s"})
	assert.ErrorIs(t, err, boom)
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	pub, err := New(validConfig())
	require.NoError(t, err)
	c := &capture{}
	pub.send = c.send

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Publish(ctx, publisher.Message{}), context.Canceled)
	assert.Nil(t, c.email)
}

func TestAnonymousWhenNoUsername(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Username = ""
	cfg.Port = 587
	pub, err := New(cfg)
	require.NoError(t, err)
	c := &capture{}
	pub.send = c.send

	require.NoError(t, pub.Publish(context.Background(), publisher.Message{Subject: "s"}))
	assert.Nil(t, c.auth)
	assert.Equal(t, "smtp.gmail.com:587", c.addr)
}
