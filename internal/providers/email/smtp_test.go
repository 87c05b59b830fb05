package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "receipts@example.org"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	err := p.Send(context.Background(), []string{"jane@example.com"}, "Your receipt\r\nBcc: x@y", "<p>thanks</p>")
	require.NoError(t, err)

	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Nil(t, gotAuth)
	assert.Equal(t, "receipts@example.org", gotFrom)
	assert.Equal(t, []string{"jane@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your receipt  Bcc: x@y\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(gotMsg, "<p>thanks</p>"))
}

func TestSendRequiresRecipient(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestNewFromConfigWithoutHostIsNoOp(t *testing.T) {
	mailer := NewFromConfig(config.Config{}, zap.NewNop())
	_, ok := mailer.(*NoOpProvider)
	assert.True(t, ok)

	mailer = NewFromConfig(config.Config{SMTP: config.SMTPConfig{Host: "mail.local", Port: 25}}, zap.NewNop())
	_, ok = mailer.(*SMTPProvider)
	assert.True(t, ok)
}
