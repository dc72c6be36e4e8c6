package email_test

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/felapi/fel-auth/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = email.Config{
	AppName:         "FEL",
	AppURL:          "https://fel.example.com/",
	FromAddress:     "no-reply@fel.example.com",
	FromName:        "FEL",
	VerificationTTL: 24 * time.Hour,
}

func TestRenderer_Verification(t *testing.T) {
	r := email.NewRenderer(testCfg)

	subject, body, err := r.Verification("a@x.com", "abc123")
	require.NoError(t, err)

	assert.Equal(t, "Verifica tu cuenta - FEL", subject)
	assert.Contains(t, body, "abc123")
	assert.Contains(t, body, "24 horas")
	assert.Equal(t,
		"https://fel.example.com/api/v1/verify-account?code=abc123&email=a%40x.com",
		r.VerifyURL("a@x.com", "abc123"),
	)
}

func TestRenderer_Welcome(t *testing.T) {
	r := email.NewRenderer(testCfg)

	_, body, err := r.Welcome("Ana Pérez")
	require.NoError(t, err)
	assert.Contains(t, body, "Bienvenido, Ana Pérez")

	_, body, err = r.Welcome("")
	require.NoError(t, err)
	assert.NotContains(t, body, "Bienvenido,")
}

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func TestSMTPMailer_Send(t *testing.T) {
	var got captured
	send := func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got = captured{addr: addr, from: from, to: to, msg: string(msg)}
		return nil
	}

	m := email.NewSMTPMailer(email.SMTPConfig{Host: "smtp.example.com", Port: 587}, testCfg, send)
	require.NoError(t, m.SendVerificationEmail(context.Background(), "a@x.com", "c0de"))

	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "no-reply@fel.example.com", got.from)
	assert.Equal(t, []string{"a@x.com"}, got.to)
	assert.True(t, strings.HasPrefix(got.msg, "From: FEL <no-reply@fel.example.com>\r\n"))
	assert.Contains(t, got.msg, "Subject: Verifica tu cuenta - FEL")
	assert.Contains(t, got.msg, "c0de")
}

func TestSMTPMailer_Errors(t *testing.T) {
	failing := func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	m := email.NewSMTPMailer(email.SMTPConfig{Host: "localhost", Port: 25}, testCfg, failing)

	err := m.SendWelcomeEmail(context.Background(), "a@x.com", "Ana")
	assert.ErrorContains(t, err, "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendVerificationEmail(ctx, "a@x.com", "code"), context.Canceled)
}

type lineLogger struct{ lines []string }

func (l *lineLogger) Debug(msg string, args ...any) {}
func (l *lineLogger) Warn(msg string, args ...any)  {}
func (l *lineLogger) Error(msg string, args ...any) {}
func (l *lineLogger) Info(msg string, args ...any) {
	for i := 0; i+1 < len(args); i += 2 {
		if s, ok := args[i+1].(string); ok {
			l.lines = append(l.lines, args[i].(string)+"="+s)
		}
	}
}

func TestLogMailer(t *testing.T) {
	lgr := &lineLogger{}
	m := email.NewLogMailer(lgr, testCfg)

	require.NoError(t, m.SendVerificationEmail(context.Background(), "a@x.com", "abc"))
	require.NoError(t, m.SendWelcomeEmail(context.Background(), "a@x.com", ""))

	assert.Contains(t, lgr.lines, "to=a@x.com")
	assert.Contains(t, lgr.lines, "verify_url=https://fel.example.com/api/v1/verify-account?code=abc&email=a%40x.com")
}
