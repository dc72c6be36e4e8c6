// Package email delivers the account emails rendered from pongo2
// templates.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	auth "github.com/felapi/fel-auth"
	"github.com/flosch/pongo2/v6"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	TemplateVerification = "verification.html"
	TemplateWelcome      = "welcome.html"

	subjectVerification = "Verifica tu cuenta"
	subjectWelcome      = "¡Bienvenido!"
)

type Config struct {
	AppName         string
	AppURL          string
	FromAddress     string
	FromName        string
	VerificationTTL time.Duration
}

// Renderer renders the embedded templates
type Renderer struct {
	cfg  Config
	set  *pongo2.TemplateSet
	mu   sync.Mutex
	tpls map[string]*pongo2.Template
}

func NewRenderer(cfg Config) *Renderer {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = auth.DefaultVerificationTTL
	}
	loader := pongo2.NewFSLoader(templatesFS)
	return &Renderer{
		cfg:  cfg,
		set:  pongo2.NewSet("email", loader),
		tpls: map[string]*pongo2.Template{},
	}
}

// VerifyURL is the link sent with the verification code
func (r *Renderer) VerifyURL(to, code string) string {
	q := url.Values{}
	q.Set("email", to)
	q.Set("code", code)
	return strings.TrimRight(r.cfg.AppURL, "/") + auth.APIPrefix + "/verify-account?" + q.Encode()
}

func (r *Renderer) Verification(to, code string) (subject, body string, err error) {
	body, err = r.render(TemplateVerification, pongo2.Context{
		"app_name":   r.cfg.AppName,
		"code":       code,
		"verify_url": r.VerifyURL(to, code),
		"ttl_hours":  int(r.cfg.VerificationTTL.Hours()),
	})
	return withAppName(r.cfg.AppName, subjectVerification), body, err
}

func (r *Renderer) Welcome(name string) (subject, body string, err error) {
	body, err = r.render(TemplateWelcome, pongo2.Context{
		"app_name": r.cfg.AppName,
		"name":     strings.TrimSpace(name),
	})
	return withAppName(r.cfg.AppName, subjectWelcome), body, err
}

func (r *Renderer) render(name string, ctx pongo2.Context) (string, error) {
	r.mu.Lock()
	tpl, ok := r.tpls[name]
	if !ok {
		var err error
		tpl, err = r.set.FromFile("templates/" + name)
		if err != nil {
			r.mu.Unlock()
			return "", fmt.Errorf("email: load template %s: %w", name, err)
		}
		r.tpls[name] = tpl
	}
	r.mu.Unlock()

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("email: render %s: %w", name, err)
	}
	return out, nil
}

func withAppName(app, subject string) string {
	if app == "" {
		return subject
	}
	return subject + " - " + app
}

// SMTPConfig holds the outbound server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends through a plain SMTP relay with STARTTLS when
// the server offers it.
type SMTPMailer struct {
	smtp     SMTPConfig
	envelope string
	from     string
	renderer *Renderer
	send     SendFunc
}

var _ auth.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(server SMTPConfig, cfg Config, send ...SendFunc) *SMTPMailer {
	m := &SMTPMailer{
		smtp:     server,
		envelope: cfg.FromAddress,
		from:     cfg.FromAddress,
		renderer: NewRenderer(cfg),
		send:     smtp.SendMail,
	}
	if len(send) > 0 && send[0] != nil {
		m.send = send[0]
	}
	if cfg.FromName != "" {
		m.from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}
	return m
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to, code string) error {
	subject, body, err := m.renderer.Verification(to, code)
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, subject, body)
}

func (m *SMTPMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	subject, body, err := m.renderer.Welcome(name)
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, subject, body)
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var a smtp.Auth
	if m.smtp.Username != "" {
		a = smtp.PlainAuth("", m.smtp.Username, m.smtp.Password, m.smtp.Host)
	}

	addr := net.JoinHostPort(m.smtp.Host, strconv.Itoa(m.smtp.Port))
	if err := m.send(addr, a, m.envelope, []string{to}, buildMessage(m.from, to, subject, body)); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return b.Bytes()
}

// LogMailer writes emails to the logger instead of sending them
type LogMailer struct {
	logger   auth.Logger
	renderer *Renderer
}

var _ auth.Mailer = (*LogMailer)(nil)

func NewLogMailer(logger auth.Logger, cfg Config) *LogMailer {
	return &LogMailer{logger: logger, renderer: NewRenderer(cfg)}
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, to, code string) error {
	subject, _, err := m.renderer.Verification(to, code)
	if err != nil {
		return err
	}
	m.logger.Info("email", "to", to, "subject", subject, "verify_url", m.renderer.VerifyURL(to, code))
	return nil
}

func (m *LogMailer) SendWelcomeEmail(_ context.Context, to, name string) error {
	subject, _, err := m.renderer.Welcome(name)
	if err != nil {
		return err
	}
	m.logger.Info("email", "to", to, "subject", subject)
	return nil
}
