package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"
	"time"

	"github.com/redmonkez12/printcost-auth/internal/logging"
)

//go:embed templates/*
var templateFS embed.FS

const (
	kindVerification  = "verification"
	kindPasswordReset = "password_reset"
)

// Recorder counts delivery outcomes. A nil recorder is allowed.
type Recorder interface {
	EmailSent(kind, outcome string)
}

type templates struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

type templateData struct {
	Name      string
	Link      string
	ExpiresIn string
}

// Options configures a Service.
type Options struct {
	AppURL          string
	SendTimeout     time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Service renders auth emails and hands them to a Sender.
type Service struct {
	sender       Sender
	recorder     Recorder
	logger       *logging.Logger
	opts         Options
	verification templates
	reset        templates
}

func NewService(sender Sender, recorder Recorder, logger *logging.Logger, opts Options) (*Service, error) {
	verification, err := loadTemplates("verification")
	if err != nil {
		return nil, err
	}
	reset, err := loadTemplates("reset")
	if err != nil {
		return nil, err
	}

	return &Service{
		sender:       sender,
		recorder:     recorder,
		logger:       logger,
		opts:         opts,
		verification: verification,
		reset:        reset,
	}, nil
}

func loadTemplates(name string) (templates, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
	if err != nil {
		return templates{}, fmt.Errorf("parse %s html template: %w", name, err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/"+name+".txt")
	if err != nil {
		return templates{}, fmt.Errorf("parse %s text template: %w", name, err)
	}
	return templates{html: html, text: text}, nil
}

// SendVerificationEmail sends an email verification link to the user
func (s *Service) SendVerificationEmail(ctx context.Context, toEmail, name, token string) error {
	data := templateData{
		Name:      name,
		Link:      s.link("/verify-email", token),
		ExpiresIn: humanizeDuration(s.opts.VerificationTTL),
	}
	return s.send(ctx, kindVerification, toEmail, "Verify your email address", s.verification, data)
}

// SendPasswordResetEmail sends a password reset link to the user
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, name, token string) error {
	data := templateData{
		Name:      name,
		Link:      s.link("/reset-password", token),
		ExpiresIn: humanizeDuration(s.opts.ResetTTL),
	}
	return s.send(ctx, kindPasswordReset, toEmail, "Reset your password", s.reset, data)
}

func (s *Service) send(ctx context.Context, kind, to, subject string, t templates, data templateData) error {
	var html, text bytes.Buffer
	if err := t.html.ExecuteTemplate(&html, "layout", data); err != nil {
		return fmt.Errorf("render %s template: %w", kind, err)
	}
	if err := t.text.Execute(&text, data); err != nil {
		return fmt.Errorf("render %s template: %w", kind, err)
	}

	if s.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SendTimeout)
		defer cancel()
	}

	err := s.sender.Send(ctx, Message{To: to, Subject: subject, HTML: html.String(), Text: text.String()})
	if err != nil {
		s.record(kind, "error")
		return fmt.Errorf("send %s email: %w", kind, err)
	}

	s.record(kind, "sent")
	logging.FromContext(ctx, s.logger).Info("email sent", "kind", kind)
	return nil
}

func (s *Service) link(path, token string) string {
	return s.opts.AppURL + path + "?token=" + url.QueryEscape(token)
}

func (s *Service) record(kind, outcome string) {
	if s.recorder != nil {
		s.recorder.EmailSent(kind, outcome)
	}
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
