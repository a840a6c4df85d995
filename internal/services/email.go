package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"

	"github.com/rs/zerolog"
	mail "github.com/wneessen/go-mail"

	"chatforms-backend/internal/models"
)

// SMTPConfig holds outgoing mail settings. An empty Host or User puts the
// service in dev mode, where mail is logged instead of sent.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// EmailService mails admins about form responses that could not be forwarded.
type EmailService struct {
	cfg         SMTPConfig
	recipients  []string
	frontendURL string
	devMode     bool
	logger      zerolog.Logger

	// send is swapped out in tests.
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewEmailService(cfg SMTPConfig, recipients []string, frontendURL string, logger zerolog.Logger) *EmailService {
	logger = logger.With().Str("component", "email").Logger()
	devMode := cfg.Host == "" || cfg.User == ""
	if devMode {
		logger.Warn().Msg("email service running in dev mode, mail is logged")
	}
	s := &EmailService{
		cfg:         cfg,
		recipients:  recipients,
		frontendURL: frontendURL,
		devMode:     devMode,
		logger:      logger,
	}
	s.send = s.dialAndSend
	return s
}

func (s *EmailService) FormForwardFailed(ctx context.Context, form *models.Form, resp *models.FormResponse, reason string) error {
	if len(s.recipients) == 0 {
		return nil
	}
	subject, body := s.renderForwardFailure(form, resp, reason)
	return s.sendHTML(ctx, s.recipients, subject, body)
}

func (s *EmailService) renderForwardFailure(form *models.Form, resp *models.FormResponse, reason string) (string, string) {
	data := string(resp.Data)
	var decoded any
	if json.Unmarshal(resp.Data, &decoded) == nil {
		if b, err := json.MarshalIndent(decoded, "", "  "); err == nil {
			data = string(b)
		}
	}

	responsesURL := fmt.Sprintf("%s/admin/forms/%s/responses", s.frontendURL, form.ID)

	subject := fmt.Sprintf("Form response to %q was not delivered", form.Title)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 560px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 20px; color: #1e293b;">Form forward failed</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 16px;">
        A response to <strong>%s</strong> submitted at %s could not be delivered to the form's webhook.
      </p>
      <p style="color: #b91c1c; font-size: 13px; margin: 0 0 16px;">%s</p>
      <pre style="background: #f1f5f9; padding: 12px; border-radius: 8px; font-size: 12px; overflow-x: auto;">%s</pre>
      <a href="%s" style="display: inline-block; background: #6366f1; color: white; text-decoration: none; padding: 10px 24px; border-radius: 8px; font-weight: 600; font-size: 14px;">
        View responses
      </a>
    </div>
  </div>
</body>
</html>`,
		html.EscapeString(form.Title),
		resp.SubmittedAt.UTC().Format("2006-01-02 15:04 MST"),
		html.EscapeString(reason),
		html.EscapeString(data),
		responsesURL,
	)
	return subject, body
}

func (s *EmailService) sendHTML(ctx context.Context, to []string, subject, htmlBody string) error {
	if s.devMode {
		s.logger.Info().Strs("to", to).Str("subject", subject).Msg("dev email")
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := m.To(to...); err != nil {
		return fmt.Errorf("failed to set recipients: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextHTML, htmlBody)
	m.SetMessageID()

	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info().Strs("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func (s *EmailService) dialAndSend(ctx context.Context, m *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Pass),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}
