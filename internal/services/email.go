package services

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/pkg/logger"
)

// EmailService delivers password-reset mail. With SMTP disabled the
// reset link is logged instead, which keeps development flows usable.
type EmailService struct {
	cfg *config.SMTPConfig
}

func NewEmailService(cfg *config.SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// SendPasswordReset mails the single-use reset link to the user.
func (s *EmailService) SendPasswordReset(to, token string) error {
	link := s.resetLink(token)

	if !s.cfg.Enabled || s.cfg.Host == "" {
		logger.Info().Str("to", to).Str("link", link).Msg("smtp disabled, password reset link logged only")
		return nil
	}

	subject := "Reset your password"
	body := s.buildResetBody(link)
	return s.sendEmail([]string{to}, subject, body)
}

func (s *EmailService) resetLink(token string) string {
	return s.cfg.ResetURL + "?token=" + url.QueryEscape(token)
}

func (s *EmailService) buildResetBody(link string) string {
	var sb strings.Builder
	sb.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	sb.WriteString("<h2>Password Reset</h2>")
	sb.WriteString("<p>We received a request to reset your password. The link below is valid for 10 minutes and can be used once.</p>")
	sb.WriteString(fmt.Sprintf("<p><a href=\"%s\">Reset your password</a></p>", link))
	sb.WriteString("<p>If you did not request this, you can safely ignore this email.</p>")
	sb.WriteString("</body></html>")
	return sb.String()
}

func (s *EmailService) sendEmail(to []string, subject, body string) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	headers := map[string]string{
		"From":         from,
		"To":           strings.Join(to, ","),
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
	}

	var message strings.Builder
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var err error
	if s.cfg.UseTLS {
		err = s.sendEmailTLS(addr, auth, from, to, message.String())
	} else {
		err = smtp.SendMail(addr, auth, from, to, []byte(message.String()))
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to send password reset email")
		return err
	}

	logger.Info().Strs("to", to).Msg("password reset email sent")
	return nil
}

func (s *EmailService) sendEmailTLS(addr string, auth smtp.Auth, from string, to []string, message string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	return w.Close()
}
