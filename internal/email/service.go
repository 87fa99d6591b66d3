// Package email delivers password reset mail over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	texttemplate "text/template"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	if config.AppName == "" {
		config.AppName = "Checklist"
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

type resetData struct {
	AppName  string
	UserName string
	ResetURL string
}

// SendPasswordReset mails the reset link to the account owner.
func (s *Service) SendPasswordReset(to, userName, resetURL string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if strings.TrimSpace(userName) == "" {
		userName = to
	}
	data := resetData{AppName: s.config.AppName, UserName: userName, ResetURL: resetURL}

	var text, html bytes.Buffer
	if err := resetText.Execute(&text, data); err != nil {
		return fmt.Errorf("render reset text: %w", err)
	}
	if err := resetHTML.Execute(&html, data); err != nil {
		return fmt.Errorf("render reset html: %w", err)
	}
	subject := fmt.Sprintf("Reset your %s password", s.config.AppName)
	msg := s.buildMessage([]string{to}, subject, text.String(), html.String())
	return s.send(s.server, s.auth, s.config.From, []string{to}, msg)
}

func (s *Service) buildMessage(to []string, subject, textBody, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	const boundary = "checklist-alt"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, textBody)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

var resetText = texttemplate.Must(texttemplate.New("reset.txt").Parse(`Hi {{.UserName}},

Someone asked to reset your {{.AppName}} password. Open this link to choose a new one:

{{.ResetURL}}

The link expires in 1 hour. If you did not ask for this, ignore this message.`))

var resetHTML = template.Must(template.New("reset.html").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f2937; max-width: 560px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 10px 20px; background: #2563eb; color: white; text-decoration: none; border-radius: 6px; }
        .muted { color: #6b7280; font-size: 12px; }
    </style>
</head>
<body>
    <h2>{{.AppName}}</h2>
    <p>Hi {{.UserName}},</p>
    <p>Someone asked to reset your password.</p>
    <p><a href="{{.ResetURL}}" class="button">Choose a new password</a></p>
    <p class="muted">The link expires in 1 hour. If you did not ask for this, ignore this message.</p>
</body>
</html>`))
