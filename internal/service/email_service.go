package service

import (
	"net/mail"
	"strings"

	"github.com/settle-next/internal/config"

	"gopkg.in/gomail.v2"
)

// Mailer 通知邮件发送器
type Mailer interface {
	Enabled() bool
	Send(toEmail, subject, body string) error
}

// EmailService 基于 SMTP 的邮件发送服务
type EmailService struct {
	cfg    *config.EmailConfig
	dialer *gomail.Dialer
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	s := &EmailService{cfg: cfg}
	if cfg != nil && cfg.Host != "" && cfg.Port > 0 {
		s.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return s
}

// Enabled 是否启用邮件发送
func (s *EmailService) Enabled() bool {
	return s != nil && s.cfg != nil && s.cfg.Enabled
}

// Send 发送纯文本邮件
func (s *EmailService) Send(toEmail, subject, body string) error {
	if !s.Enabled() {
		return ErrEmailServiceDisabled
	}
	if s.dialer == nil || strings.TrimSpace(s.cfg.From) == "" {
		return ErrEmailServiceNotConfigured
	}
	if _, err := mail.ParseAddress(toEmail); err != nil {
		return ErrInvalidEmail
	}

	m := gomail.NewMessage()
	if name := strings.TrimSpace(s.cfg.FromName); name != "" {
		m.SetAddressHeader("From", s.cfg.From, name)
	} else {
		m.SetHeader("From", s.cfg.From)
	}
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.dialer.DialAndSend(m)
}
