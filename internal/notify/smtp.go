package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"modelguard/internal/config"
	"modelguard/internal/model"
)

// SMTPNotifier emails the security team. Delivery runs in a goroutine
// so the context deadline is honored even though net/smtp itself does
// not take a context.
type SMTPNotifier struct {
	cfg       config.SMTPConfig
	modelName string
	send      func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg config.SMTPConfig, modelName string) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, modelName: modelName, send: smtp.SendMail}
}

func (n *SMTPNotifier) Name() string { return "smtp" }

func (n *SMTPNotifier) Notify(ctx context.Context, record model.AlertRecord) error {
	var auth smtp.Auth
	if n.cfg.Username != "" {
		host := n.cfg.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, host)
	}
	msg := n.buildMessage(record)
	done := make(chan error, 1)
	go func() {
		done <- n.send(n.cfg.Addr, auth, n.cfg.Sender, n.cfg.Recipients, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *SMTPNotifier) buildMessage(record model.AlertRecord) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: Security Alert: %s - %s severity\r\n", n.modelName, strings.ToUpper(record.Severity.String()))
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Security incident detected for model %s\r\n", n.modelName)
	fmt.Fprintf(&b, "Identity: %s\r\n", record.Identity)
	fmt.Fprintf(&b, "Severity: %s\r\n", record.Severity)
	fmt.Fprintf(&b, "Reasons: %s\r\n", strings.Join(record.Reasons, ", "))
	fmt.Fprintf(&b, "Dispatched: %s\r\n", record.DispatchedAt.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("\r\nPlease review the incident and take appropriate action.\r\n")
	return []byte(b.String())
}
