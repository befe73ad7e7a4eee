package external

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/codeframe-dev/codeframe/internal/notifications"
	"github.com/codeframe-dev/codeframe/internal/types"
)

// EmailChannel sends a blocker notification over SMTP.
type EmailChannel struct {
	config types.NotifyEmailConfig
}

// NewEmailChannel builds an email channel from config.
func NewEmailChannel(config types.NotifyEmailConfig) *EmailChannel {
	return &EmailChannel{config: config}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) ShouldNotify(n notifications.Notification) bool {
	return e.config.Enabled && e.config.SMTPHost != "" && len(e.config.To) > 0
}

func (e *EmailChannel) Send(n notifications.Notification) error {
	if e.config.SMTPHost == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if e.config.From == "" {
		return fmt.Errorf("from address not configured")
	}
	if len(e.config.To) == 0 {
		return fmt.Errorf("no recipient addresses configured")
	}

	subject := fmt.Sprintf("[CodeFRAME] blocker on task %d", n.TaskID)
	body := e.buildBody(n)
	message := e.buildMessage(subject, body)

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	var auth smtp.Auth
	if e.config.Username != "" && e.config.Password != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, e.config.From, e.config.To, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (e *EmailChannel) buildBody(n notifications.Notification) string {
	var body strings.Builder
	body.WriteString("CodeFRAME blocker notification\n")
	body.WriteString("===============================\n\n")
	body.WriteString(fmt.Sprintf("Blocker ID: %d\n", n.BlockerID))
	body.WriteString(fmt.Sprintf("Task ID: %d\n", n.TaskID))
	body.WriteString(fmt.Sprintf("Project ID: %d\n", n.ProjectID))
	body.WriteString(fmt.Sprintf("Severity: %s\n", n.Severity))
	body.WriteString(fmt.Sprintf("Reason: %s\n", n.Reason))
	body.WriteString(fmt.Sprintf("Question: %s\n", n.Question))
	body.WriteString(fmt.Sprintf("Raised at: %s\n", n.CreatedAt.Format("2006-01-02T15:04:05Z07:00")))
	return body.String()
}

func (e *EmailChannel) buildMessage(subject, body string) string {
	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", e.config.From))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(e.config.To, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}
