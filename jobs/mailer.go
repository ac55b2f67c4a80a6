package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"

	"github.com/hibiken/asynq"
)

// SMTPMailer delivers send-email tasks through the deployment's SMTP relay.
// Local development runs against Mailpit on the default address.
type SMTPMailer struct {
	addr string
	from string
}

// NewSMTPMailer constructs a mailer for the given relay.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (m *SMTPMailer) HandleSendEmail(_ context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.from, payload.To, payload.Subject, payload.Body)
	return smtp.SendMail(m.addr, nil, m.from, []string{payload.To}, []byte(msg))
}
