package jobs

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPMailerBuildsRelayAddress(t *testing.T) {
	m := NewSMTPMailer("smtp.example", 2525, "alerts@officine.example")

	require.Equal(t, "smtp.example:2525", m.addr)
	require.Equal(t, "alerts@officine.example", m.from)
}

func TestHandleSendEmailSkipsMalformedPayload(t *testing.T) {
	m := NewSMTPMailer("127.0.0.1", 1025, "no-reply@officine.local")

	task := asynq.NewTask(TaskTypeSendEmail, []byte("{not json"))
	err := m.HandleSendEmail(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
