package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-identity-api/pkg/config"
)

func TestNewSenderSelectsProvider(t *testing.T) {
	sender, err := NewSender(config.MailConfig{Provider: config.MailProviderLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, sender)

	sender, err = NewSender(config.MailConfig{Provider: config.MailProviderSendgrid, SendgridAPIKey: "SG.key"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SendgridSender{}, sender)

	sender, err = NewSender(config.MailConfig{Provider: config.MailProviderSMTP, SMTPHost: "mail.local", SMTPPort: 25}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, sender)
}

func TestNewSenderRejectsIncompleteConfig(t *testing.T) {
	_, err := NewSender(config.MailConfig{Provider: config.MailProviderSendgrid}, nil)
	assert.Error(t, err)

	_, err = NewSender(config.MailConfig{Provider: "pigeon"}, nil)
	assert.Error(t, err)
}

func TestLogSenderRecordsMessage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sender := NewLogSender(zap.New(core), "[College] ")

	err := sender.Send(context.Background(), Message{To: "parent@example.com", Subject: "Your account", Body: "login: PA00030125"})
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "parent@example.com", entry.ContextMap()["to"])
	assert.Equal(t, "[College] Your account", entry.ContextMap()["subject"])
}

func TestSendRequiresRecipient(t *testing.T) {
	sender := NewLogSender(zap.NewNop(), "")
	assert.Error(t, sender.Send(context.Background(), Message{Subject: "x"}))
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	sender := NewSMTPSender(config.MailConfig{SMTPHost: "127.0.0.1", SMTPPort: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.Send(ctx, Message{To: "a@example.com", Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendgridSenderHonoursCancelledContext(t *testing.T) {
	sender := NewSendgridSender(config.MailConfig{SendgridAPIKey: "SG.key", FromAddress: "noreply@example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.Send(ctx, Message{To: "a@example.com", Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}
