package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/config"
)

func TestNewDispatcherFromConfig(t *testing.T) {
	none := NewDispatcherFromConfig(config.NotificationConfig{}, nil, zap.NewNop())
	assert.Empty(t, none.channels)

	both := NewDispatcherFromConfig(config.NotificationConfig{
		SMTPHost:      "smtp.example.com",
		SMTPPort:      587,
		SMSGatewayURL: "http://sms.example.com/send",
	}, nil, zap.NewNop())
	if assert.Len(t, both.channels, 2) {
		assert.Equal(t, "email", both.channels[0].Name())
		assert.Equal(t, "sms", both.channels[1].Name())
	}
}

func TestNewDispatcherFromConfigSkipsInvalidSMTPPort(t *testing.T) {
	d := NewDispatcherFromConfig(config.NotificationConfig{SMTPHost: "smtp.example.com", SMTPPort: 70000}, nil, zap.NewNop())
	assert.Empty(t, d.channels)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := RetryPolicyFromConfig(config.NotificationConfig{RetryBackoff: time.Second, RetryMaxBackoff: 3 * time.Second})
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))
}
