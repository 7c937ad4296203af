package notify

import (
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/config"
)

// NewDispatcherFromConfig builds a Dispatcher with the channels cfg
// enables: email when SMTP_HOST is set, SMS when SMS_GATEWAY_URL is set.
func NewDispatcherFromConfig(cfg config.NotificationConfig, zone *time.Location, logger *zap.Logger) *Dispatcher {
	var channels []Channel
	if cfg.SMTPAddr() != "" {
		email, err := NewEmailChannel(EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			SiteURL:  cfg.SiteURL,
			Location: zone,
		}, nil)
		if err != nil {
			logger.Error("invalid SMTP settings; email notifications disabled", zap.Error(err))
		} else {
			channels = append(channels, email)
		}
	} else {
		logger.Warn("SMTP_HOST not provided; email notifications disabled")
	}
	if cfg.SMSGatewayURL != "" {
		channels = append(channels, NewSMSChannel(cfg.SMSGatewayURL, cfg.SMSToken, cfg.SendTimeout))
	}
	return NewDispatcher(logger, DefaultBreakerSettings, channels...)
}

// RetryPolicyFromConfig reads NOTIFY_RETRY_BACKOFF and
// NOTIFY_RETRY_MAX_BACKOFF.
func RetryPolicyFromConfig(cfg config.NotificationConfig) RetryPolicy {
	return RetryPolicy{Initial: cfg.RetryBackoff, Max: cfg.RetryMaxBackoff}
}
