package email

import (
	"github.com/smallbiznis/charitydesk/internal/config"
	receiptdomain "github.com/smallbiznis/charitydesk/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) receiptdomain.Mailer {
	if cfg.SMTP.Host == "" {
		log.Named("providers.email").Warn("SMTP_HOST not set, receipt emails are discarded")
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}
