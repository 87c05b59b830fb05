package payment

import (
	"github.com/smallbiznis/charitydesk/internal/payment/adapters"
	"github.com/smallbiznis/charitydesk/internal/payment/adapters/stripe"
	"github.com/smallbiznis/charitydesk/internal/payment/gateway"
	"github.com/smallbiznis/charitydesk/internal/payment/repository"
	"github.com/smallbiznis/charitydesk/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(gateway.NewStripe),
	fx.Provide(webhook.NewService),
)
