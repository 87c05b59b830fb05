package receipt

import (
	"github.com/smallbiznis/charitydesk/internal/receipt/repository"
	"github.com/smallbiznis/charitydesk/internal/receipt/service"
	"go.uber.org/fx"
)

// Module provides the receipt queue. The worker lives in receipt/worker and is wired by the worker app.
var Module = fx.Module("receipt",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewQueue),
)
