package providers

import (
	"github.com/smallbiznis/charitydesk/internal/providers/email"
	"github.com/smallbiznis/charitydesk/internal/providers/pdf"
	"github.com/smallbiznis/charitydesk/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	storage.Module,
)
