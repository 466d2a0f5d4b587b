package http

import (
	"go.uber.org/fx"

	chattransport "github.com/kantanworks/orderdesk/internal/transport/http/chat"
	ordertransport "github.com/kantanworks/orderdesk/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	chattransport.Module,
)
