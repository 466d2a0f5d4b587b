package app

import (
	"go.uber.org/fx"

	"github.com/kantanworks/orderdesk/internal/auth"
	"github.com/kantanworks/orderdesk/internal/cache"
	"github.com/kantanworks/orderdesk/internal/config"
	"github.com/kantanworks/orderdesk/internal/database"
	"github.com/kantanworks/orderdesk/internal/logger"
	"github.com/kantanworks/orderdesk/internal/messaging"
	"github.com/kantanworks/orderdesk/internal/observability"
	repositorychat "github.com/kantanworks/orderdesk/internal/repository/chat"
	repositoryorder "github.com/kantanworks/orderdesk/internal/repository/order"
	grpcserver "github.com/kantanworks/orderdesk/internal/server/grpc"
	httpserver "github.com/kantanworks/orderdesk/internal/server/http"
	servicechat "github.com/kantanworks/orderdesk/internal/service/chat"
	serviceorder "github.com/kantanworks/orderdesk/internal/service/order"
	transporthttp "github.com/kantanworks/orderdesk/internal/transport/http"
	"github.com/kantanworks/orderdesk/internal/worker"
	workerorder "github.com/kantanworks/orderdesk/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	auth.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	repositorychat.Module,
	serviceorder.Module,
	servicechat.Module,
)

// HTTP wires the HTTP transport on top of the core modules, plus the gRPC
// endpoint serving health and reflection.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
