package main

import (
	"log"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/config"
	"crowdfund-escrow/pkg/db"
	"crowdfund-escrow/pkg/gen"
	"crowdfund-escrow/pkg/hashistack/secretmanager"
	"crowdfund-escrow/pkg/httpapi"
	"crowdfund-escrow/pkg/logger"
	"crowdfund-escrow/pkg/minio"
	"crowdfund-escrow/pkg/otelcol"
	"crowdfund-escrow/pkg/profiling"
	"crowdfund-escrow/pkg/redis"
	"crowdfund-escrow/pkg/sequence"
	"crowdfund-escrow/pkg/server"
	"crowdfund-escrow/pkg/task"
	"crowdfund-escrow/services/content"
	"crowdfund-escrow/services/escrow"
	"crowdfund-escrow/services/ledger"
	"crowdfund-escrow/services/oracle"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		profiling.Module,
		gen.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		minio.Client,
		task.Client,
		sequence.Module,
		access.Module,
		fx.Provide(
			server.RegisterServerMux,
			provideMeterProvider,
			provideClock,
		),
		Ports,
		httpapi.Module,
		ledger.Module,
		ledger.Gateway,
		oracle.Module,
		oracle.Gateway,
		content.Module,
		escrow.Module,
		escrow.Gateway,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

// Ports binds the concrete ledger, oracle and content store to the
// interfaces the escrow engine consumes.
var Ports = fx.Provide(
	fx.Annotate(func(s *oracle.Service) *oracle.Service { return s }, fx.As(new(escrow.PriceService))),
	fx.Annotate(func(s *ledger.Service) *ledger.Service { return s }, fx.As(new(escrow.AssetLedger))),
	fx.Annotate(func(s *content.Store) *content.Store { return s }, fx.As(new(escrow.ContentStore))),
)

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func provideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}
