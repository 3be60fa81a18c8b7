package main

import (
	"log"

	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/config"
	"crowdfund-escrow/pkg/db"
	"crowdfund-escrow/pkg/gen"
	"crowdfund-escrow/pkg/hashistack/secretmanager"
	"crowdfund-escrow/pkg/logger"
	"crowdfund-escrow/pkg/profiling"
	"crowdfund-escrow/pkg/redis"
	"crowdfund-escrow/pkg/task"
	"crowdfund-escrow/services/escrow"
	"crowdfund-escrow/services/ledger"
	"crowdfund-escrow/services/oracle"
)

// The worker relays committed outbox events and runs the periodic sweep.
// It shares the database with the API process and needs no gateway.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		profiling.Module,
		gen.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		task.Scheduler,
		access.Module,
		fx.Provide(
			provideClock,
			fx.Annotate(func(s *oracle.Service) *oracle.Service { return s }, fx.As(new(escrow.PriceService))),
			fx.Annotate(func(s *ledger.Service) *ledger.Service { return s }, fx.As(new(escrow.AssetLedger))),
		),
		ledger.Module,
		oracle.Module,
		escrow.Module,
		escrow.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}
