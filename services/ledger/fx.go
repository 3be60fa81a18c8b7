package ledger

import (
	"context"

	"crowdfund-escrow/pkg/config"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

const healthService = "ledger"

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Invoke(migrate),
)

var Gateway = fx.Module("ledger.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerServiceHandler, registerHealth),
)

func Models() []any {
	return []any{&Balance{}, &Allowance{}, &LedgerEntry{}}
}

func migrate(cfg *config.Config, gdb *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return gdb.AutoMigrate(Models()...)
}

func registerServiceHandler(mux *runtime.ServeMux, h *Handler) error {
	if err := h.Register(mux); err != nil {
		zap.L().Error("failed to register ledger http handler", zap.Error(err))
		return err
	}
	return nil
}

type healthParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Health    *health.Server `optional:"true"`
	DB        *gorm.DB
}

func registerHealth(p healthParams) {
	if p.Health == nil {
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			status := grpc_health_v1.HealthCheckResponse_SERVING
			sqlDB, err := p.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				zap.L().Warn("ledger database not ready", zap.Error(err))
				status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			}
			p.Health.SetServingStatus(healthService, status)
			return nil
		},
	})
}
