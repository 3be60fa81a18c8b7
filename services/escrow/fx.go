package escrow

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

const healthService = "escrow"

var Module = fx.Module("escrow.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, ensureSettings),
)

var Gateway = fx.Module("escrow.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerServiceHandler, registerHealth),
)

var TaskModule = fx.Module("escrow.task",
	fx.Provide(NewRedisSink, NewWorker),
	fx.Invoke(registerWorker, registerSweep),
)

func migrate(cfg *config.Config, gdb *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return gdb.AutoMigrate(Models()...)
}

func ensureSettings(lc fx.Lifecycle, cfg *config.Config, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.EnsureSettings(ctx, cfg)
		},
	})
}

func registerServiceHandler(mux *runtime.ServeMux, h *Handler) error {
	if err := h.Register(mux); err != nil {
		zap.L().Error("failed to register escrow http handler", zap.Error(err))
		return err
	}
	return nil
}

type healthParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Health    *health.Server `optional:"true"`
	Service   *Service
}

func registerHealth(p healthParams) {
	if p.Health == nil {
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			status := grpc_health_v1.HealthCheckResponse_SERVING
			if _, err := p.Service.GetSettings(ctx); err != nil {
				zap.L().Warn("escrow settings unavailable", zap.Error(err))
				status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			}
			p.Health.SetServingStatus(healthService, status)
			return nil
		},
	})
}
