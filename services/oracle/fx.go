package oracle

import (
	"crowdfund-escrow/pkg/config"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("oracle.service",
	fx.Provide(NewService),
	fx.Invoke(migrate),
)

var Gateway = fx.Module("oracle.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerServiceHandler),
)

func migrate(cfg *config.Config, gdb *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return gdb.AutoMigrate(&PriceFeed{})
}

func registerServiceHandler(mux *runtime.ServeMux, h *Handler) error {
	if err := h.Register(mux); err != nil {
		zap.L().Error("failed to register oracle http handler", zap.Error(err))
		return err
	}
	return nil
}
