package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("httpapi",
	fx.Invoke(
		registerHealthEndpoint,
		registerMetricsEndpoint,
	),
)

type HealthParams struct {
	fx.In
	Mux *runtime.ServeMux
	DB  *gorm.DB `optional:"true"`
}

func registerHealthEndpoint(p HealthParams) {
	if err := p.Mux.HandlePath(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		status, code := "ok", http.StatusOK
		if p.DB != nil {
			if err := ping(r.Context(), p.DB); err != nil {
				zap.L().Warn("health check failed", zap.Error(err))
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}); err != nil {
		zap.L().Error("failed to register health endpoint", zap.Error(err))
	}
}

func registerMetricsEndpoint(mux *runtime.ServeMux) {
	h := promhttp.Handler()
	if err := mux.HandlePath(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		h.ServeHTTP(w, r)
	}); err != nil {
		zap.L().Error("failed to register metrics endpoint", zap.Error(err))
	}
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
