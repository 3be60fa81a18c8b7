package exporters

import (
	"fmt"

	"crowdfund-escrow/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
)

// New picks the OTLP transport named by otel.protocol (grpc by default).
func New(cfg *config.Config) (*otlptrace.Exporter, error) {
	switch cfg.Otel.Protocol {
	case "", "grpc":
		return ProvideGrpc(cfg)
	case "http":
		return ProvideHttp(cfg)
	default:
		return nil, fmt.Errorf("unsupported otel protocol %q", cfg.Otel.Protocol)
	}
}
