package exporters

import (
	"testing"

	"crowdfund-escrow/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownProtocol(t *testing.T) {
	cfg := &config.Config{}
	cfg.Otel.Addr = "localhost:4317"
	cfg.Otel.Protocol = "carrier-pigeon"

	_, err := New(cfg)
	require.ErrorContains(t, err, "unsupported otel protocol")
}
