package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Escrow.Owner = "owner"
	cfg.Escrow.Treasury = "treasury"

	require.NoError(t, cfg.Validate())
	require.Equal(t, "escrow", cfg.Escrow.EscrowAccount)
	require.Equal(t, time.Hour, cfg.Oracle.MaxPriceAge)
	require.Equal(t, "sqlite", cfg.Database.Type)
}

func TestValidateRequiresTreasury(t *testing.T) {
	cfg := &Config{}
	cfg.Escrow.Owner = "owner"
	require.Error(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`
APP_ENV: development
APP_NAME: escrow
ESCROW:
  OWNER: admin
  TREASURY: treasury
  ARBITRATORS: [arb-1, arb-2]
ORACLE:
  MAX_PRICE_AGE: 30m
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig(Params{})
	require.NoError(t, err)
	require.Equal(t, "admin", cfg.Escrow.Owner)
	require.Equal(t, []string{"arb-1", "arb-2"}, cfg.Escrow.Arbitrators)
	require.Equal(t, 30*time.Minute, cfg.Oracle.MaxPriceAge)
}
