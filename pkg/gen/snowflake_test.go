package gen

import (
	"testing"

	"crowdfund-escrow/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	cfg := &config.Config{}
	cfg.Snowflake.NodeID = 3
	node, err := NewNode(cfg)
	require.NoError(t, err)
	require.Equal(t, int64(3), node.Generate().Node())

	cfg.Snowflake.NodeID = 2048
	_, err = NewNode(cfg)
	require.Error(t, err)
}
