package gen

import (
	"fmt"

	"crowdfund-escrow/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode builds the ID generator for this process. Every process writing
// to the same database needs its own node ID.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Snowflake.NodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", cfg.Snowflake.NodeID, err)
	}
	zap.L().Info("snowflake node ready", zap.Int64("node_id", cfg.Snowflake.NodeID))
	return node, nil
}
