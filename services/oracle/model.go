package oracle

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceFeed is the latest USD price of one asset, 8-decimal fixed point.
type PriceFeed struct {
	Asset     string          `gorm:"column:asset;primaryKey" json:"asset"`
	Price     decimal.Decimal `gorm:"column:price;type:text" json:"price"`
	UpdatedBy string          `gorm:"column:updated_by" json:"updated_by"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (PriceFeed) TableName() string { return "oracle_price_feeds" }
