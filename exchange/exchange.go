package exchange

import (
	"context"
	"time"
)

// Quote 交易所报价，价格为聪（基础币种最小单位）
type Quote struct {
	Exchange string    `json:"exchange"`
	Market   string    `json:"market"`
	Buy      int64     `json:"buy"`
	Sell     int64     `json:"sell"`
	At       time.Time `json:"at"`
}

// Exchange 报价来源
type Exchange interface {
	// GetName 交易所名称（小写）
	GetName() string

	// GetQuote 获取 market 的买一/卖一
	GetQuote(ctx context.Context, market string) (*Quote, error)
}
