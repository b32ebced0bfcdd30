package exchange

import (
	"fmt"
	"strings"
	"time"

	"hashbid/exchange/southxchange"
	"hashbid/exchange/tradeogre"
)

// Config 单个报价来源的配置
type Config struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// NewExchange 创建交易所实例
func NewExchange(cfg Config) (Exchange, error) {
	switch strings.ToLower(cfg.Name) {
	case "tradeogre":
		return &tradeOgreWrapper{client: tradeogre.NewTradeOgreClient(cfg.BaseURL, cfg.Timeout)}, nil
	case "southxchange":
		return &southXchangeWrapper{client: southxchange.NewSouthXchangeClient(cfg.BaseURL, cfg.Timeout)}, nil
	default:
		return nil, fmt.Errorf("不支持的交易所: %s", cfg.Name)
	}
}

// SupportedExchanges 支持的交易所列表
func SupportedExchanges() []string {
	return []string{"tradeogre", "southxchange"}
}
