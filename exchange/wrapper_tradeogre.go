package exchange

import (
	"context"
	"time"

	"hashbid/exchange/tradeogre"
)

// tradeOgreWrapper TradeOgre 包装器
type tradeOgreWrapper struct {
	client *tradeogre.TradeOgreClient
}

func (w *tradeOgreWrapper) GetName() string {
	return "tradeogre"
}

// GetQuote 买价取盘口最高买单，卖价取最低卖单
func (w *tradeOgreWrapper) GetQuote(ctx context.Context, market string) (*Quote, error) {
	book, err := w.client.GetOrderBook(ctx, market)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Exchange: w.GetName(),
		Market:   market,
		Buy:      book.BestBid,
		Sell:     book.BestAsk,
		At:       time.Now(),
	}, nil
}
