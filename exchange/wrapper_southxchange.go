package exchange

import (
	"context"
	"time"

	"hashbid/exchange/southxchange"
)

// southXchangeWrapper SouthXchange 包装器
type southXchangeWrapper struct {
	client *southxchange.SouthXchangeClient
}

func (w *southXchangeWrapper) GetName() string {
	return "southxchange"
}

func (w *southXchangeWrapper) GetQuote(ctx context.Context, market string) (*Quote, error) {
	price, err := w.client.GetPrice(ctx, market)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Exchange: w.GetName(),
		Market:   market,
		Buy:      price.Bid,
		Sell:     price.Ask,
		At:       time.Now(),
	}, nil
}
