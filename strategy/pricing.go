package strategy

import (
	"fmt"

	"hashbid/config"
	"hashbid/nicehash"
)

// Book 定价所需的盘口查询（market.Registry 实现了它）
type Book interface {
	PriceForTargetHashrate(location, algo int, target float64) int64
	CheapestFilled(location, algo int, minAccepted float64) (nicehash.MarketOrder, bool)
}

// PriceInput 定价输入
type PriceInput struct {
	Location int
	Algo     int
	Current  int64 // 订单当前价格（聪）
}

// Pricer 订单定价策略，返回 false 表示本轮没有目标价
type Pricer interface {
	Name() string
	TargetPrice(in PriceInput) (int64, bool)
}

// NewPricer 按配置创建定价策略
func NewPricer(cfg config.PricingConfig, book Book) (Pricer, error) {
	inc := cfg.IncrementSats()
	switch cfg.Strategy {
	case config.PricingPassthrough:
		return passthroughPricer{}, nil
	case config.PricingTargetHashrate:
		return &targetHashratePricer{book: book, target: cfg.TargetHashrate, increment: inc}, nil
	case config.PricingCheapestFilled, "":
		return &cheapestFilledPricer{book: book, minAccepted: cfg.MinAccepted, increment: inc}, nil
	default:
		return nil, fmt.Errorf("未知定价策略: %s", cfg.Strategy)
	}
}

// passthroughPricer 保持订单最近一次成功的价格
type passthroughPricer struct{}

func (passthroughPricer) Name() string { return config.PricingPassthrough }

func (passthroughPricer) TargetPrice(in PriceInput) (int64, bool) {
	return in.Current, in.Current > 0
}

// targetHashratePricer 保证上方留有 target 算力的价格再加价
type targetHashratePricer struct {
	book      Book
	target    float64
	increment int64
}

func (p *targetHashratePricer) Name() string { return config.PricingTargetHashrate }

func (p *targetHashratePricer) TargetPrice(in PriceInput) (int64, bool) {
	price := p.book.PriceForTargetHashrate(in.Location, in.Algo, p.target)
	if price <= 0 {
		return 0, false
	}
	return price + p.increment, true
}

// cheapestFilledPricer 比最便宜的有效成交订单高一个加价幅度
type cheapestFilledPricer struct {
	book        Book
	minAccepted float64
	increment   int64
}

func (p *cheapestFilledPricer) Name() string { return config.PricingCheapestFilled }

func (p *cheapestFilledPricer) TargetPrice(in PriceInput) (int64, bool) {
	o, ok := p.book.CheapestFilled(in.Location, in.Algo, p.minAccepted)
	if !ok {
		return 0, false
	}
	return o.Price + p.increment, true
}
