package strategy

import (
	"math"

	"hashbid/config"
)

// SecondsPerDay 每天秒数
const SecondsPerDay = 86400

// CoinParams 计算收益所需的币种参数
type CoinParams struct {
	Symbol        string
	NetworkReward float64 // 区块奖励（最小单位）
	UnitScale     int     // 最小单位小数位
	HashrateUnit  float64 // 市场价格对应的算力（H/s）
}

// CoinParamsFromConfig 从币种配置提取参数
func CoinParamsFromConfig(c config.CoinConfig) CoinParams {
	return CoinParams{
		Symbol:        c.Symbol,
		NetworkReward: c.NetworkReward,
		UnitScale:     c.UnitScale,
		HashrateUnit:  c.HashrateUnit,
	}
}

// PayoutPerDay 一个算力单位挖一天的期望收益（币）
func PayoutPerDay(p CoinParams, difficulty uint64) float64 {
	if difficulty == 0 {
		return 0
	}
	return p.HashrateUnit * SecondsPerDay / float64(difficulty) * p.NetworkReward / math.Pow10(p.UnitScale)
}

// ROI 订单价格（聪/算力单位/天）下的收益率：
// cost 为买一个单位一天算力所需的币数，roi = (payout - cost) / cost - feeRate。
// 难度或价格缺失时返回 0
func ROI(p CoinParams, difficulty uint64, priceSats, bestPriceSats int64, feeRate float64) float64 {
	if difficulty == 0 || priceSats <= 0 || bestPriceSats <= 0 {
		return 0
	}
	payout := PayoutPerDay(p, difficulty)
	cost := float64(priceSats) / float64(bestPriceSats)
	roi := (payout-cost)/cost - feeRate
	if math.IsNaN(roi) || math.IsInf(roi, 0) {
		return 0
	}
	return roi
}

// PriceSource 提供币种当前最优买价（聪）
type PriceSource interface {
	BestPrice(coin string) int64
}

// Engine 在调用时读取最新报价计算 ROI
type Engine struct {
	prices  PriceSource
	feeRate float64
	coins   map[string]CoinParams
}

// NewEngine 创建 ROI 计算器
func NewEngine(prices PriceSource, feeRate float64, coins []CoinParams) *Engine {
	e := &Engine{prices: prices, feeRate: feeRate, coins: make(map[string]CoinParams, len(coins))}
	for _, c := range coins {
		e.coins[c.Symbol] = c
	}
	return e
}

// ROI 未知币种返回 0
func (e *Engine) ROI(coin string, difficulty uint64, priceSats int64) float64 {
	p, ok := e.coins[coin]
	if !ok {
		return 0
	}
	return ROI(p, difficulty, priceSats, e.prices.BestPrice(coin), e.feeRate)
}

// FeeRate 市场手续费率
func (e *Engine) FeeRate() float64 {
	return e.feeRate
}
