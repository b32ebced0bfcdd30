package wallet

import (
	"context"
	"math"
	"sync"
	"time"

	"hashbid/logger"
	"hashbid/metrics"
)

// MarketplaceKey 市场账户在余额消息中的键
const MarketplaceKey = "marketplace"

// Source 一个需要查询余额的钱包
type Source struct {
	Coin      string
	UnitScale int // 最小单位小数位，只用于日志和指标
	Address   string
	RPC       RPC
}

// Poller 定时查询钱包和市场账户余额，结果只用于展示
type Poller struct {
	sources     []Source
	market      MarketBalance
	interval    time.Duration
	broadcaster Broadcaster
	pm          *metrics.PrometheusMetrics

	mu       sync.RWMutex
	balances map[string]Balance

	wg sync.WaitGroup
}

// NewPoller 创建余额轮询，market 可以为 nil
func NewPoller(sources []Source, market MarketBalance, interval time.Duration, b Broadcaster) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		sources:     sources,
		market:      market,
		interval:    interval,
		broadcaster: b,
		pm:          metrics.GetPrometheusMetrics(),
		balances:    make(map[string]Balance),
	}
}

// Poll 查询一次所有余额，单个失败只记录日志并保留旧值
func (p *Poller) Poll(ctx context.Context) map[string]Balance {
	for _, src := range p.sources {
		b, err := GetBalance(ctx, src.RPC, src.Address)
		if err != nil {
			logger.Warn("⚠️ [钱包 %s] 查询余额失败: %v", src.Coin, err)
			continue
		}
		p.store(src.Coin, b)
		scale := math.Pow10(src.UnitScale)
		p.pm.SetWalletBalance(src.Coin, "available", float64(b.Available)/scale)
		p.pm.SetWalletBalance(src.Coin, "locked", float64(b.Locked)/scale)
		logger.Debug("💰 [钱包 %s] 可用 %.2f, 锁定 %.2f", src.Coin, float64(b.Available)/scale, float64(b.Locked)/scale)
	}

	if p.market != nil {
		mb, err := p.market.GetMyBalance(ctx)
		if err != nil {
			logger.Warn("⚠️ 查询市场余额失败: %v", err)
		} else {
			p.store(MarketplaceKey, Balance{Available: mb.Confirmed, Locked: mb.Pending})
			p.pm.SetWalletBalance("BTC", "confirmed", float64(mb.Confirmed)/1e8)
			p.pm.SetWalletBalance("BTC", "pending", float64(mb.Pending)/1e8)
		}
	}

	balances := p.Balances()
	if p.broadcaster != nil && len(balances) > 0 {
		p.broadcaster.Broadcast("wallet-balances", balances)
	}
	return balances
}

func (p *Poller) store(name string, b Balance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[name] = b
}

// Balances 最近一次成功查询的余额
func (p *Poller) Balances() map[string]Balance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Balance, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out
}

// Start 启动轮询
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.safePoll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.safePoll(ctx)
			}
		}
	}()
}

// Wait 等待轮询退出
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ 余额轮询 panic: %v", r)
		}
	}()
	p.Poll(ctx)
}
