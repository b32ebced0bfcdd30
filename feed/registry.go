package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hashbid/exchange"
	"hashbid/logger"
)

// Registry 每个币种一个 Feed
type Registry struct {
	difficultyInterval time.Duration
	priceInterval      time.Duration

	mu    sync.RWMutex
	feeds map[string]*Feed
	order []string

	wg sync.WaitGroup
}

// NewRegistry 创建行情注册表
func NewRegistry(difficultyInterval, priceInterval time.Duration) *Registry {
	if difficultyInterval <= 0 {
		difficultyInterval = 500 * time.Millisecond
	}
	if priceInterval <= 0 {
		priceInterval = 30 * time.Second
	}
	return &Registry{
		difficultyInterval: difficultyInterval,
		priceInterval:      priceInterval,
		feeds:              make(map[string]*Feed),
	}
}

// Add 注册币种行情
func (r *Registry) Add(f *Feed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.feeds[f.Coin()]; exists {
		return fmt.Errorf("币种 %s 已注册", f.Coin())
	}
	r.feeds[f.Coin()] = f
	r.order = append(r.order, f.Coin())
	return nil
}

// Get 查找币种行情
func (r *Registry) Get(coin string) (*Feed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[coin]
	return f, ok
}

// List 按注册顺序返回所有行情
func (r *Registry) List() []*Feed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Feed, 0, len(r.order))
	for _, coin := range r.order {
		list = append(list, r.feeds[coin])
	}
	return list
}

// BestPrice 币种最优买价，未知币种为 0
func (r *Registry) BestPrice(coin string) int64 {
	if f, ok := r.Get(coin); ok {
		return f.BestPrice()
	}
	return 0
}

// Difficulty 币种最新难度，还没有采样时返回 false
func (r *Registry) Difficulty(coin string) (uint64, bool) {
	f, ok := r.Get(coin)
	if !ok {
		return 0, false
	}
	s, ok := f.Difficulty()
	return s.Difficulty, ok
}

// Degraded 币种难度源是否处于降级状态
func (r *Registry) Degraded(coin string) bool {
	if f, ok := r.Get(coin); ok {
		return f.Degraded()
	}
	return false
}

// AllQuotes 按交易所分组的报价：exchange -> coin -> quote
func (r *Registry) AllQuotes() map[string]map[string]exchange.Quote {
	out := make(map[string]map[string]exchange.Quote)
	for _, f := range r.List() {
		for _, q := range f.Quotes() {
			if out[q.Exchange] == nil {
				out[q.Exchange] = make(map[string]exchange.Quote)
			}
			out[q.Exchange][f.Coin()] = q
		}
	}
	return out
}

// Start 为每个节点和每个报价来源启动独立的轮询
func (r *Registry) Start(ctx context.Context) {
	for _, f := range r.List() {
		f := f
		r.runAndSchedule(ctx, r.difficultyInterval, f.Coin()+" difficulty", func(ctx context.Context) {
			_ = f.PollDifficulty(ctx)
		})
		for _, src := range f.Sources() {
			src := src
			r.runAndSchedule(ctx, r.priceInterval, f.Coin()+" "+src.Exchange.GetName(), func(ctx context.Context) {
				_ = f.PollExchangePrice(ctx, src)
			})
		}
	}
	logger.Info("✅ 行情轮询已启动: %d 个币种", len(r.List()))
}

// Wait 等待所有轮询退出
func (r *Registry) Wait() {
	r.wg.Wait()
}

// runAndSchedule 立即执行一次，之后按间隔执行，单次 panic 不影响后续轮询
func (r *Registry) runAndSchedule(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		safePoll(ctx, name, fn)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				safePoll(ctx, name, fn)
			}
		}
	}()
}

func safePoll(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("❌ [%s] 轮询 panic: %v", name, rec)
		}
	}()
	fn(ctx)
}
