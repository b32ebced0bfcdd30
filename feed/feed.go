package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hashbid/daemon"
	"hashbid/database"
	"hashbid/event"
	"hashbid/exchange"
	"hashbid/logger"
	"hashbid/metrics"
)

// ErrNoQuote 币种还没有任何可用报价
var ErrNoQuote = errors.New("没有可用报价")

// DaemonClient 节点接口
type DaemonClient interface {
	GetInfo(ctx context.Context) (*daemon.Info, error)
}

// Recorder 采样持久化接口（database.Database 实现了它）
type Recorder interface {
	SaveDifficulty(ctx context.Context, d *database.DifficultyRecord) error
	SaveQuote(ctx context.Context, q *database.QuoteRecord) error
}

// DifficultySample 一次成功的难度采样
type DifficultySample struct {
	Coin       string    `json:"coin"`
	Difficulty uint64    `json:"difficulty"`
	Height     uint64    `json:"height"`
	At         time.Time `json:"at"`
}

// Source 币种在某个交易所的报价来源
type Source struct {
	Exchange exchange.Exchange
	Market   string
}

// Options 创建 Feed 的参数
type Options struct {
	Coin              string
	SafetyCritical    bool
	SlowAfterFailures int
	Daemon            DaemonClient
	Sources           []Source
	Topics            *event.Topics
	Events            event.Publisher
	Recorder          Recorder // 可以为 nil
}

// Feed 单个币种的难度和报价缓存，每个数据源只有一个写入者
type Feed struct {
	coin              string
	safetyCritical    bool
	slowAfterFailures int
	daemon            DaemonClient
	sources           []Source
	topics            *event.Topics
	events            event.Publisher
	recorder          Recorder
	pm                *metrics.PrometheusMetrics
	now               func() time.Time

	mu               sync.RWMutex
	sample           *DifficultySample
	lastBlock        time.Time
	quotes           map[string]exchange.Quote
	difficultyErrors int
	quoteErrors      map[string]int
	degraded         bool
}

// NewFeed 创建币种行情
func NewFeed(opts Options) *Feed {
	if opts.SlowAfterFailures <= 0 {
		opts.SlowAfterFailures = 1
	}
	if opts.Topics == nil {
		opts.Topics = event.NewTopics()
	}
	if opts.Events == nil {
		opts.Events = event.NopPublisher{}
	}
	return &Feed{
		coin:              opts.Coin,
		safetyCritical:    opts.SafetyCritical,
		slowAfterFailures: opts.SlowAfterFailures,
		daemon:            opts.Daemon,
		sources:           opts.Sources,
		topics:            opts.Topics,
		events:            opts.Events,
		recorder:          opts.Recorder,
		pm:                metrics.GetPrometheusMetrics(),
		now:               time.Now,
		quotes:            make(map[string]exchange.Quote),
		quoteErrors:       make(map[string]int),
	}
}

// Coin 币种符号
func (f *Feed) Coin() string {
	return f.coin
}

// Sources 报价来源
func (f *Feed) Sources() []Source {
	return f.sources
}

// PollDifficulty 查询节点难度。难度变化时发布一次 DifficultyChanged；
// 安全关键币种连续失败超过阈值时发布 FeedDegraded
func (f *Feed) PollDifficulty(ctx context.Context) error {
	info, err := f.daemon.GetInfo(ctx)
	if err != nil {
		f.onDifficultyError(err)
		return err
	}

	now := f.now()
	f.mu.Lock()
	prev := f.sample
	wasDegraded := f.degraded
	var sinceBlock time.Duration
	if !f.lastBlock.IsZero() {
		sinceBlock = now.Sub(f.lastBlock)
	}
	f.difficultyErrors = 0
	f.degraded = false
	if prev == nil || prev.Height != info.Height {
		f.lastBlock = now
	}
	changed := prev == nil || prev.Difficulty != info.Difficulty
	f.sample = &DifficultySample{Coin: f.coin, Difficulty: info.Difficulty, Height: info.Height, At: now}
	f.mu.Unlock()

	if wasDegraded {
		logger.Info("✅ [%s] 难度源已恢复", f.coin)
		f.pm.SetFeedDegraded(f.coin, false)
		f.events.Publish(&event.Event{Type: event.EventTypeFeedRecovered, Data: map[string]interface{}{"coin": f.coin}})
	}
	if !changed {
		return nil
	}

	f.logDifficultyChange(prev, info, sinceBlock)
	f.pm.SetDifficulty(f.coin, info.Difficulty, info.Height)
	if f.recorder != nil {
		if err := f.recorder.SaveDifficulty(ctx, &database.DifficultyRecord{
			Coin: f.coin, Difficulty: info.Difficulty, Height: info.Height, CreatedAt: now,
		}); err != nil {
			logger.Warn("⚠️ [%s] 保存难度失败: %v", f.coin, err)
		}
	}
	f.topics.DifficultyChanged.Publish(event.DifficultyChanged{
		Coin: f.coin, Difficulty: info.Difficulty, Height: info.Height, At: now,
	})
	return nil
}

func (f *Feed) onDifficultyError(err error) {
	f.mu.Lock()
	f.difficultyErrors++
	failures := f.difficultyErrors
	degrade := f.safetyCritical && failures > f.slowAfterFailures
	firstDegrade := degrade && !f.degraded
	if degrade {
		f.degraded = true
	}
	f.mu.Unlock()

	f.pm.RecordFeedError(f.coin, "daemon")
	logger.Warn("⚠️ [%s] 获取难度失败(连续 %d 次): %v", f.coin, failures, err)

	if !degrade {
		return
	}
	if firstDegrade {
		f.pm.SetFeedDegraded(f.coin, true)
		f.events.Publish(&event.Event{
			Type: event.EventTypeFeedDegraded,
			Data: map[string]interface{}{"coin": f.coin, "failures": failures, "error": err.Error()},
		})
	}
	f.topics.FeedDegraded.Publish(event.FeedDegraded{Coin: f.coin, Failures: failures})
}

func (f *Feed) logDifficultyChange(prev *DifficultySample, info *daemon.Info, sinceBlock time.Duration) {
	if prev == nil {
		logger.Info("📊 [%s] 难度: %d 高度: %d", f.coin, info.Difficulty, info.Height)
		return
	}
	delta := int64(info.Difficulty) - int64(prev.Difficulty)
	pct := float64(delta) / float64(prev.Difficulty) * 100
	arrow := "📈"
	if delta < 0 {
		arrow = "📉"
	}
	logger.Info("%s [%s] 难度: %d (%+d, %+.2f%%) 高度: %d 距上个区块: %.1fs",
		arrow, f.coin, info.Difficulty, delta, pct, info.Height, sinceBlock.Seconds())
}

// PollExchangePrice 查询一个交易所报价。失败时保留旧报价
func (f *Feed) PollExchangePrice(ctx context.Context, src Source) error {
	name := src.Exchange.GetName()
	q, err := src.Exchange.GetQuote(ctx, src.Market)
	if err != nil {
		return f.quoteFailed(name, fmt.Errorf("%s %s: %w", name, src.Market, err))
	}
	if q.Buy <= 0 {
		return f.quoteFailed(name, fmt.Errorf("%s %s: 买价无效 %d", name, src.Market, q.Buy))
	}

	f.mu.Lock()
	prev, had := f.quotes[name]
	f.quotes[name] = *q
	f.quoteErrors[name] = 0
	best := f.bestPriceLocked()
	f.mu.Unlock()

	if !had || prev.Buy != q.Buy {
		logger.Info("💱 [%s] %s 买价: %d 卖价: %d 最优买价: %d 聪", f.coin, name, q.Buy, q.Sell, best)
	}
	f.pm.SetExchangeQuote(name, f.coin, q.Buy, q.Sell)
	f.pm.SetBestPrice(f.coin, best)
	if f.recorder != nil {
		if err := f.recorder.SaveQuote(ctx, &database.QuoteRecord{
			Coin: f.coin, Exchange: name, Buy: q.Buy, Sell: q.Sell, CreatedAt: q.At,
		}); err != nil {
			logger.Warn("⚠️ [%s] 保存报价失败: %v", f.coin, err)
		}
	}
	f.topics.PriceChanged.Publish(event.PriceChanged{Coin: f.coin, Exchange: name, BestPrice: best, At: q.At})
	return nil
}

// quoteFailed 记录一次报价失败，旧报价保留
func (f *Feed) quoteFailed(name string, err error) error {
	f.mu.Lock()
	f.quoteErrors[name]++
	n := f.quoteErrors[name]
	f.mu.Unlock()
	f.pm.RecordFeedError(f.coin, name)
	logger.Warn("⚠️ [%s] 获取 %s 报价失败(连续 %d 次): %v", f.coin, name, n, err)
	return err
}

func (f *Feed) bestPriceLocked() int64 {
	var best int64
	for _, q := range f.quotes {
		if q.Buy > best {
			best = q.Buy
		}
	}
	return best
}

// BestPrice 所有交易所中最高的买价（聪），没有报价时为 0
func (f *Feed) BestPrice() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bestPriceLocked()
}

// BestQuote 买价最高的报价
func (f *Feed) BestQuote() (exchange.Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var best exchange.Quote
	for _, q := range f.quotes {
		if q.Buy > best.Buy {
			best = q
		}
	}
	if best.Buy == 0 {
		return exchange.Quote{}, ErrNoQuote
	}
	return best, nil
}

// Quotes 按交易所名排序的报价
func (f *Feed) Quotes() []exchange.Quote {
	f.mu.RLock()
	quotes := make([]exchange.Quote, 0, len(f.quotes))
	for _, q := range f.quotes {
		quotes = append(quotes, q)
	}
	f.mu.RUnlock()
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Exchange < quotes[j].Exchange })
	return quotes
}

// Difficulty 最近一次难度采样
func (f *Feed) Difficulty() (DifficultySample, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.sample == nil {
		return DifficultySample{}, false
	}
	return *f.sample, true
}

// Degraded 难度源是否处于连续失败状态
func (f *Feed) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

// DifficultyErrors 连续失败次数
func (f *Feed) DifficultyErrors() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.difficultyErrors
}

// TimeSinceBlock 距离最近一次高度变化的时间
func (f *Feed) TimeSinceBlock() time.Duration {
	f.mu.RLock()
	last := f.lastBlock
	f.mu.RUnlock()
	if last.IsZero() {
		return 0
	}
	return f.now().Sub(last)
}

// Status 供状态接口展示
type Status struct {
	Coin             string            `json:"coin"`
	Difficulty       *DifficultySample `json:"difficulty,omitempty"`
	BestPrice        int64             `json:"best_price"`
	Quotes           []exchange.Quote  `json:"quotes"`
	Degraded         bool              `json:"degraded"`
	DifficultyErrors int               `json:"difficulty_errors"`
	SinceBlock       string            `json:"since_block"`
}

// Status 返回当前状态
func (f *Feed) Status() Status {
	st := Status{
		Coin:             f.coin,
		BestPrice:        f.BestPrice(),
		Quotes:           f.Quotes(),
		Degraded:         f.Degraded(),
		DifficultyErrors: f.DifficultyErrors(),
		SinceBlock:       f.TimeSinceBlock().Round(time.Second).String(),
	}
	if s, ok := f.Difficulty(); ok {
		st.Difficulty = &s
	}
	return st
}
