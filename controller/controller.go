package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"hashbid/event"
	"hashbid/logger"
	"hashbid/metrics"
	"hashbid/nicehash"
	"hashbid/order"
	"hashbid/strategy"
)

// State 控制器状态
type State string

const (
	StateIdle            State = "idle"
	StateEvaluatingLimit State = "evaluating_limit"
	StateLimitInFlight   State = "limit_in_flight"
	StateEvaluatingPrice State = "evaluating_price"
	StatePriceInFlight   State = "price_in_flight"
)

// Gateway 订单修改入口（order.Gateway 实现了它）
type Gateway interface {
	SetLimit(ctx context.Context, m order.LimitMutation) error
	SetPrice(ctx context.Context, m order.PriceMutation) error
}

// ROICalculator 在调用时读取最新报价计算 ROI（strategy.Engine 实现了它）
type ROICalculator interface {
	ROI(coin string, difficulty uint64, priceSats int64) float64
}

// FeedState 币种行情状态（feed.Registry 实现了它）
type FeedState interface {
	Difficulty(coin string) (uint64, bool)
	Degraded(coin string) bool
}

// PoolActions 矿池启停（pool.Lifecycle 实现了它）
type PoolActions interface {
	MaybeStart(ctx context.Context, coin, host string, roi float64) bool
	MaybeStop(ctx context.Context, coin, host string, roi float64) bool
}

// MarketPositioner 订单在盘口中的位置（market.Registry 实现了它），没有数据时返回 NaN
type MarketPositioner interface {
	MarketPosition(location, algo int, orderID, price int64) float64
}

// CoinPolicy 单个币种的决策参数
type CoinPolicy struct {
	Coin       string
	Limit      strategy.LimitPolicy
	Pricer     strategy.Pricer
	MinWorkers int
}

// CoinContext 控制器读取币种策略和有效订单数
type CoinContext interface {
	Policy() CoinPolicy
	EffectiveOrders() int
}

// Deps 控制器依赖
type Deps struct {
	Gateway         Gateway
	ROI             ROICalculator
	Feeds           FeedState
	Pool            PoolActions
	Market          MarketPositioner
	Topics          *event.Topics
	Jitter          order.JitterFunc
	JitterMin       time.Duration
	JitterMax       time.Duration
	PriceRetryDelay time.Duration
}

// ManagedOrder 受控订单
type ManagedOrder struct {
	ID            int64   `json:"id"`
	Coin          string  `json:"coin"`
	Location      int     `json:"location"`
	Algo          int     `json:"algo"`
	PoolHost      string  `json:"pool_host"`
	Price         int64   `json:"price"`
	Limit         float64 `json:"limit"`
	Workers       int     `json:"workers"`
	AcceptedSpeed float64 `json:"accepted_speed"`
}

// Snapshot 控制器当前状态
type Snapshot struct {
	Order          ManagedOrder `json:"order"`
	State          State        `json:"state"`
	ROI            float64      `json:"roi"`
	DesiredLimit   float64      `json:"desired_limit"`
	SettingLimit   bool         `json:"setting_limit"`
	SettingPrice   bool         `json:"setting_price"`
	LastEvaluated  time.Time    `json:"last_evaluated"`
	MarketPosition *float64     `json:"market_position,omitempty"` // 价格低于本订单的矿工占比，盘口无数据时为空
}

// mutationSlot 单个属性的修改状态：空闲 -> 在途 -> 空闲
type mutationSlot struct {
	inFlight bool
	target   float64
}

func (s *mutationSlot) acquire(target float64) bool {
	if s.inFlight {
		return false
	}
	s.inFlight = true
	s.target = target
	return true
}

func (s *mutationSlot) release() {
	s.inFlight = false
}

type mutationResult struct {
	attr  order.Attribute
	limit float64
	price int64
	err   error
}

// Controller 一个受控订单一个控制器，所有决策在自己的 goroutine 中串行执行
type Controller struct {
	deps Deps
	coin CoinContext

	mu            sync.Mutex
	order         ManagedOrder
	state         State
	roi           float64
	desired       float64
	position      float64
	lastEvaluated time.Time
	limitSlot     mutationSlot
	priceSlot     mutationSlot

	wake    chan struct{}
	slow    chan struct{}
	results chan mutationResult

	priceTimer *time.Timer
	priceDue   <-chan time.Time

	unsubscribe []func()
	stopOnce    sync.Once
	stopCh      chan struct{}
	done        chan struct{}
	pm          *metrics.PrometheusMetrics
}

// NewController 创建控制器并订阅所属币种和盘口的事件
func NewController(o ManagedOrder, coin CoinContext, deps Deps) *Controller {
	if deps.Jitter == nil {
		deps.Jitter = order.RandomJitter
	}
	if deps.PriceRetryDelay <= 0 {
		deps.PriceRetryDelay = 5 * time.Second
	}
	c := &Controller{
		deps:     deps,
		coin:     coin,
		order:    o,
		state:    StateIdle,
		position: math.NaN(),
		wake:     make(chan struct{}, 1),
		slow:     make(chan struct{}, 1),
		results:  make(chan mutationResult, 2),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		pm:       metrics.GetPrometheusMetrics(),
	}
	if deps.Topics != nil {
		c.subscribe(deps.Topics)
	}
	return c
}

func (c *Controller) subscribe(t *event.Topics) {
	coin, loc, algo := c.order.Coin, c.order.Location, c.order.Algo
	c.unsubscribe = append(c.unsubscribe,
		t.DifficultyChanged.Subscribe(func(e event.DifficultyChanged) {
			if e.Coin == coin {
				c.Trigger()
			}
		}),
		t.PriceChanged.Subscribe(func(e event.PriceChanged) {
			if e.Coin == coin {
				c.Trigger()
			}
		}),
		t.SnapshotUpdated.Subscribe(func(e event.SnapshotUpdated) {
			if e.Location == loc && e.Algo == algo {
				c.Trigger()
			}
		}),
	)
}

// ID 订单号
func (c *Controller) ID() int64 {
	return c.order.ID
}

// Trigger 请求重新评估，多次触发会合并
func (c *Controller) Trigger() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Slow 把限额降到最低
func (c *Controller) Slow() {
	select {
	case c.slow <- struct{}{}:
	default:
	}
}

// Observe 用市场返回的订单刷新观测值，没有修改在途时同步价格和限额
func (c *Controller) Observe(o nicehash.MarketOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Workers = o.Workers
	c.order.AcceptedSpeed = o.AcceptedSpeed
	c.order.PoolHost = o.PoolHost
	if !c.limitSlot.inFlight {
		c.order.Limit = o.Limit
	}
	if !c.priceSlot.inFlight {
		c.order.Price = o.Price
	}
}

// Effective 矿工数严格大于 min_workers 的订单才参与限额均分，min_workers=0 即至少一个矿工
func (c *Controller) Effective(minWorkers int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Workers > minWorkers
}

// Snapshot 返回当前状态
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Order:         c.order,
		State:         c.state,
		ROI:           c.roi,
		DesiredLimit:  c.desired,
		SettingLimit:  c.limitSlot.inFlight,
		SettingPrice:  c.priceSlot.inFlight,
		LastEvaluated: c.lastEvaluated,
	}
	if !math.IsNaN(c.position) {
		p := c.position
		s.MarketPosition = &p
	}
	return s
}

// Run 控制循环，ctx 结束或 Stop 后退出
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	defer c.stopPriceTimer()

	logger.Info("🚀 [订单 %d] 开始管理 %s (location %d, algo %d)", c.order.ID, c.order.Coin, c.order.Location, c.order.Algo)
	c.safe("evaluate", func() { c.evaluate(ctx) })

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-c.wake:
			c.safe("evaluate", func() { c.evaluate(ctx) })
		case <-c.slow:
			c.safe("slow", func() { c.slowDown(ctx) })
		case <-c.priceDue:
			c.priceDue = nil
			c.safe("price", func() { c.evaluatePrice(ctx) })
		case res := <-c.results:
			c.safe("result", func() { c.onResult(res) })
		}
	}
}

// Stop 取消订阅并退出控制循环
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		for _, unsub := range c.unsubscribe {
			unsub()
		}
		close(c.stopCh)
	})
}

// Done 控制循环退出后关闭
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) safe(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ [订单 %d] %s panic: %v", c.order.ID, step, r)
		}
	}()
	fn()
}

func (c *Controller) evaluate(ctx context.Context) {
	policy := c.coin.Policy()

	c.mu.Lock()
	c.state = StateEvaluatingLimit
	o := c.order
	c.mu.Unlock()

	var roi float64
	if difficulty, ok := c.deps.Feeds.Difficulty(o.Coin); ok {
		roi = c.deps.ROI.ROI(o.Coin, difficulty, o.Price)
	}

	c.maybeTogglePool(ctx, o, roi)

	position := math.NaN()
	if c.deps.Market != nil {
		position = c.deps.Market.MarketPosition(o.Location, o.Algo, o.ID, o.Price)
	}

	desired := policy.Limit.Limit(roi, c.coin.EffectiveOrders())
	if c.deps.Feeds.Degraded(o.Coin) {
		desired = policy.Limit.Floor
	}

	c.mu.Lock()
	c.roi = roi
	c.desired = desired
	c.position = position
	c.lastEvaluated = time.Now()
	c.mu.Unlock()
	c.pm.SetOrderState(o.ID, o.Coin, roi, o.Limit, o.Price)

	if desired != o.Limit {
		c.dispatchLimit(ctx, desired)
	}

	if policy.Limit.Active(desired) {
		if c.priceDue == nil {
			c.schedulePrice(c.deps.Jitter(c.deps.JitterMin, c.deps.JitterMax))
		}
	} else {
		c.stopPriceTimer()
	}
	c.settle()
}

func (c *Controller) maybeTogglePool(ctx context.Context, o ManagedOrder, roi float64) {
	if c.deps.Pool == nil || o.PoolHost == "" {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("❌ [订单 %d] 矿池控制 panic: %v", o.ID, r)
			}
		}()
		if !c.deps.Pool.MaybeStart(ctx, o.Coin, o.PoolHost, roi) {
			c.deps.Pool.MaybeStop(ctx, o.Coin, o.PoolHost, roi)
		}
	}()
}

func (c *Controller) slowDown(ctx context.Context) {
	policy := c.coin.Policy()
	c.mu.Lock()
	current := c.order.Limit
	c.desired = policy.Limit.Floor
	c.mu.Unlock()

	c.stopPriceTimer()
	if current != policy.Limit.Floor {
		logger.Warn("⚠️ [订单 %d] 难度源异常，限额降到 %.2f", c.order.ID, policy.Limit.Floor)
		c.dispatchLimit(ctx, policy.Limit.Floor)
	}
	c.settle()
}

func (c *Controller) dispatchLimit(ctx context.Context, to float64) {
	c.mu.Lock()
	if !c.limitSlot.acquire(to) {
		c.mu.Unlock()
		return
	}
	c.state = StateLimitInFlight
	o := c.order
	c.mu.Unlock()

	m := order.LimitMutation{OrderID: o.ID, Coin: o.Coin, Location: o.Location, Algo: o.Algo, From: o.Limit, To: to}
	go func() {
		res := mutationResult{attr: order.AttrLimit, limit: to}
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("panic: %v", r)
			}
			c.results <- res
		}()
		res.err = c.deps.Gateway.SetLimit(ctx, m)
	}()
}

func (c *Controller) evaluatePrice(ctx context.Context) {
	policy := c.coin.Policy()

	c.mu.Lock()
	if !policy.Limit.Active(c.desired) || c.priceSlot.inFlight {
		c.mu.Unlock()
		return
	}
	c.state = StateEvaluatingPrice
	o := c.order
	c.mu.Unlock()

	target, ok := policy.Pricer.TargetPrice(strategy.PriceInput{Location: o.Location, Algo: o.Algo, Current: o.Price})
	if ok && target > o.Price {
		c.mu.Lock()
		acquired := c.priceSlot.acquire(float64(target))
		if acquired {
			c.state = StatePriceInFlight
		}
		c.mu.Unlock()

		if acquired {
			m := order.PriceMutation{OrderID: o.ID, Coin: o.Coin, Location: o.Location, Algo: o.Algo, From: o.Price, To: target}
			go func() {
				res := mutationResult{attr: order.AttrPrice, price: target}
				defer func() {
					if r := recover(); r != nil {
						res.err = fmt.Errorf("panic: %v", r)
					}
					c.results <- res
				}()
				res.err = c.deps.Gateway.SetPrice(ctx, m)
			}()
		}
	}
	c.settle()
}

func (c *Controller) onResult(res mutationResult) {
	c.mu.Lock()
	switch res.attr {
	case order.AttrLimit:
		c.limitSlot.release()
		if res.err == nil {
			c.order.Limit = res.limit
		}
	case order.AttrPrice:
		c.priceSlot.release()
		if res.err == nil {
			c.order.Price = res.price
		}
	}
	o := c.order
	roi := c.roi
	c.mu.Unlock()

	if res.err != nil && !errors.Is(res.err, order.ErrMutationBusy) {
		logger.Warn("⚠️ [订单 %d] 修改%s失败，等待下一次触发: %v", o.ID, res.attr, res.err)
	}
	if res.err != nil && res.attr == order.AttrPrice {
		c.schedulePrice(c.deps.PriceRetryDelay)
	}
	c.pm.SetOrderState(o.ID, o.Coin, roi, o.Limit, o.Price)
	c.settle()
}

func (c *Controller) schedulePrice(d time.Duration) {
	c.stopPriceTimer()
	c.priceTimer = time.NewTimer(d)
	c.priceDue = c.priceTimer.C
}

func (c *Controller) stopPriceTimer() {
	if c.priceTimer != nil {
		c.priceTimer.Stop()
		c.priceTimer = nil
	}
	c.priceDue = nil
}

// settle 按在途修改回到对应状态
func (c *Controller) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.limitSlot.inFlight:
		c.state = StateLimitInFlight
	case c.priceSlot.inFlight:
		c.state = StatePriceInFlight
	default:
		c.state = StateIdle
	}
}
