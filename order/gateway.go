package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"hashbid/database"
	"hashbid/event"
	"hashbid/lock"
	"hashbid/logger"
	"hashbid/metrics"
	"hashbid/nicehash"
	"hashbid/utils"
)

// ErrMutationBusy 同一 (订单, 属性) 已有请求在途
var ErrMutationBusy = errors.New("同一订单属性已有修改在进行中")

// Attribute 可修改的订单属性
type Attribute string

const (
	AttrLimit Attribute = "limit"
	AttrPrice Attribute = "price"
)

// 修改结果
const (
	OutcomeSuccess     = "success"
	OutcomeAlreadySet  = "already_set"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
	OutcomeBusy        = "busy"
)

// Marketplace 修改类市场接口，只有 Gateway 调用
type Marketplace interface {
	SetOrderLimit(ctx context.Context, req nicehash.LimitRequest) error
	SetOrderPrice(ctx context.Context, req nicehash.PriceRequest) error
}

// Recorder 修改记录持久化（database.Database 实现了它）
type Recorder interface {
	SaveMutation(ctx context.Context, m *database.MutationRecord) error
}

// LimitMutation 限额修改
type LimitMutation struct {
	OrderID  int64
	Coin     string
	Location int
	Algo     int
	From     float64
	To       float64
}

// PriceMutation 价格修改（聪）
type PriceMutation struct {
	OrderID  int64
	Coin     string
	Location int
	Algo     int
	From     int64
	To       int64
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	RateLimit float64 // 每秒请求数
	RateBurst int
	Retry     RetryPolicy
	LockTTL   time.Duration // 分布式锁过期时间
}

// GatewayOptions 可选依赖
type GatewayOptions struct {
	Lock     lock.DistributedLock // 多实例部署时的分布式锁
	Recorder Recorder
	Events   event.Publisher
	Summary  *metrics.MutationSummary
}

// Gateway 唯一调用修改类市场接口的组件：
// 同一 (订单, 属性) 最多一个请求在途，限流错误有界重试，“已设置”视为成功
type Gateway struct {
	market   Marketplace
	limiter  *rate.Limiter
	local    *lock.LocalLock
	dist     lock.DistributedLock
	retry    RetryPolicy
	lockTTL  time.Duration
	recorder Recorder
	events   event.Publisher
	summary  *metrics.MutationSummary
	pm       *metrics.PrometheusMetrics
}

// NewGateway 创建修改网关
func NewGateway(market Marketplace, cfg GatewayConfig, opts GatewayOptions) *Gateway {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if opts.Lock == nil {
		opts.Lock = lock.NewNopLock()
	}
	if opts.Events == nil {
		opts.Events = event.NopPublisher{}
	}
	if opts.Summary == nil {
		opts.Summary = metrics.NewMutationSummary()
	}
	return &Gateway{
		market:   market,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		local:    lock.NewLocalLock(),
		dist:     opts.Lock,
		retry:    cfg.Retry,
		lockTTL:  cfg.LockTTL,
		recorder: opts.Recorder,
		events:   opts.Events,
		summary:  opts.Summary,
		pm:       metrics.GetPrometheusMetrics(),
	}
}

// Summary 修改统计
func (g *Gateway) Summary() *metrics.MutationSummary {
	return g.summary
}

// InFlight 该 (订单, 属性) 是否有请求在途
func (g *Gateway) InFlight(orderID int64, attr Attribute) bool {
	return g.local.Held(lockKey(orderID, attr))
}

func lockKey(orderID int64, attr Attribute) string {
	return fmt.Sprintf("order:%d:%s", orderID, attr)
}

// SetLimit 修改限额
func (g *Gateway) SetLimit(ctx context.Context, m LimitMutation) error {
	info := mutationInfo{
		orderID: m.OrderID, attr: AttrLimit, coin: m.Coin, location: m.Location, algo: m.Algo,
		from: strconv.FormatFloat(m.From, 'f', -1, 64),
		to:   strconv.FormatFloat(m.To, 'f', -1, 64),
	}
	return g.mutate(ctx, info, func(ctx context.Context) error {
		return g.market.SetOrderLimit(ctx, nicehash.LimitRequest{
			Order: m.OrderID, Location: m.Location, Algo: m.Algo, Limit: m.To,
		})
	})
}

// SetPrice 修改价格
func (g *Gateway) SetPrice(ctx context.Context, m PriceMutation) error {
	info := mutationInfo{
		orderID: m.OrderID, attr: AttrPrice, coin: m.Coin, location: m.Location, algo: m.Algo,
		from: utils.FormatSats(m.From),
		to:   utils.FormatSats(m.To),
	}
	return g.mutate(ctx, info, func(ctx context.Context) error {
		return g.market.SetOrderPrice(ctx, nicehash.PriceRequest{
			Order: m.OrderID, Location: m.Location, Algo: m.Algo, Price: m.To,
		})
	})
}

type mutationInfo struct {
	orderID  int64
	attr     Attribute
	coin     string
	location int
	algo     int
	from     string
	to       string
}

func (g *Gateway) mutate(ctx context.Context, info mutationInfo, call func(context.Context) error) error {
	key := lockKey(info.orderID, info.attr)

	// 进程内互斥：已有在途请求时直接返回，不排队
	if ok, _ := g.local.TryLock(ctx, key, 0); !ok {
		g.pm.RecordMutation(info.coin, string(info.attr), OutcomeBusy, 0)
		return ErrMutationBusy
	}
	defer g.local.Unlock(context.Background(), key)

	// 多实例互斥：锁服务异常时降级为只用进程内锁
	acquired, err := g.dist.TryLock(ctx, key, g.lockTTL)
	if err != nil {
		logger.Warn("⚠️ [订单 %d] 获取分布式锁失败，继续执行: %v", info.orderID, err)
	} else if !acquired {
		logger.Debug("🔒 [订单 %d] %s 已被其他实例锁定，跳过", info.orderID, info.attr)
		g.pm.RecordMutation(info.coin, string(info.attr), OutcomeBusy, 0)
		return ErrMutationBusy
	} else {
		defer func() {
			if unlockErr := g.dist.Unlock(context.Background(), key); unlockErr != nil {
				logger.Warn("⚠️ [订单 %d] 释放分布式锁失败: %v", info.orderID, unlockErr)
			}
		}()
	}

	attemptID := uuid.NewString()
	start := time.Now()
	alreadySet, rateLimited := false, false

	attempts, err := Retry(ctx, g.retry, nicehash.IsRateLimited, func(attempt int) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("速率限制等待失败: %w", err)
		}
		callErr := call(ctx)
		switch {
		case callErr == nil:
			return nil
		case nicehash.IsAlreadySet(callErr):
			alreadySet = true
			return nil
		case nicehash.IsRateLimited(callErr):
			g.pm.RecordAPIRateLimitHit(string(info.attr))
			if !rateLimited {
				rateLimited = true
				g.events.Publish(&event.Event{Type: event.EventTypeRateLimited, Data: map[string]interface{}{
					"coin": info.coin, "order_id": info.orderID, "attribute": string(info.attr), "error": callErr.Error(),
				}})
			}
			logger.Warn("⚠️ [订单 %d] 修改%s触发限流(第 %d 次)，等待后重试", info.orderID, info.attr, attempt)
		}
		return callErr
	})
	duration := time.Since(start)

	outcome := OutcomeSuccess
	switch {
	case err == nil && alreadySet:
		outcome = OutcomeAlreadySet
	case err != nil && errors.Is(err, ErrRetriesExhausted):
		outcome = OutcomeRateLimited
	case err != nil:
		outcome = OutcomeFailed
	}

	g.pm.RecordMutation(info.coin, string(info.attr), outcome, duration)
	g.summary.Record(string(info.attr), err == nil, duration)
	g.record(info, attemptID, outcome, attempts, err, duration)

	if err != nil {
		logger.Warn("⚠️ [订单 %d] 修改%s %s -> %s 失败(尝试 %d 次): %v", info.orderID, info.attr, info.from, info.to, attempts, err)
		g.events.Publish(&event.Event{Type: event.EventTypeMutationFailed, Data: map[string]interface{}{
			"coin": info.coin, "order_id": info.orderID, "attribute": string(info.attr),
			"from": info.from, "to": info.to, "attempts": attempts, "error": err.Error(),
		}})
		return err
	}
	if alreadySet {
		logger.Info("✅ [订单 %d] %s 已是 %s", info.orderID, info.attr, info.to)
	} else {
		logger.Info("✅ [订单 %d] %s: %s -> %s", info.orderID, info.attr, info.from, info.to)
	}
	return nil
}

func (g *Gateway) record(info mutationInfo, attemptID, outcome string, attempts int, err error, d time.Duration) {
	if g.recorder == nil {
		return
	}
	rec := &database.MutationRecord{
		AttemptID:  attemptID,
		OrderID:    info.orderID,
		Attribute:  string(info.attr),
		Coin:       info.coin,
		Location:   info.location,
		Algo:       info.algo,
		FromValue:  info.from,
		ToValue:    info.to,
		Outcome:    outcome,
		Attempts:   attempts,
		DurationMs: d.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if saveErr := g.recorder.SaveMutation(ctx, rec); saveErr != nil {
		logger.Warn("⚠️ 保存修改记录失败: %v", saveErr)
	}
}
