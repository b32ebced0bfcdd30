package pool

import (
	"context"
	"sync"

	"hashbid/event"
	"hashbid/logger"
	"hashbid/metrics"
	"hashbid/strategy"
)

// Status 矿池最近一次已知状态
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusStarted Status = "started"
	StatusStopped Status = "stopped"
)

// Controller 远程矿池进程启停
type Controller interface {
	Start(ctx context.Context, host string) error
	Stop(ctx context.Context, host string) error
}

// Lifecycle 根据 ROI 启停矿池，只按最近状态去重，失败不重试
type Lifecycle struct {
	ctrl   Controller
	events event.Publisher
	pm     *metrics.PrometheusMetrics

	mu         sync.Mutex
	status     map[string]Status
	predicates map[string]strategy.PoolPredicate
}

// NewLifecycle 创建矿池生命周期管理
func NewLifecycle(ctrl Controller, events event.Publisher) *Lifecycle {
	if events == nil {
		events = event.NopPublisher{}
	}
	return &Lifecycle{
		ctrl:       ctrl,
		events:     events,
		pm:         metrics.GetPrometheusMetrics(),
		status:     make(map[string]Status),
		predicates: make(map[string]strategy.PoolPredicate),
	}
}

// SetPredicate 设置币种的启停条件（支持热更新）
func (l *Lifecycle) SetPredicate(coin string, p strategy.PoolPredicate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.predicates[coin] = p
}

// Status 返回矿池最近状态
func (l *Lifecycle) Status(host string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.status[host]; ok {
		return s
	}
	return StatusUnknown
}

// Statuses 所有矿池状态
func (l *Lifecycle) Statuses() map[string]Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Status, len(l.status))
	for k, v := range l.status {
		out[k] = v
	}
	return out
}

// MaybeStart 启动条件成立且最近状态不是 started 时启动矿池，返回是否发出了启动请求
func (l *Lifecycle) MaybeStart(ctx context.Context, coin, host string, roi float64) bool {
	return l.transition(ctx, coin, host, roi, StatusStarted)
}

// MaybeStop 与 MaybeStart 对称
func (l *Lifecycle) MaybeStop(ctx context.Context, coin, host string, roi float64) bool {
	return l.transition(ctx, coin, host, roi, StatusStopped)
}

func (l *Lifecycle) transition(ctx context.Context, coin, host string, roi float64, target Status) bool {
	if host == "" || l.ctrl == nil {
		return false
	}

	l.mu.Lock()
	pred := l.predicates[coin]
	should := pred.ShouldStop(roi)
	if target == StatusStarted {
		should = pred.ShouldStart(roi)
	}
	prev, known := l.status[host]
	if !should || (known && prev == target) {
		l.mu.Unlock()
		return false
	}
	// 先记录目标状态，其他订单的并发触发不会重复请求
	l.status[host] = target
	l.mu.Unlock()

	var err error
	if target == StatusStarted {
		err = l.ctrl.Start(ctx, host)
	} else {
		err = l.ctrl.Stop(ctx, host)
	}

	if err != nil {
		l.mu.Lock()
		if known {
			l.status[host] = prev
		} else {
			delete(l.status, host)
		}
		l.mu.Unlock()
		logger.Error("❌ [矿池 %s] %s 失败 (ROI %.4f): %v", host, target, roi, err)
		l.events.Publish(&event.Event{Type: event.EventTypePoolFailed, Data: map[string]interface{}{
			"coin": coin, "host": host, "action": string(target), "roi": roi, "error": err.Error(),
		}})
		return true
	}

	l.pm.SetPoolRunning(host, coin, target == StatusStarted)
	evtType := event.EventTypePoolStopped
	if target == StatusStarted {
		evtType = event.EventTypePoolStarted
	}
	logger.Info("✅ [矿池 %s] %s (%s ROI %.4f)", host, target, coin, roi)
	l.events.Publish(&event.Event{Type: evtType, Data: map[string]interface{}{
		"coin": coin, "host": host, "roi": roi,
	}})
	return true
}
