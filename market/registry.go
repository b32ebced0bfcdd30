package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"hashbid/event"
	"hashbid/logger"
	"hashbid/metrics"
	"hashbid/nicehash"
)

// OrderBookClient 公开盘口接口
type OrderBookClient interface {
	GetOrders(ctx context.Context, location, algo int) ([]nicehash.MarketOrder, error)
}

// Broadcaster 把最新状态推送给看板
type Broadcaster interface {
	Broadcast(tag string, payload interface{})
}

// Key 盘口标识
type Key struct {
	Location int
	Algo     int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Location, k.Algo)
}

// BookMessage 推送给看板的盘口消息
type BookMessage struct {
	Location int                    `json:"location"`
	Algo     int                    `json:"algo"`
	Orders   []nicehash.MarketOrder `json:"orders"`
}

// BroadcastKey 看板按盘口保留最新消息
func (m BookMessage) BroadcastKey() string {
	return Key{m.Location, m.Algo}.String()
}

// Registry 按 (location, algo) 保存最新快照
type Registry struct {
	client      OrderBookClient
	topics      *event.Topics
	interval    time.Duration
	broadcaster Broadcaster
	pm          *metrics.PrometheusMetrics

	mu        sync.RWMutex
	snapshots map[Key]*Snapshot
	pairs     []Key

	wg sync.WaitGroup
}

// NewRegistry 创建盘口注册表，pairs 为需要轮询的组合
func NewRegistry(client OrderBookClient, topics *event.Topics, interval time.Duration, pairs [][2]int) *Registry {
	if topics == nil {
		topics = event.NewTopics()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	r := &Registry{
		client:    client,
		topics:    topics,
		interval:  interval,
		pm:        metrics.GetPrometheusMetrics(),
		snapshots: make(map[Key]*Snapshot),
	}
	for _, p := range pairs {
		r.pairs = append(r.pairs, Key{Location: p[0], Algo: p[1]})
	}
	return r
}

// SetBroadcaster 设置看板推送
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

// Pairs 轮询的盘口
func (r *Registry) Pairs() []Key {
	return r.pairs
}

// Refresh 拉取盘口并替换快照，失败时保留旧快照
func (r *Registry) Refresh(ctx context.Context, location, algo int) (*Snapshot, error) {
	orders, err := r.client.GetOrders(ctx, location, algo)
	if err != nil {
		logger.Warn("⚠️ [盘口 %d/%d] 获取失败: %v", location, algo, err)
		return nil, err
	}

	snap := NewSnapshot(location, algo, orders, time.Now())
	r.mu.Lock()
	r.snapshots[Key{location, algo}] = snap
	r.mu.Unlock()

	r.pm.SetMarketSnapshot(location, algo, len(snap.Orders), snap.TotalHashrate, snap.TotalWorkers)
	logger.Debug("📊 [盘口 %d/%d] %d 个订单, %.2f 算力, %d 矿工", location, algo, len(snap.Orders), snap.TotalHashrate, snap.TotalWorkers)

	if r.broadcaster != nil {
		r.broadcaster.Broadcast("orders", BookMessage{Location: location, Algo: algo, Orders: snap.Orders})
	}
	r.topics.SnapshotUpdated.Publish(event.SnapshotUpdated{Location: location, Algo: algo, At: snap.UpdatedAt})
	return snap, nil
}

// Get 获取最新快照
func (r *Registry) Get(location, algo int) (*Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[Key{location, algo}]
	return s, ok
}

// PriceForTargetHashrate 没有快照时返回 0
func (r *Registry) PriceForTargetHashrate(location, algo int, target float64) int64 {
	s, ok := r.Get(location, algo)
	if !ok {
		return 0
	}
	return s.PriceForTargetHashrate(target)
}

// MarketPosition 没有快照时返回 NaN
func (r *Registry) MarketPosition(location, algo int, orderID, price int64) float64 {
	s, ok := r.Get(location, algo)
	if !ok {
		return math.NaN()
	}
	return s.MarketPosition(orderID, price)
}

// CheapestFilled 没有快照时返回 false
func (r *Registry) CheapestFilled(location, algo int, minAccepted float64) (nicehash.MarketOrder, bool) {
	s, ok := r.Get(location, algo)
	if !ok {
		return nicehash.MarketOrder{}, false
	}
	return s.CheapestFilled(minAccepted)
}

// Start 每个盘口一个轮询
func (r *Registry) Start(ctx context.Context) {
	for _, key := range r.pairs {
		key := key
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()

			r.safeRefresh(ctx, key)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.safeRefresh(ctx, key)
				}
			}
		}()
	}
	logger.Info("✅ 盘口轮询已启动: %d 个盘口", len(r.pairs))
}

// Wait 等待轮询退出
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) safeRefresh(ctx context.Context, key Key) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("❌ [盘口 %s] 刷新 panic: %v", key, rec)
		}
	}()
	_, _ = r.Refresh(ctx, key.Location, key.Algo)
}
