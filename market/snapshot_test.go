package market

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"hashbid/event"
	"hashbid/nicehash"
)

func book() []nicehash.MarketOrder {
	return []nicehash.MarketOrder{
		{ID: 1, Type: 0, Price: 300, Limit: 2, AcceptedSpeed: 2, Workers: 4},
		{ID: 2, Type: 0, Price: 500, Limit: 1, AcceptedSpeed: 1, Workers: 2},
		{ID: 3, Type: 1, Price: 900, Limit: 5, AcceptedSpeed: 5, Workers: 10}, // 固定单，忽略
		{ID: 4, Type: 0, Price: 100, Limit: 0, AcceptedSpeed: 0.5, Workers: 1},
		{ID: 5, Type: 0, Price: 200, Limit: 3, AcceptedSpeed: 0, Workers: 0},
	}
}

func TestNewSnapshotAggregates(t *testing.T) {
	s := NewSnapshot(0, 22, book(), time.Now())

	if len(s.Orders) != 4 {
		t.Fatalf("应只保留标准单: %d", len(s.Orders))
	}
	for i := 1; i < len(s.Orders); i++ {
		if s.Orders[i-1].Price < s.Orders[i].Price {
			t.Fatalf("未按价格降序: %+v", s.Orders)
		}
	}

	sum := 0
	for _, o := range s.Orders {
		sum += o.Workers
	}
	if s.TotalWorkers != sum || s.TotalWorkers != 7 {
		t.Errorf("矿工总数错误: %d", s.TotalWorkers)
	}
	if s.TotalHashrate != 3.5 {
		t.Errorf("算力总数错误: %v", s.TotalHashrate)
	}
	if s.HashratePerWorker != s.TotalHashrate/float64(s.TotalWorkers) {
		t.Errorf("每矿工算力错误: %v", s.HashratePerWorker)
	}
}

func TestNewSnapshotEmpty(t *testing.T) {
	s := NewSnapshot(0, 22, nil, time.Now())
	if s.TotalWorkers != 0 || s.HashratePerWorker != 0 {
		t.Errorf("空盘口聚合值应为 0: %+v", s)
	}
	if s.PriceForTargetHashrate(1) != 0 {
		t.Error("空盘口目标价应为 0")
	}
}

func TestPriceForTargetHashrate(t *testing.T) {
	s := NewSnapshot(0, 22, book(), time.Now())
	// 总算力 3.5，降序: 500(1) 300(2) 200(3) 100(不限)
	tests := []struct {
		target float64
		want   int64
	}{
		{0.1, 200},  // 3.5-1=2.5, 3.5-3=0.5, 3.5-6<0.1
		{1, 300},    // 3.5-3=0.5<1
		{3, 500},    // 3.5-1=2.5<3
		{-100, 100}, // 只有不限额订单能吸收全部
	}
	for _, tt := range tests {
		if got := s.PriceForTargetHashrate(tt.target); got != tt.want {
			t.Errorf("target=%v: 期望 %d, 得到 %d", tt.target, tt.want, got)
		}
	}
}

func TestMarketPosition(t *testing.T) {
	s := NewSnapshot(0, 22, book(), time.Now())

	// 价格 300 的订单 1：上方 2 个矿工，下方 1 个
	got := s.MarketPosition(1, 300)
	if math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("市场位置错误: %v", got)
	}

	empty := NewSnapshot(0, 22, []nicehash.MarketOrder{{ID: 9, Price: 10, Workers: 3}}, time.Now())
	if !math.IsNaN(empty.MarketPosition(9, 10)) {
		t.Error("上下都没有矿工时应为 NaN")
	}
}

func TestCheapestFilled(t *testing.T) {
	s := NewSnapshot(0, 22, book(), time.Now())

	o, ok := s.CheapestFilled(0)
	if !ok || o.ID != 4 {
		t.Errorf("最便宜的有矿工订单应为 4: %+v", o)
	}
	o, ok = s.CheapestFilled(1)
	if !ok || o.ID != 1 {
		t.Errorf("已接受算力大于 1 的最便宜订单应为 1: %+v", o)
	}
	if _, ok := s.CheapestFilled(100); ok {
		t.Error("没有满足条件的订单时应返回 false")
	}
}

type mockBook struct {
	orders []nicehash.MarketOrder
	err    error
}

func (m *mockBook) GetOrders(ctx context.Context, location, algo int) ([]nicehash.MarketOrder, error) {
	return m.orders, m.err
}

type captureBroadcaster struct {
	tags []string
}

func (c *captureBroadcaster) Broadcast(tag string, payload interface{}) {
	c.tags = append(c.tags, tag)
}

func TestRegistryRefresh(t *testing.T) {
	client := &mockBook{orders: book()}
	topics := event.NewTopics()
	r := NewRegistry(client, topics, time.Second, [][2]int{{0, 22}})
	b := &captureBroadcaster{}
	r.SetBroadcaster(b)

	var updates []event.SnapshotUpdated
	topics.SnapshotUpdated.Subscribe(func(e event.SnapshotUpdated) { updates = append(updates, e) })

	if _, ok := r.Get(0, 22); ok {
		t.Fatal("刷新前不应有快照")
	}
	if !math.IsNaN(r.MarketPosition(0, 22, 1, 300)) {
		t.Error("没有快照时市场位置应为 NaN")
	}

	if _, err := r.Refresh(context.Background(), 0, 22); err != nil {
		t.Fatalf("刷新失败: %v", err)
	}
	if len(updates) != 1 || updates[0].Algo != 22 {
		t.Errorf("快照事件错误: %+v", updates)
	}
	if len(b.tags) != 1 || b.tags[0] != "orders" {
		t.Errorf("看板推送错误: %v", b.tags)
	}
	if r.PriceForTargetHashrate(0, 22, 1) != 300 {
		t.Error("注册表目标价错误")
	}

	client.err = errors.New("timeout")
	if _, err := r.Refresh(context.Background(), 0, 22); err == nil {
		t.Fatal("期望返回错误")
	}
	if s, ok := r.Get(0, 22); !ok || len(s.Orders) != 4 {
		t.Error("失败时应保留旧快照")
	}
	if len(updates) != 1 {
		t.Error("失败时不应发布事件")
	}
}
