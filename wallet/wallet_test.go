package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"hashbid/config"
	"hashbid/event"
	"hashbid/nicehash"
)

type mockRPC struct {
	mu        sync.Mutex
	balance   getBalanceResult
	err       error
	transfers []transferParams
}

func (m *mockRPC) Call(ctx context.Context, method string, params, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	var raw []byte
	switch method {
	case "getbalance":
		raw, _ = json.Marshal(m.balance)
	case "transfer":
		m.transfers = append(m.transfers, params.(transferParams))
		raw = []byte(`{"tx_hash":"abc"}`)
	default:
		return errors.New("unknown method")
	}
	return json.Unmarshal(raw, out)
}

type mockMarket struct {
	balance *nicehash.Balance
	err     error
}

func (m *mockMarket) GetMyBalance(ctx context.Context) (*nicehash.Balance, error) {
	return m.balance, m.err
}

type captureBroadcaster struct {
	tags []string
}

func (c *captureBroadcaster) Broadcast(tag string, payload interface{}) {
	c.tags = append(c.tags, tag)
}

type capturePublisher struct {
	events []*event.Event
}

func (c *capturePublisher) Publish(e *event.Event) {
	c.events = append(c.events, e)
}

func TestSplit(t *testing.T) {
	dests := []config.WalletDestination{{Address: "exchange", Percent: 98}, {Address: "donation", Percent: 2}}
	got := Split(10_010, 10, dests)
	if len(got) != 2 || got[0].Amount != 9800 || got[1].Amount != 200 {
		t.Errorf("分配错误: %+v", got)
	}

	// 余数归第一个地址
	got = Split(1_011, 10, dests)
	if got[0].Amount+got[1].Amount != 1001 || got[1].Amount != 20 {
		t.Errorf("余数分配错误: %+v", got)
	}

	// 比例合计不足 100 时剩余留在钱包
	got = Split(1_010, 10, []config.WalletDestination{{Address: "a", Percent: 50}})
	if len(got) != 1 || got[0].Amount != 500 {
		t.Errorf("部分归集错误: %+v", got)
	}

	if Split(10, 10, dests) != nil {
		t.Error("扣除手续费后没有余额时不应转账")
	}
}

func TestSweep(t *testing.T) {
	rpc := &mockRPC{balance: getBalanceResult{AvailableBalance: 10_010, LockedAmount: 500}}
	pub := &capturePublisher{}
	cfg := config.WalletConfig{Coin: "TRTL", MinSweep: 100, Fee: 10, Mixin: 4, Destinations: []config.WalletDestination{
		{Address: "exchange", PaymentID: "pid", Percent: 98}, {Address: "donation", Percent: 2},
	}}
	s := NewSweeper(cfg, rpc, pub)

	res, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("归集失败: %v", err)
	}
	if res.Skipped || res.TxHash != "abc" || res.ID == "" {
		t.Errorf("归集结果错误: %+v", res)
	}
	if len(rpc.transfers) != 1 {
		t.Fatalf("应发起一次转账: %d", len(rpc.transfers))
	}
	tr := rpc.transfers[0]
	if tr.PaymentID != "pid" || tr.Fee != 10 || tr.Mixin != 4 || len(tr.Destinations) != 2 {
		t.Errorf("转账参数错误: %+v", tr)
	}
	if len(pub.events) != 1 || pub.events[0].Type != event.EventTypeSweepCompleted {
		t.Errorf("应发布归集完成事件: %+v", pub.events)
	}

	rpc.balance.AvailableBalance = 100
	res, err = s.Sweep(context.Background())
	if err != nil || !res.Skipped || len(rpc.transfers) != 1 {
		t.Errorf("余额未超过阈值时不应转账: %+v %v", res, err)
	}

	rpc.err = errors.New("connection refused")
	if _, err := s.Sweep(context.Background()); err == nil {
		t.Error("期望返回错误")
	}
	if pub.events[len(pub.events)-1].Type != event.EventTypeSweepFailed {
		t.Error("失败应发布事件")
	}
	s.Run(context.Background())
}

func TestPoller(t *testing.T) {
	rpc := &mockRPC{balance: getBalanceResult{AvailableBalance: 1234, LockedAmount: 10}}
	market := &mockMarket{balance: &nicehash.Balance{Confirmed: 5000, Pending: 20}}
	b := &captureBroadcaster{}
	p := NewPoller([]Source{{Coin: "TRTL", UnitScale: 2, RPC: rpc}}, market, 0, b)

	balances := p.Poll(context.Background())
	if balances["TRTL"].Available != 1234 || balances["TRTL"].Total() != 1244 {
		t.Errorf("钱包余额错误: %+v", balances["TRTL"])
	}
	if balances[MarketplaceKey].Available != 5000 || balances[MarketplaceKey].Locked != 20 {
		t.Errorf("市场余额错误: %+v", balances[MarketplaceKey])
	}
	if len(b.tags) != 1 || b.tags[0] != "wallet-balances" {
		t.Errorf("推送错误: %v", b.tags)
	}

	rpc.err = errors.New("timeout")
	market.err = errors.New("timeout")
	balances = p.Poll(context.Background())
	if balances["TRTL"].Available != 1234 {
		t.Error("失败时应保留旧余额")
	}
}
