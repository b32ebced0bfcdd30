package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hashbid/database"
	"hashbid/event"
	"hashbid/nicehash"
)

type mockMarket struct {
	mu         sync.Mutex
	limitErr   []error
	priceErr   error
	limits     []nicehash.LimitRequest
	prices     []nicehash.PriceRequest
	block      chan struct{}
	priceBlock chan struct{}
}

func (m *mockMarket) SetOrderLimit(ctx context.Context, req nicehash.LimitRequest) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, req)
	i := len(m.limits) - 1
	if i < len(m.limitErr) {
		return m.limitErr[i]
	}
	return nil
}

func (m *mockMarket) SetOrderPrice(ctx context.Context, req nicehash.PriceRequest) error {
	if m.priceBlock != nil {
		<-m.priceBlock
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, req)
	return m.priceErr
}

type mockRecorder struct {
	mu   sync.Mutex
	recs []*database.MutationRecord
}

func (m *mockRecorder) SaveMutation(ctx context.Context, r *database.MutationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (c *capturePublisher) Publish(e *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturePublisher) count(t event.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestGateway(m Marketplace, rec Recorder, pub event.Publisher, attempts int) *Gateway {
	return NewGateway(m, GatewayConfig{
		RateLimit: 1000,
		RateBurst: 100,
		Retry:     RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Factor: 1, Sleep: noSleep},
	}, GatewayOptions{Recorder: rec, Events: pub})
}

var rateLimited = &nicehash.APIError{Method: "orders.set.limit", Status: 429, Message: "Too Many Requests"}

func TestGatewayRetriesRateLimit(t *testing.T) {
	m := &mockMarket{limitErr: []error{rateLimited, rateLimited, nil}}
	rec := &mockRecorder{}
	pub := &capturePublisher{}
	g := newTestGateway(m, rec, pub, 5)

	err := g.SetLimit(context.Background(), LimitMutation{OrderID: 7, Coin: "TRTL", Algo: 22, From: 0.5, To: 1.25})
	if err != nil {
		t.Fatalf("限流后应重试成功: %v", err)
	}
	if len(m.limits) != 3 || m.limits[2].Limit != 1.25 {
		t.Errorf("请求次数错误: %+v", m.limits)
	}
	if pub.count(event.EventTypeRateLimited) != 1 {
		t.Error("每次修改只发布一次限流事件")
	}
	if len(rec.recs) != 1 || rec.recs[0].Outcome != OutcomeSuccess || rec.recs[0].Attempts != 3 {
		t.Errorf("修改记录错误: %+v", rec.recs)
	}
	if rec.recs[0].FromValue != "0.5" || rec.recs[0].ToValue != "1.25" {
		t.Errorf("记录值错误: %+v", rec.recs[0])
	}
	if g.InFlight(7, AttrLimit) {
		t.Error("完成后不应仍在途")
	}
}

func TestGatewayRetriesExhausted(t *testing.T) {
	m := &mockMarket{limitErr: []error{rateLimited, rateLimited, rateLimited}}
	rec := &mockRecorder{}
	pub := &capturePublisher{}
	g := newTestGateway(m, rec, pub, 3)

	err := g.SetLimit(context.Background(), LimitMutation{OrderID: 1, To: 2})
	if !errors.Is(err, ErrRetriesExhausted) || !nicehash.IsRateLimited(err) {
		t.Fatalf("期望重试耗尽错误: %v", err)
	}
	if len(m.limits) != 3 {
		t.Errorf("应尝试 3 次: %d", len(m.limits))
	}
	if rec.recs[0].Outcome != OutcomeRateLimited {
		t.Errorf("结果应为 rate_limited: %s", rec.recs[0].Outcome)
	}
	if pub.count(event.EventTypeMutationFailed) != 1 {
		t.Error("失败应发布事件")
	}
}

func TestGatewayAlreadySetIsSuccess(t *testing.T) {
	m := &mockMarket{limitErr: []error{&nicehash.APIError{Method: "orders.set.limit", Message: "This limit already set."}}}
	rec := &mockRecorder{}
	g := newTestGateway(m, rec, nil, 3)

	if err := g.SetLimit(context.Background(), LimitMutation{OrderID: 1, To: 0.01}); err != nil {
		t.Fatalf("已设置应视为成功: %v", err)
	}
	if len(m.limits) != 1 {
		t.Error("已设置不应重试")
	}
	if rec.recs[0].Outcome != OutcomeAlreadySet {
		t.Errorf("结果应为 already_set: %s", rec.recs[0].Outcome)
	}
}

func TestGatewayNonRetryable(t *testing.T) {
	m := &mockMarket{priceErr: &nicehash.APIError{Method: "orders.set.price", Message: "Invalid price"}}
	rec := &mockRecorder{}
	g := newTestGateway(m, rec, nil, 5)

	err := g.SetPrice(context.Background(), PriceMutation{OrderID: 3, From: 100_000, To: 120_000})
	if err == nil || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("期望直接返回业务错误: %v", err)
	}
	if len(m.prices) != 1 || m.prices[0].Price != 120_000 {
		t.Errorf("不可重试错误不应重试: %+v", m.prices)
	}
	if rec.recs[0].Outcome != OutcomeFailed || rec.recs[0].ToValue != "0.00120000" {
		t.Errorf("修改记录错误: %+v", rec.recs[0])
	}
}

func TestGatewayBusyPerAttribute(t *testing.T) {
	m := &mockMarket{block: make(chan struct{})}
	g := newTestGateway(m, nil, nil, 1)

	done := make(chan error, 1)
	go func() {
		done <- g.SetLimit(context.Background(), LimitMutation{OrderID: 9, To: 1})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !g.InFlight(9, AttrLimit) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !g.InFlight(9, AttrLimit) {
		t.Fatal("限额修改应在途")
	}

	var busy int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(g.SetLimit(context.Background(), LimitMutation{OrderID: 9, To: 2}), ErrMutationBusy) {
				atomic.AddInt32(&busy, 1)
			}
		}()
	}
	wg.Wait()
	if busy != 8 {
		t.Errorf("在途期间的请求都应返回 busy: %d", busy)
	}

	// 不同属性互不影响
	if err := g.SetPrice(context.Background(), PriceMutation{OrderID: 9, To: 1}); err != nil {
		t.Errorf("价格修改不应被限额修改阻塞: %v", err)
	}

	close(m.block)
	if err := <-done; err != nil {
		t.Fatalf("修改失败: %v", err)
	}
	if len(m.limits) != 1 {
		t.Errorf("同一时间只应有一个请求: %d", len(m.limits))
	}
}

func TestGatewayBusyPrice(t *testing.T) {
	m := &mockMarket{priceBlock: make(chan struct{})}
	rec := &mockRecorder{}
	g := newTestGateway(m, rec, nil, 1)

	done := make(chan error, 1)
	go func() {
		done <- g.SetPrice(context.Background(), PriceMutation{OrderID: 7, From: 100_000, To: 120_000})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !g.InFlight(7, AttrPrice) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !g.InFlight(7, AttrPrice) {
		t.Fatal("价格修改应在途")
	}

	var busy int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(g.SetPrice(context.Background(), PriceMutation{OrderID: 7, From: 100_000, To: 130_000}), ErrMutationBusy) {
				atomic.AddInt32(&busy, 1)
			}
		}()
	}
	wg.Wait()
	if busy != 8 {
		t.Errorf("改价在途期间的请求都应返回 busy: %d", busy)
	}

	// 其他订单的改价不受影响
	other := make(chan error, 1)
	go func() {
		other <- g.SetPrice(context.Background(), PriceMutation{OrderID: 8, To: 1})
	}()
	// 限额修改不受改价影响
	if err := g.SetLimit(context.Background(), LimitMutation{OrderID: 7, To: 1}); err != nil {
		t.Errorf("限额修改不应被改价阻塞: %v", err)
	}

	close(m.priceBlock)
	if err := <-done; err != nil {
		t.Fatalf("改价失败: %v", err)
	}
	if err := <-other; err != nil {
		t.Fatalf("其他订单改价失败: %v", err)
	}
	if g.InFlight(7, AttrPrice) {
		t.Error("完成后不应仍在途")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prices) != 2 {
		t.Errorf("只有两个订单各自的第一个改价请求到达市场: %+v", m.prices)
	}
	for _, p := range m.prices {
		if p.Order == 7 && p.Price != 120_000 {
			t.Errorf("订单 7 的改价应为第一个请求: %+v", p)
		}
	}
}

func TestRetryPolicy(t *testing.T) {
	var slept []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, Factor: 2,
		Sleep: func(ctx context.Context, d time.Duration) error { slept = append(slept, d); return nil },
	}
	boom := errors.New("boom")
	n, err := Retry(context.Background(), policy, func(error) bool { return true }, func(int) error { return boom })
	if n != 4 || !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, boom) {
		t.Fatalf("重试结果错误: %d %v", n, err)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("等待次数错误: %v", slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("第 %d 次等待 %v, 期望 %v", i+1, slept[i], want[i])
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Retry(ctx, RetryPolicy{MaxAttempts: 3}, func(error) bool { return true }, func(int) error { return boom })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ctx 取消后应退出: %v", err)
	}
}

func TestJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := RandomJitter(10*time.Millisecond, 20*time.Millisecond)
		if d < 10*time.Millisecond || d >= 20*time.Millisecond {
			t.Fatalf("延迟越界: %v", d)
		}
	}
	if RandomJitter(5, 5) != 5 || FixedJitter(time.Second)(0, 10) != time.Second {
		t.Error("边界延迟错误")
	}
}
