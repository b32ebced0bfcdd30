package event

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"hashbid/database"
	"hashbid/i18n"
)

// mockStore 模拟事件存储
type mockStore struct {
	mu      sync.Mutex
	records []*database.EventRecord
	cleaned []string
}

func (m *mockStore) SaveEvent(ctx context.Context, r *database.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *mockStore) CleanupOldEvents(ctx context.Context, severity string, keepCount int, keepDays int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = append(m.cleaned, severity)
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockNotifier 模拟通知服务
type mockNotifier struct {
	mu   sync.Mutex
	sent []*Event
}

func (m *mockNotifier) Send(evt *Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, evt)
}

func TestEventCenterPersistAndNotify(t *testing.T) {
	bus := NewEventBus(100)
	store := &mockStore{}
	notifier := &mockNotifier{}
	ec := NewEventCenter(store, bus, notifier, &EventCenterConfig{})
	ec.Start()

	bus.Publish(&Event{Type: EventTypeOrdersSlowed, Data: map[string]interface{}{"coin": "TRTL", "failures": 3}})
	bus.Publish(&Event{Type: EventTypeOrderDiscovered, Data: map[string]interface{}{"coin": "TRTL", "order_id": int64(42)}})
	bus.Publish(&Event{Type: EventTypeRateLimited, Data: map[string]interface{}{"coin": "TRTL", "order_id": int64(42), "attribute": "limit"}})

	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	ec.Stop()

	if store.count() != 3 {
		t.Fatalf("期望保存3个事件，得到 %d", store.count())
	}
	if store.records[0].Severity != "critical" || store.records[0].Coin != "TRTL" {
		t.Errorf("事件记录字段错误: %+v", store.records[0])
	}
	if store.records[1].OrderID != 42 {
		t.Errorf("order_id 未提取: %+v", store.records[1])
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.sent) != 2 {
		t.Fatalf("期望通知 critical 和限流事件共2个，得到 %d", len(notifier.sent))
	}
}

func TestEventCenterWithoutStore(t *testing.T) {
	bus := NewEventBus(10)
	ec := NewEventCenter(nil, bus, nil, nil)
	ec.Start()
	bus.Publish(&Event{Type: EventTypeSystemStart})
	ec.Stop()
}

func TestEventCenterCleanup(t *testing.T) {
	store := &mockStore{}
	ec := NewEventCenter(store, NewEventBus(1), nil, nil)
	ec.performCleanup()
	if len(store.cleaned) != 3 {
		t.Fatalf("期望清理3个严重级别，得到 %v", store.cleaned)
	}
}

func TestEventBusDropWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	bus.Publish(&Event{Type: EventTypeSystemStart})
	bus.Publish(&Event{Type: EventTypeSystemStop}) // 丢弃，不阻塞

	evt := <-bus.Subscribe()
	if evt.Type != EventTypeSystemStart {
		t.Errorf("期望保留第一个事件，得到 %s", evt.Type)
	}
	if evt.Timestamp.IsZero() {
		t.Error("发布时应自动设置时间戳")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage(&Event{Type: EventTypeMutationFailed, Data: map[string]interface{}{
		"coin": "TRTL", "order_id": int64(7), "attribute": "price", "target": "0.001", "error": "boom",
	}})
	for _, want := range []string{"TRTL", "7", "price", "boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("消息 %q 缺少 %q", msg, want)
		}
	}

	if got := BuildMessage(&Event{Type: EventTypeConfigReloaded, Data: map[string]interface{}{"message": "ok"}}); got != "ok" {
		t.Errorf("应直接使用 message 字段，得到 %q", got)
	}
}

func TestGetEventTitleFollowsLanguage(t *testing.T) {
	// 语言包未初始化时使用内置标题
	if got := GetEventTitle(EventTypeSweepFailed); got != "钱包归集失败" {
		t.Fatalf("builtin title = %q", got)
	}

	if err := i18n.Init("en-US"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	defer i18n.SetSystemLanguage("zh-CN")

	if got := GetEventTitle(EventTypeSweepFailed); got != "Wallet sweep failed" {
		t.Fatalf("en-US title = %q", got)
	}
	if got := GetEventTitle(EventTypePoolFailed); got != "Pool start/stop failed" {
		t.Fatalf("pool title = %q", got)
	}
	if got := GetEventTitle(EventType("custom_thing")); got != "custom_thing" {
		t.Fatalf("unknown type should echo itself, got %q", got)
	}
}
