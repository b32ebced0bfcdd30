package event

import (
	"time"

	"hashbid/logger"
)

// EventType 系统事件类型
type EventType string

const (
	EventTypeSystemStart     EventType = "system_start"
	EventTypeSystemStop      EventType = "system_stop"
	EventTypeConfigReloaded  EventType = "config_reloaded"
	EventTypeFeedError       EventType = "feed_error"
	EventTypeFeedDegraded    EventType = "feed_degraded"
	EventTypeFeedRecovered   EventType = "feed_recovered"
	EventTypeOrdersSlowed    EventType = "orders_slowed"
	EventTypeMutationFailed  EventType = "mutation_failed"
	EventTypeRateLimited     EventType = "rate_limited"
	EventTypeOrderDiscovered EventType = "order_discovered"
	EventTypeOrderRemoved    EventType = "order_removed"
	EventTypePoolStarted     EventType = "pool_started"
	EventTypePoolStopped     EventType = "pool_stopped"
	EventTypePoolFailed      EventType = "pool_control_failed"
	EventTypeSweepCompleted  EventType = "sweep_completed"
	EventTypeSweepFailed     EventType = "sweep_failed"
)

// Event 事件结构
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Publisher 系统事件发布接口，业务模块只依赖它
type Publisher interface {
	Publish(event *Event)
}

// EventBus 事件总线
type EventBus struct {
	eventCh    chan *Event
	bufferSize int
}

// NewEventBus 创建事件总线
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &EventBus{
		eventCh:    make(chan *Event, bufferSize),
		bufferSize: bufferSize,
	}
}

// Publish 发布事件（非阻塞）
func (eb *EventBus) Publish(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case eb.eventCh <- event:
	default:
		// 队列满时丢弃，不能阻塞交易路径
		logger.Warn("⚠️ 事件队列已满，丢弃事件: %s", event.Type)
	}
}

// Subscribe 订阅事件（返回 channel）
func (eb *EventBus) Subscribe() <-chan *Event {
	return eb.eventCh
}

// Close 关闭事件总线
func (eb *EventBus) Close() {
	close(eb.eventCh)
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(*Event) {}
