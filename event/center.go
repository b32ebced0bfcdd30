package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"hashbid/database"
	"hashbid/logger"
)

// EventStore 事件持久化接口（database.Database 的子集）
type EventStore interface {
	SaveEvent(ctx context.Context, event *database.EventRecord) error
	CleanupOldEvents(ctx context.Context, severity string, keepCount int, keepDays int) error
}

// NotificationService 通知服务接口
type NotificationService interface {
	Send(event *Event)
}

// EventCenterConfig 事件中心配置
type EventCenterConfig struct {
	CleanupInterval time.Duration
	Retention       RetentionConfig
}

// RetentionConfig 保留策略配置
type RetentionConfig struct {
	CriticalDays     int
	WarningDays      int
	InfoDays         int
	CriticalMaxCount int
	WarningMaxCount  int
	InfoMaxCount     int
}

// DefaultEventCenterConfig 默认保留策略
func DefaultEventCenterConfig() *EventCenterConfig {
	return &EventCenterConfig{
		CleanupInterval: 24 * time.Hour,
		Retention: RetentionConfig{
			CriticalDays:     90,
			WarningDays:      30,
			InfoDays:         7,
			CriticalMaxCount: 10000,
			WarningMaxCount:  20000,
			InfoMaxCount:     20000,
		},
	}
}

// EventCenter 消费事件总线：写日志、持久化、按严重程度通知
type EventCenter struct {
	store    EventStore
	eventBus *EventBus
	notifier NotificationService
	config   *EventCenterConfig
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewEventCenter 创建事件中心，store 和 notifier 可以为 nil
func NewEventCenter(store EventStore, eventBus *EventBus, notifier NotificationService, config *EventCenterConfig) *EventCenter {
	if config == nil {
		config = DefaultEventCenterConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventCenter{
		store:    store,
		eventBus: eventBus,
		notifier: notifier,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动事件中心
func (ec *EventCenter) Start() {
	logger.Info("🚀 启动事件中心...")

	ec.wg.Add(1)
	go ec.processEvents()

	if ec.store != nil && ec.config.CleanupInterval > 0 {
		ec.wg.Add(1)
		go ec.cleanupTask()
	}
}

// Stop 停止事件中心，处理完队列中剩余的事件
func (ec *EventCenter) Stop() {
	ec.cancel()
	ec.wg.Wait()
	logger.Info("✅ 事件中心已停止")
}

func (ec *EventCenter) processEvents() {
	defer ec.wg.Done()

	eventCh := ec.eventBus.Subscribe()
	for {
		select {
		case <-ec.ctx.Done():
			// 退出前清空队列
			for {
				select {
				case evt, ok := <-eventCh:
					if !ok {
						return
					}
					ec.handleEvent(evt)
				default:
					return
				}
			}
		case evt, ok := <-eventCh:
			if !ok {
				return
			}
			ec.handleEvent(evt)
		}
	}
}

func (ec *EventCenter) handleEvent(evt *Event) {
	if evt == nil {
		return
	}

	severity := GetEventSeverity(evt.Type)
	message := BuildMessage(evt)

	switch severity {
	case SeverityCritical:
		logger.Error("🚨 [%s] %s", GetEventTitle(evt.Type), message)
	case SeverityWarning:
		logger.Warn("⚠️ [%s] %s", GetEventTitle(evt.Type), message)
	default:
		logger.Debug("[事件] %s: %s", GetEventTitle(evt.Type), message)
	}

	if ec.store != nil {
		details, err := json.Marshal(evt.Data)
		if err != nil {
			logger.Warn("⚠️ 序列化事件详情失败: %v", err)
			details = []byte("{}")
		}
		record := &database.EventRecord{
			Type:      string(evt.Type),
			Severity:  string(severity),
			Source:    string(GetEventSource(evt.Type)),
			Coin:      extractString(evt.Data, "coin"),
			OrderID:   extractInt64(evt.Data, "order_id"),
			Title:     GetEventTitle(evt.Type),
			Message:   message,
			Details:   string(details),
			CreatedAt: evt.Timestamp,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = ec.store.SaveEvent(ctx, record)
		cancel()
		if err != nil {
			logger.Error("❌ 保存事件失败: %v", err)
		}
	}

	if ec.notifier != nil && shouldNotify(evt.Type, severity) {
		ec.notifier.Send(evt)
	}
}

// shouldNotify Critical 事件总是通知，部分 Warning 事件也通知
func shouldNotify(eventType EventType, severity EventSeverity) bool {
	if severity == SeverityCritical {
		return true
	}
	switch eventType {
	case EventTypeRateLimited, EventTypePoolFailed, EventTypeSweepFailed:
		return true
	}
	return false
}

// BuildMessage 构建事件消息
func BuildMessage(evt *Event) string {
	coin := extractString(evt.Data, "coin")
	if msg := extractString(evt.Data, "message"); msg != "" {
		if coin != "" {
			return fmt.Sprintf("[%s] %s", coin, msg)
		}
		return msg
	}

	switch evt.Type {
	case EventTypeMutationFailed, EventTypeRateLimited:
		return fmt.Sprintf("[%s] 订单 %d 修改 %s -> %v: %s",
			coin, extractInt64(evt.Data, "order_id"), extractString(evt.Data, "attribute"),
			evt.Data["target"], extractString(evt.Data, "error"))
	case EventTypeFeedDegraded, EventTypeOrdersSlowed:
		return fmt.Sprintf("[%s] 难度源连续失败 %v 次", coin, evt.Data["failures"])
	case EventTypePoolStarted, EventTypePoolStopped, EventTypePoolFailed:
		return fmt.Sprintf("[%s] 矿池 %s ROI=%.4v %s", coin, extractString(evt.Data, "host"),
			evt.Data["roi"], extractString(evt.Data, "error"))
	}

	if errMsg := extractString(evt.Data, "error"); errMsg != "" {
		if coin != "" {
			return fmt.Sprintf("[%s] %s", coin, errMsg)
		}
		return errMsg
	}
	return fmt.Sprintf("事件类型: %s", evt.Type)
}

func (ec *EventCenter) cleanupTask() {
	defer ec.wg.Done()

	ticker := time.NewTicker(ec.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ec.ctx.Done():
			return
		case <-ticker.C:
			ec.performCleanup()
		}
	}
}

func (ec *EventCenter) performCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	r := ec.config.Retention
	for _, p := range []struct {
		severity EventSeverity
		count    int
		days     int
	}{
		{SeverityCritical, r.CriticalMaxCount, r.CriticalDays},
		{SeverityWarning, r.WarningMaxCount, r.WarningDays},
		{SeverityInfo, r.InfoMaxCount, r.InfoDays},
	} {
		if err := ec.store.CleanupOldEvents(ctx, string(p.severity), p.count, p.days); err != nil {
			logger.Error("❌ 清理 %s 事件失败: %v", p.severity, err)
		}
	}
	logger.Info("🧹 事件清理完成")
}

// PublishEvent 发布事件（便捷方法）
func (ec *EventCenter) PublishEvent(eventType EventType, data map[string]interface{}) {
	ec.eventBus.Publish(&Event{Type: eventType, Timestamp: time.Now(), Data: data})
}

func extractString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func extractInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
