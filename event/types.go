package event

import "hashbid/i18n"

// EventSeverity 事件严重程度
type EventSeverity string

const (
	SeverityCritical EventSeverity = "critical"
	SeverityWarning  EventSeverity = "warning"
	SeverityInfo     EventSeverity = "info"
)

// EventSource 事件来源
type EventSource string

const (
	SourceSystem     EventSource = "system"
	SourceFeed       EventSource = "feed"
	SourceController EventSource = "controller"
	SourceGateway    EventSource = "gateway"
	SourcePool       EventSource = "pool"
	SourceWallet     EventSource = "wallet"
)

type eventMeta struct {
	severity EventSeverity
	source   EventSource
	title    string
}

var eventMetas = map[EventType]eventMeta{
	EventTypeSystemStart:     {SeverityInfo, SourceSystem, "系统启动"},
	EventTypeSystemStop:      {SeverityInfo, SourceSystem, "系统停止"},
	EventTypeConfigReloaded:  {SeverityInfo, SourceSystem, "配置已热更新"},
	EventTypeFeedError:       {SeverityWarning, SourceFeed, "行情源请求失败"},
	EventTypeFeedDegraded:    {SeverityCritical, SourceFeed, "难度源连续失败"},
	EventTypeFeedRecovered:   {SeverityInfo, SourceFeed, "难度源已恢复"},
	EventTypeOrdersSlowed:    {SeverityCritical, SourceController, "订单已降至最低限额"},
	EventTypeMutationFailed:  {SeverityWarning, SourceGateway, "订单修改失败"},
	EventTypeRateLimited:     {SeverityWarning, SourceGateway, "触发市场限流"},
	EventTypeOrderDiscovered: {SeverityInfo, SourceController, "发现新订单"},
	EventTypeOrderRemoved:    {SeverityInfo, SourceController, "订单已移除"},
	EventTypePoolStarted:     {SeverityInfo, SourcePool, "矿池已启动"},
	EventTypePoolStopped:     {SeverityInfo, SourcePool, "矿池已停止"},
	EventTypePoolFailed:      {SeverityWarning, SourcePool, "矿池启停失败"},
	EventTypeSweepCompleted:  {SeverityInfo, SourceWallet, "钱包归集完成"},
	EventTypeSweepFailed:     {SeverityWarning, SourceWallet, "钱包归集失败"},
}

// GetEventSeverity 获取事件严重程度
func GetEventSeverity(t EventType) EventSeverity {
	if m, ok := eventMetas[t]; ok {
		return m.severity
	}
	return SeverityInfo
}

// GetEventSource 获取事件来源
func GetEventSource(t EventType) EventSource {
	if m, ok := eventMetas[t]; ok {
		return m.source
	}
	return SourceSystem
}

// GetEventTitle 获取事件标题，按系统语言翻译，语言包缺失时使用内置中文标题
func GetEventTitle(t EventType) string {
	key := "event." + string(t)
	if title := i18n.T(key); title != key {
		return title
	}
	if m, ok := eventMetas[t]; ok {
		return m.title
	}
	return string(t)
}
