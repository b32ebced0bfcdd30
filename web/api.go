package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hashbid/controller"
	"hashbid/database"
	"hashbid/feed"
	"hashbid/metrics"
	"hashbid/pool"
	"hashbid/storage"
	"hashbid/wallet"
)

// SystemStatus 系统状态
type SystemStatus struct {
	Running    bool                      `json:"running"`
	InstanceID string                    `json:"instance_id"`
	StartedAt  time.Time                 `json:"started_at"`
	Uptime     int64                     `json:"uptime"` // 运行时间（秒）
	Coins      []CoinStatus              `json:"coins"`
	Pools      map[string]pool.Status    `json:"pools"`
	Balances   map[string]wallet.Balance `json:"balances"`
	Mutations  metrics.SummarySnapshot   `json:"mutations"`
}

// CoinStatus 单个币种状态
type CoinStatus struct {
	feed.Status
	ManagedOrders   int `json:"managed_orders"`
	EffectiveOrders int `json:"effective_orders"`
}

// StatusFunc 生成当前状态
type StatusFunc func() *SystemStatus

// OrderProvider 受管订单
type OrderProvider interface {
	Snapshots() []controller.Snapshot
}

// MutationProvider 修改记录（database.Database 实现了它）
type MutationProvider interface {
	GetMutations(ctx context.Context, filter *database.MutationFilter) ([]*database.MutationRecord, error)
}

// EventProvider 事件数据（database.Database 实现了它）
type EventProvider interface {
	GetEvents(ctx context.Context, filter *database.EventFilter) ([]*database.EventRecord, error)
	GetEventStats(ctx context.Context) (*database.EventStats, error)
}

// LogProvider 日志存储（storage.LogStorage 实现了它）
type LogProvider interface {
	GetLogs(params storage.LogQueryParams) ([]*storage.LogRecord, int, error)
	GetLogStats() (map[string]interface{}, error)
	Subscribe() <-chan *storage.LogRecord
	Unsubscribe(ch <-chan *storage.LogRecord)
}

// Providers 看板的数据来源，未设置的接口返回空结果
type Providers struct {
	Status    StatusFunc
	Orders    OrderProvider
	Mutations MutationProvider
	Events    EventProvider
	Logs      LogProvider
}

type api struct {
	Providers
}

// getStatus GET /api/status
func (a *api) getStatus(c *gin.Context) {
	if a.Status == nil {
		c.JSON(http.StatusOK, &SystemStatus{Running: false})
		return
	}
	c.JSON(http.StatusOK, a.Status())
}

// getOrders GET /api/orders
// 参数：
//   - coin: 币种（可选）
func (a *api) getOrders(c *gin.Context) {
	if a.Orders == nil {
		c.JSON(http.StatusOK, gin.H{"orders": []interface{}{}, "total": 0})
		return
	}
	coin := c.Query("coin")
	orders := make([]controller.Snapshot, 0)
	for _, s := range a.Orders.Snapshots() {
		if coin != "" && s.Order.Coin != coin {
			continue
		}
		orders = append(orders, s)
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

// getMutations GET /api/mutations
// 参数：
//   - order_id, attribute, coin, outcome: 过滤条件（可选）
//   - start_time, end_time: RFC3339（可选）
//   - limit: 默认100，最大1000
//   - offset: 默认0
func (a *api) getMutations(c *gin.Context) {
	if a.Mutations == nil {
		c.JSON(http.StatusOK, gin.H{"mutations": []interface{}{}, "total": 0})
		return
	}

	filter := &database.MutationFilter{
		Attribute: c.Query("attribute"),
		Coin:      c.Query("coin"),
		Outcome:   c.Query("outcome"),
	}
	if s := c.Query("order_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的订单 ID"})
			return
		}
		filter.OrderID = id
	}
	var ok bool
	if filter.StartTime, filter.EndTime, ok = parseTimeRange(c); !ok {
		return
	}
	filter.Limit, filter.Offset = parsePage(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	records, err := a.Mutations.GetMutations(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mutations": records,
		"total":     len(records),
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// getEvents GET /api/events
func (a *api) getEvents(c *gin.Context) {
	if a.Events == nil {
		c.JSON(http.StatusOK, gin.H{"events": []interface{}{}, "total": 0})
		return
	}

	filter := &database.EventFilter{
		Type:     c.Query("type"),
		Severity: c.Query("severity"),
		Source:   c.Query("source"),
		Coin:     c.Query("coin"),
	}
	var ok bool
	if filter.StartTime, filter.EndTime, ok = parseTimeRange(c); !ok {
		return
	}
	filter.Limit, filter.Offset = parsePage(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	events, err := a.Events.GetEvents(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// getEventStats GET /api/events/stats
func (a *api) getEventStats(c *gin.Context) {
	if a.Events == nil {
		c.JSON(http.StatusOK, &database.EventStats{CountByType: map[string]int{}})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	stats, err := a.Events.GetEventStats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getLogs GET /api/logs
// 参数：
//   - start_time: 开始时间（可选，RFC3339，默认最近7天）
//   - end_time: 结束时间（可选，默认当前时间）
//   - level: 日志级别（可选）
//   - keyword: 关键词搜索（可选）
//   - limit: 默认100，最大1000
//   - offset: 默认0
func (a *api) getLogs(c *gin.Context) {
	if a.Logs == nil {
		c.JSON(http.StatusOK, gin.H{"logs": []interface{}{}, "total": 0})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}
	params := storage.LogQueryParams{
		Level:   c.Query("level"),
		Keyword: c.Query("keyword"),
		EndTime: time.Now(),
	}
	if end != nil {
		params.EndTime = *end
	}
	if start != nil {
		params.StartTime = *start
	} else {
		params.StartTime = params.EndTime.AddDate(0, 0, -7)
	}
	params.Limit, params.Offset = parsePage(c)

	logs, total, err := a.Logs.GetLogs(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

// getLogStats GET /api/logs/stats
func (a *api) getLogStats(c *gin.Context) {
	if a.Logs == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	stats, err := a.Logs.GetLogStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// parseTimeRange 解析 start_time/end_time，格式错误时已写入 400
func parseTimeRange(c *gin.Context) (start, end *time.Time, ok bool) {
	if s := c.Query("start_time"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的开始时间格式"})
			return nil, nil, false
		}
		start = &t
	}
	if s := c.Query("end_time"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的结束时间格式"})
			return nil, nil, false
		}
		end = &t
	}
	return start, end, true
}

func parsePage(c *gin.Context) (limit, offset int) {
	limit = 100
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil && l > 0 {
		limit = l
		if limit > 1000 {
			limit = 1000
		}
	}
	if o, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}
