package database

import (
	"context"
	"time"
)

// Database 历史数据库接口
type Database interface {
	// 修改记录（限额/价格）
	SaveMutation(ctx context.Context, m *MutationRecord) error
	GetMutations(ctx context.Context, filter *MutationFilter) ([]*MutationRecord, error)

	// 难度采样
	SaveDifficulty(ctx context.Context, d *DifficultyRecord) error
	GetDifficulties(ctx context.Context, filter *SampleFilter) ([]*DifficultyRecord, error)

	// 交易所报价
	SaveQuote(ctx context.Context, q *QuoteRecord) error
	GetQuotes(ctx context.Context, filter *SampleFilter) ([]*QuoteRecord, error)

	// 系统事件
	SaveEvent(ctx context.Context, event *EventRecord) error
	GetEvents(ctx context.Context, filter *EventFilter) ([]*EventRecord, error)
	GetEventStats(ctx context.Context) (*EventStats, error)
	CleanupOldEvents(ctx context.Context, severity string, keepCount int, keepDays int) error

	// CleanupHistory 删除 before 之前的修改记录、难度和报价，返回删除条数
	CleanupHistory(ctx context.Context, before time.Time) (int64, error)

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// MutationRecord 一次限额或价格修改的结果
type MutationRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID  string    `gorm:"uniqueIndex;size:64" json:"attempt_id"`
	OrderID    int64     `gorm:"index:idx_order_attr" json:"order_id"`
	Attribute  string    `gorm:"index:idx_order_attr;size:10" json:"attribute"` // limit, price
	Coin       string    `gorm:"index;size:20" json:"coin"`
	Location   int       `json:"location"`
	Algo       int       `json:"algo"`
	FromValue  string    `gorm:"size:32" json:"from_value"`
	ToValue    string    `gorm:"size:32" json:"to_value"`
	Outcome    string    `gorm:"index;size:20" json:"outcome"` // success, already_set, failed, busy
	Attempts   int       `json:"attempts"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// DifficultyRecord 难度采样
type DifficultyRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Coin       string    `gorm:"index:idx_coin_time;size:20" json:"coin"`
	Difficulty uint64    `json:"difficulty"`
	Height     uint64    `json:"height"`
	CreatedAt  time.Time `gorm:"index:idx_coin_time" json:"created_at"`
}

// QuoteRecord 交易所报价（聪）
type QuoteRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Coin      string    `gorm:"index:idx_quote_coin_time;size:20" json:"coin"`
	Exchange  string    `gorm:"size:50" json:"exchange"`
	Buy       int64     `json:"buy"`
	Sell      int64     `json:"sell"`
	CreatedAt time.Time `gorm:"index:idx_quote_coin_time" json:"created_at"`
}

// EventRecord 系统事件
type EventRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"index;size:50" json:"type"`
	Severity  string    `gorm:"index;size:20" json:"severity"` // critical, warning, info
	Source    string    `gorm:"index;size:20" json:"source"`
	Coin      string    `gorm:"size:20" json:"coin"`
	OrderID   int64     `json:"order_id,omitempty"`
	Title     string    `gorm:"size:200" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// EventStats 事件统计
type EventStats struct {
	TotalCount       int            `json:"total_count"`
	CriticalCount    int            `json:"critical_count"`
	WarningCount     int            `json:"warning_count"`
	InfoCount        int            `json:"info_count"`
	Last24HoursCount int            `json:"last_24h_count"`
	CountByType      map[string]int `json:"count_by_type"`
}

// 过滤器

// MutationFilter 修改记录过滤器
type MutationFilter struct {
	OrderID   int64
	Attribute string
	Coin      string
	Outcome   string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// SampleFilter 难度/报价过滤器
type SampleFilter struct {
	Coin      string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// EventFilter 事件过滤器
type EventFilter struct {
	Type      string
	Severity  string
	Source    string
	Coin      string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}
