package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDatabase GORM 数据库实现
type GormDatabase struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	logLevel := logger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&MutationRecord{},
		&DifficultyRecord{},
		&QuoteRecord{},
		&EventRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

// SaveMutation 保存修改记录
func (g *GormDatabase) SaveMutation(ctx context.Context, m *MutationRecord) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return g.db.WithContext(ctx).Create(m).Error
}

// GetMutations 获取修改记录（按时间倒序）
func (g *GormDatabase) GetMutations(ctx context.Context, filter *MutationFilter) ([]*MutationRecord, error) {
	query := g.db.WithContext(ctx).Model(&MutationRecord{})

	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Attribute != "" {
		query = query.Where("attribute = ?", filter.Attribute)
	}
	if filter.Coin != "" {
		query = query.Where("coin = ?", filter.Coin)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []*MutationRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SaveDifficulty 保存难度采样
func (g *GormDatabase) SaveDifficulty(ctx context.Context, d *DifficultyRecord) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	return g.db.WithContext(ctx).Create(d).Error
}

// GetDifficulties 获取难度采样
func (g *GormDatabase) GetDifficulties(ctx context.Context, filter *SampleFilter) ([]*DifficultyRecord, error) {
	var records []*DifficultyRecord
	if err := g.sampleQuery(ctx, &DifficultyRecord{}, filter).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SaveQuote 保存报价
func (g *GormDatabase) SaveQuote(ctx context.Context, q *QuoteRecord) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	return g.db.WithContext(ctx).Create(q).Error
}

// GetQuotes 获取报价
func (g *GormDatabase) GetQuotes(ctx context.Context, filter *SampleFilter) ([]*QuoteRecord, error) {
	var records []*QuoteRecord
	if err := g.sampleQuery(ctx, &QuoteRecord{}, filter).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (g *GormDatabase) sampleQuery(ctx context.Context, model interface{}, filter *SampleFilter) *gorm.DB {
	query := g.db.WithContext(ctx).Model(model)
	if filter.Coin != "" {
		query = query.Where("coin = ?", filter.Coin)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query
}

// SaveEvent 保存事件
func (g *GormDatabase) SaveEvent(ctx context.Context, event *EventRecord) error {
	return g.db.WithContext(ctx).Create(event).Error
}

// GetEvents 获取事件记录
func (g *GormDatabase) GetEvents(ctx context.Context, filter *EventFilter) ([]*EventRecord, error) {
	query := g.db.WithContext(ctx).Model(&EventRecord{})

	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	if filter.Coin != "" {
		query = query.Where("coin = ?", filter.Coin)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var events []*EventRecord
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// GetEventStats 获取事件统计
func (g *GormDatabase) GetEventStats(ctx context.Context) (*EventStats, error) {
	stats := &EventStats{CountByType: make(map[string]int)}
	db := g.db.WithContext(ctx)

	var total, critical, warning, info, last24h int64
	if err := db.Model(&EventRecord{}).Count(&total).Error; err != nil {
		return nil, err
	}
	db.Model(&EventRecord{}).Where("severity = ?", "critical").Count(&critical)
	db.Model(&EventRecord{}).Where("severity = ?", "warning").Count(&warning)
	db.Model(&EventRecord{}).Where("severity = ?", "info").Count(&info)
	db.Model(&EventRecord{}).Where("created_at >= ?", time.Now().Add(-24*time.Hour)).Count(&last24h)

	stats.TotalCount = int(total)
	stats.CriticalCount = int(critical)
	stats.WarningCount = int(warning)
	stats.InfoCount = int(info)
	stats.Last24HoursCount = int(last24h)

	var typeStats []struct {
		Type  string
		Count int
	}
	db.Model(&EventRecord{}).
		Select("type, COUNT(*) as count").
		Group("type").
		Order("count DESC").
		Limit(20).
		Scan(&typeStats)
	for _, ts := range typeStats {
		stats.CountByType[ts.Type] = ts.Count
	}

	return stats, nil
}

// CleanupOldEvents 清理旧事件：先按天数删除，再只保留最近 keepCount 条
func (g *GormDatabase) CleanupOldEvents(ctx context.Context, severity string, keepCount int, keepDays int) error {
	db := g.db.WithContext(ctx)

	if keepDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -keepDays)
		if err := db.Where("severity = ? AND created_at < ?", severity, cutoff).
			Delete(&EventRecord{}).Error; err != nil {
			return fmt.Errorf("按时间清理事件失败: %w", err)
		}
	}

	if keepCount <= 0 {
		return nil
	}
	var count int64
	db.Model(&EventRecord{}).Where("severity = ?", severity).Count(&count)
	if count <= int64(keepCount) {
		return nil
	}

	var boundary EventRecord
	if err := db.Where("severity = ?", severity).
		Order("id DESC").Offset(keepCount - 1).Limit(1).
		Find(&boundary).Error; err != nil {
		return fmt.Errorf("查询清理边界失败: %w", err)
	}
	if boundary.ID == 0 {
		return nil
	}
	if err := db.Where("severity = ? AND id < ?", severity, boundary.ID).
		Delete(&EventRecord{}).Error; err != nil {
		return fmt.Errorf("按数量清理事件失败: %w", err)
	}
	return nil
}

// CleanupHistory 删除 before 之前的历史数据
func (g *GormDatabase) CleanupHistory(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, model := range []interface{}{&MutationRecord{}, &DifficultyRecord{}, &QuoteRecord{}} {
		res := g.db.WithContext(ctx).Where("created_at < ?", before).Delete(model)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// Ping 健康检查
func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
