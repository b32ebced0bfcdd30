package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hashbid/utils"
)

// LogStorage 日志存储（独立的 SQLite 文件，与历史数据库分开）
type LogStorage struct {
	db     *sql.DB
	cfg    Options
	mu     sync.RWMutex
	logCh  chan *logEntry
	done   chan struct{}
	closed bool

	subMu       sync.RWMutex
	subscribers []chan *LogRecord // 实时推送
}

// Options 日志存储参数
type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type logEntry struct {
	level     string
	message   string
	timestamp time.Time
}

// LogQueryParams 日志查询参数
type LogQueryParams struct {
	StartTime time.Time
	EndTime   time.Time
	Level     string
	Keyword   string
	Limit     int
	Offset    int
}

// LogRecord 日志记录
type LogRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

const maxSubscribers = 100

// NewLogStorage 创建日志存储
func NewLogStorage(path string, opts Options) (*LogStorage, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建日志数据库目录失败: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开日志数据库失败: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ls := &LogStorage{
		db:    db,
		cfg:   opts,
		logCh: make(chan *logEntry, opts.BufferSize),
		done:  make(chan struct{}),
	}

	if err := ls.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建日志表失败: %w", err)
	}

	go ls.processLogs()
	return ls, nil
}

func (ls *LogStorage) createTables() error {
	_, err := ls.db.Exec(`
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);

	CREATE TABLE IF NOT EXISTS system_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		cpu_percent REAL NOT NULL,
		memory_mb REAL NOT NULL,
		goroutines INTEGER NOT NULL,
		process_id INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_system_metrics_timestamp ON system_metrics(timestamp);
	`)
	return err
}

// WriteLog 写入日志（异步，队列满时丢弃）
func (ls *LogStorage) WriteLog(level, message string) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if ls.closed {
		return
	}

	select {
	case ls.logCh <- &logEntry{level: level, message: message, timestamp: utils.NowUTC()}:
	default:
	}
}

func (ls *LogStorage) processLogs() {
	defer close(ls.done)

	buffer := make([]*logEntry, 0, ls.cfg.BatchSize)
	ticker := time.NewTicker(ls.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		// 写入失败静默丢弃，不能再写日志（会递归）
		if inserted, err := ls.batchInsert(buffer); err == nil {
			ls.notifySubscribers(inserted)
		}
		buffer = buffer[:0]
	}

	for {
		select {
		case entry, ok := <-ls.logCh:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, entry)
			if len(buffer) >= ls.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (ls *LogStorage) batchInsert(entries []*logEntry) ([]*LogRecord, error) {
	tx, err := ls.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO logs (timestamp, level, message) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	inserted := make([]*LogRecord, 0, len(entries))
	for _, e := range entries {
		result, err := stmt.Exec(e.timestamp, e.level, e.message)
		if err != nil {
			return nil, err
		}
		id, _ := result.LastInsertId()
		inserted = append(inserted, &LogRecord{ID: id, Timestamp: e.timestamp, Level: e.level, Message: e.message})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

// Subscribe 订阅新写入的日志
func (ls *LogStorage) Subscribe() <-chan *LogRecord {
	ls.subMu.Lock()
	defer ls.subMu.Unlock()

	ch := make(chan *LogRecord, 100)
	ls.subscribers = append(ls.subscribers, ch)
	if len(ls.subscribers) > maxSubscribers {
		// 移除最旧的订阅者
		close(ls.subscribers[0])
		ls.subscribers = ls.subscribers[1:]
	}
	return ch
}

// Unsubscribe 取消订阅
func (ls *LogStorage) Unsubscribe(ch <-chan *LogRecord) {
	ls.subMu.Lock()
	defer ls.subMu.Unlock()

	for i, sub := range ls.subscribers {
		if sub == ch {
			ls.subscribers = append(ls.subscribers[:i], ls.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (ls *LogStorage) notifySubscribers(logs []*LogRecord) {
	ls.subMu.RLock()
	defer ls.subMu.RUnlock()

	for _, log := range logs {
		for _, sub := range ls.subscribers {
			select {
			case sub <- log:
			default:
			}
		}
	}
}

// GetLogs 查询日志，返回结果和总数
func (ls *LogStorage) GetLogs(params LogQueryParams) ([]*LogRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if !params.StartTime.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, params.StartTime)
	}
	if !params.EndTime.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, params.EndTime)
	}
	if params.Level != "" {
		where = append(where, "level = ?")
		args = append(args, strings.ToUpper(params.Level))
	}
	if params.Keyword != "" {
		where = append(where, "message LIKE ?")
		args = append(args, "%"+params.Keyword+"%")
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := ls.db.QueryRow("SELECT COUNT(*) FROM logs WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("查询日志总数失败: %w", err)
	}

	if params.Limit <= 0 {
		params.Limit = 100
	}
	if params.Limit > 1000 {
		params.Limit = 1000
	}
	args = append(args, params.Limit, params.Offset)

	rows, err := ls.db.Query(`SELECT id, timestamp, level, message FROM logs WHERE `+whereClause+
		` ORDER BY id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询日志失败: %w", err)
	}
	defer rows.Close()

	var logs []*LogRecord
	for rows.Next() {
		var r LogRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Level, &r.Message); err != nil {
			continue
		}
		logs = append(logs, &r)
	}
	return logs, total, rows.Err()
}

// CleanOldLogsByLevel 清理超过指定天数的指定级别日志，levels 为空时清理全部级别
func (ls *LogStorage) CleanOldLogsByLevel(days int, levels []string) (int64, error) {
	cutoff := utils.NowUTC().AddDate(0, 0, -days)
	query := "DELETE FROM logs WHERE timestamp < ?"
	args := []interface{}{cutoff}

	if len(levels) > 0 {
		placeholders := make([]string, len(levels))
		for i, level := range levels {
			placeholders[i] = "?"
			args = append(args, strings.ToUpper(level))
		}
		query += fmt.Sprintf(" AND level IN (%s)", strings.Join(placeholders, ","))
	}

	result, err := ls.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Vacuum 回收空间
func (ls *LogStorage) Vacuum() error {
	_, err := ls.db.Exec("VACUUM")
	return err
}

// GetLogStats 获取日志统计信息
func (ls *LogStorage) GetLogStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	if err := ls.db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&total); err != nil {
		return nil, err
	}
	stats["total"] = total

	rows, err := ls.db.Query("SELECT level, COUNT(*) FROM logs GROUP BY level")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byLevel := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			continue
		}
		byLevel[level] = count
	}
	stats["by_level"] = byLevel
	return stats, nil
}

// Close 刷新队列并关闭存储
func (ls *LogStorage) Close() error {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil
	}
	ls.closed = true
	close(ls.logCh)
	ls.mu.Unlock()

	<-ls.done

	ls.subMu.Lock()
	for _, sub := range ls.subscribers {
		close(sub)
	}
	ls.subscribers = nil
	ls.subMu.Unlock()

	return ls.db.Close()
}
