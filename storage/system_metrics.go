package storage

import (
	"fmt"
	"time"
)

// SystemMetrics 进程资源采样
type SystemMetrics struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	Goroutines int       `json:"goroutines"`
	ProcessID  int       `json:"process_id"`
}

// SaveSystemMetrics 保存一次采样
func (ls *LogStorage) SaveSystemMetrics(m *SystemMetrics) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	result, err := ls.db.Exec(`
		INSERT INTO system_metrics (timestamp, cpu_percent, memory_mb, goroutines, process_id)
		VALUES (?, ?, ?, ?, ?)
	`, m.Timestamp, m.CPUPercent, m.MemoryMB, m.Goroutines, m.ProcessID)
	if err != nil {
		return fmt.Errorf("保存系统监控数据失败: %w", err)
	}
	m.ID, _ = result.LastInsertId()
	return nil
}

// QuerySystemMetrics 查询时间范围内的采样（按时间升序）
func (ls *LogStorage) QuerySystemMetrics(startTime, endTime time.Time) ([]*SystemMetrics, error) {
	rows, err := ls.db.Query(`
		SELECT id, timestamp, cpu_percent, memory_mb, goroutines, process_id
		FROM system_metrics
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("查询系统监控数据失败: %w", err)
	}
	defer rows.Close()

	var out []*SystemMetrics
	for rows.Next() {
		m := &SystemMetrics{}
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.MemoryMB, &m.Goroutines, &m.ProcessID); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CleanupSystemMetrics 删除指定时间之前的采样
func (ls *LogStorage) CleanupSystemMetrics(before time.Time) (int64, error) {
	result, err := ls.db.Exec("DELETE FROM system_metrics WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("清理系统监控数据失败: %w", err)
	}
	return result.RowsAffected()
}
