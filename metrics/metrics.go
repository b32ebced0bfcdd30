package metrics

import (
	"sync"
	"time"
)

// MutationSummary 进程内的修改请求统计（供状态接口使用）
type MutationSummary struct {
	mu          sync.RWMutex
	total       map[string]int // attribute -> 次数
	failed      map[string]int
	lastSuccess map[string]time.Time
	totalTime   time.Duration
	count       int
}

// SummarySnapshot 统计快照
type SummarySnapshot struct {
	Total          map[string]int       `json:"total"`
	Failed         map[string]int       `json:"failed"`
	SuccessRate    float64              `json:"success_rate"`
	AverageLatency string               `json:"average_latency"`
	LastSuccess    map[string]time.Time `json:"last_success"`
}

// NewMutationSummary 创建统计
func NewMutationSummary() *MutationSummary {
	return &MutationSummary{
		total:       make(map[string]int),
		failed:      make(map[string]int),
		lastSuccess: make(map[string]time.Time),
	}
}

// Record 记录一次修改，success 包含“已设置”的情况
func (s *MutationSummary) Record(attribute string, success bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total[attribute]++
	if success {
		s.lastSuccess[attribute] = time.Now()
	} else {
		s.failed[attribute]++
	}
	s.totalTime += d
	s.count++
}

// Snapshot 返回统计快照
func (s *MutationSummary) Snapshot() SummarySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := SummarySnapshot{
		Total:       make(map[string]int, len(s.total)),
		Failed:      make(map[string]int, len(s.failed)),
		LastSuccess: make(map[string]time.Time, len(s.lastSuccess)),
		SuccessRate: 1,
	}
	var total, failed int
	for k, v := range s.total {
		snap.Total[k] = v
		total += v
	}
	for k, v := range s.failed {
		snap.Failed[k] = v
		failed += v
	}
	for k, v := range s.lastSuccess {
		snap.LastSuccess[k] = v
	}
	if total > 0 {
		snap.SuccessRate = float64(total-failed) / float64(total)
	}
	if s.count > 0 {
		snap.AverageLatency = (s.totalTime / time.Duration(s.count)).String()
	}
	return snap
}
