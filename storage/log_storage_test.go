package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *LogStorage {
	t.Helper()
	ls, err := NewLogStorage(filepath.Join(t.TempDir(), "logs.db"), Options{
		BatchSize:     2,
		FlushInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("创建日志存储失败: %v", err)
	}
	return ls
}

func waitForLogs(t *testing.T, ls *LogStorage, params LogQueryParams, want int) []*LogRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		logs, total, err := ls.GetLogs(params)
		if err != nil {
			t.Fatalf("查询日志失败: %v", err)
		}
		if total >= want || time.Now().After(deadline) {
			return logs
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLogStorageWriteAndQuery(t *testing.T) {
	ls := newTestStorage(t)
	defer ls.Close()

	ls.WriteLog("INFO", "✅ 订单 1 限额已更新")
	ls.WriteLog("WARN", "⚠️ 触发限流")
	ls.WriteLog("INFO", "✅ 订单 2 价格已更新")

	logs := waitForLogs(t, ls, LogQueryParams{}, 3)
	if len(logs) != 3 {
		t.Fatalf("期望3条日志，得到 %d", len(logs))
	}
	if logs[0].Message != "✅ 订单 2 价格已更新" {
		t.Errorf("应按写入倒序返回，第一条为 %q", logs[0].Message)
	}

	warn, total, _ := ls.GetLogs(LogQueryParams{Level: "warn"})
	if total != 1 || len(warn) != 1 {
		t.Errorf("按级别过滤失败: total=%d", total)
	}

	byKeyword, _, _ := ls.GetLogs(LogQueryParams{Keyword: "价格"})
	if len(byKeyword) != 1 {
		t.Errorf("按关键字过滤失败: %d", len(byKeyword))
	}

	stats, err := ls.GetLogStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats["total"].(int64) != 3 {
		t.Errorf("统计总数错误: %v", stats["total"])
	}
}

func TestLogStorageSubscribe(t *testing.T) {
	ls := newTestStorage(t)
	defer ls.Close()

	ch := ls.Subscribe()
	ls.WriteLog("ERROR", "❌ 失败")

	select {
	case rec := <-ch:
		if rec.Level != "ERROR" || rec.ID == 0 {
			t.Errorf("订阅收到的日志错误: %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("订阅者未收到日志")
	}

	ls.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("取消订阅后 channel 应被关闭")
	}
}

func TestLogStorageCleanAndClose(t *testing.T) {
	ls := newTestStorage(t)

	ls.WriteLog("DEBUG", "debug")
	ls.WriteLog("INFO", "info")
	waitForLogs(t, ls, LogQueryParams{}, 2)

	// days=-1 表示截止时间在未来，全部视为过期
	n, err := ls.CleanOldLogsByLevel(-1, []string{"debug"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("期望清理1条 DEBUG 日志，得到 %d", n)
	}
	if err := ls.Vacuum(); err != nil {
		t.Errorf("VACUUM 失败: %v", err)
	}

	if err := ls.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	ls.WriteLog("INFO", "关闭后写入应被忽略")
	if err := ls.Close(); err != nil {
		t.Errorf("重复关闭不应报错: %v", err)
	}
}

func TestSystemMetrics(t *testing.T) {
	ls := newTestStorage(t)
	defer ls.Close()

	now := time.Now().UTC()
	_ = ls.SaveSystemMetrics(&SystemMetrics{Timestamp: now.Add(-2 * time.Hour), CPUPercent: 1, MemoryMB: 10, Goroutines: 5, ProcessID: 1})
	_ = ls.SaveSystemMetrics(&SystemMetrics{Timestamp: now, CPUPercent: 2, MemoryMB: 20, Goroutines: 6, ProcessID: 1})

	got, err := ls.QuerySystemMetrics(now.Add(-3*time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].CPUPercent != 1 {
		t.Fatalf("查询结果错误: %+v", got)
	}

	n, err := ls.CleanupSystemMetrics(now.Add(-time.Hour))
	if err != nil || n != 1 {
		t.Errorf("清理结果错误: n=%d err=%v", n, err)
	}
}
