package database

import (
	"context"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *GormDatabase {
	t.Helper()
	db, err := NewGormDatabase(&DBConfig{
		Type:         "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1, // 内存库每个连接独立
	})
	if err != nil {
		t.Fatalf("创建数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMutationRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	records := []*MutationRecord{
		{AttemptID: "a1", OrderID: 1, Attribute: "limit", Coin: "TRTL", ToValue: "0.5", Outcome: "success"},
		{AttemptID: "a2", OrderID: 1, Attribute: "price", Coin: "TRTL", ToValue: "0.00200000", Outcome: "failed", Error: "boom"},
		{AttemptID: "a3", OrderID: 2, Attribute: "limit", Coin: "XMR", ToValue: "0.01", Outcome: "already_set"},
	}
	for _, r := range records {
		if err := db.SaveMutation(ctx, r); err != nil {
			t.Fatalf("保存修改记录失败: %v", err)
		}
	}

	got, err := db.GetMutations(ctx, &MutationFilter{OrderID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("期望订单1有2条记录，得到 %d", len(got))
	}
	if got[0].AttemptID != "a2" {
		t.Errorf("应按时间倒序返回，第一条为 %s", got[0].AttemptID)
	}

	got, _ = db.GetMutations(ctx, &MutationFilter{Attribute: "limit", Coin: "XMR"})
	if len(got) != 1 || got[0].Outcome != "already_set" {
		t.Errorf("按属性和币种过滤失败: %+v", got)
	}

	got, _ = db.GetMutations(ctx, &MutationFilter{Limit: 1})
	if len(got) != 1 {
		t.Errorf("Limit 未生效，得到 %d", len(got))
	}
}

func TestSamplesAndCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	_ = db.SaveDifficulty(ctx, &DifficultyRecord{Coin: "TRTL", Difficulty: 100, Height: 1, CreatedAt: old})
	_ = db.SaveDifficulty(ctx, &DifficultyRecord{Coin: "TRTL", Difficulty: 200, Height: 2})
	_ = db.SaveQuote(ctx, &QuoteRecord{Coin: "TRTL", Exchange: "tradeogre", Buy: 2, Sell: 3, CreatedAt: old})
	_ = db.SaveQuote(ctx, &QuoteRecord{Coin: "TRTL", Exchange: "tradeogre", Buy: 4, Sell: 5})

	diffs, err := db.GetDifficulties(ctx, &SampleFilter{Coin: "TRTL"})
	if err != nil {
		t.Fatal(err)
	}
	if len(diffs) != 2 || diffs[0].Difficulty != 200 {
		t.Fatalf("难度采样查询错误: %+v", diffs)
	}

	n, err := db.CleanupHistory(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("期望删除2条历史数据，得到 %d", n)
	}
	quotes, _ := db.GetQuotes(ctx, &SampleFilter{Coin: "TRTL"})
	if len(quotes) != 1 || quotes[0].Buy != 4 {
		t.Errorf("清理后报价不正确: %+v", quotes)
	}
}

func TestEventsAndCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = db.SaveEvent(ctx, &EventRecord{Type: "mutation_failed", Severity: "warning", CreatedAt: time.Now()})
	}
	_ = db.SaveEvent(ctx, &EventRecord{Type: "orders_slowed", Severity: "critical", Coin: "TRTL", CreatedAt: time.Now()})

	stats, err := db.GetEventStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCount != 6 || stats.WarningCount != 5 || stats.CriticalCount != 1 {
		t.Errorf("事件统计错误: %+v", stats)
	}
	if stats.CountByType["mutation_failed"] != 5 {
		t.Errorf("按类型统计错误: %v", stats.CountByType)
	}

	if err := db.CleanupOldEvents(ctx, "warning", 2, 30); err != nil {
		t.Fatal(err)
	}
	events, _ := db.GetEvents(ctx, &EventFilter{Severity: "warning"})
	if len(events) != 2 {
		t.Errorf("期望保留2条 warning 事件，得到 %d", len(events))
	}
	events, _ = db.GetEvents(ctx, &EventFilter{Coin: "TRTL"})
	if len(events) != 1 {
		t.Errorf("critical 事件不应被清理，得到 %d", len(events))
	}
}

func TestNewDatabaseUnsupported(t *testing.T) {
	if _, err := NewDatabase(&Config{Type: "oracle"}); err == nil {
		t.Error("不支持的数据库类型应该报错")
	}
}
