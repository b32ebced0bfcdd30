package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hashbid/daemon"
	"hashbid/database"
	"hashbid/event"
	"hashbid/exchange"
)

type mockDaemon struct {
	mu    sync.Mutex
	infos []*daemon.Info
	errs  []error
	calls int
}

func (m *mockDaemon) GetInfo(ctx context.Context) (*daemon.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.infos) {
		return m.infos[i], nil
	}
	return m.infos[len(m.infos)-1], nil
}

type mockExchange struct {
	name  string
	quote *exchange.Quote
	err   error
}

func (m *mockExchange) GetName() string { return m.name }

func (m *mockExchange) GetQuote(ctx context.Context, market string) (*exchange.Quote, error) {
	if m.err != nil {
		return nil, m.err
	}
	q := *m.quote
	q.Exchange = m.name
	q.Market = market
	return &q, nil
}

type mockRecorder struct {
	mu           sync.Mutex
	difficulties []*database.DifficultyRecord
	quotes       []*database.QuoteRecord
}

func (m *mockRecorder) SaveDifficulty(ctx context.Context, d *database.DifficultyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.difficulties = append(m.difficulties, d)
	return nil
}

func (m *mockRecorder) SaveQuote(ctx context.Context, q *database.QuoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = append(m.quotes, q)
	return nil
}

func TestPollDifficultyEmitsOncePerChange(t *testing.T) {
	d := &mockDaemon{infos: []*daemon.Info{
		{Difficulty: 100, Height: 1},
		{Difficulty: 100, Height: 1},
		{Difficulty: 100, Height: 2},
		{Difficulty: 90, Height: 3},
	}}
	topics := event.NewTopics()
	rec := &mockRecorder{}
	f := NewFeed(Options{Coin: "TRTL", Daemon: d, Topics: topics, Recorder: rec})

	var got []uint64
	topics.DifficultyChanged.Subscribe(func(e event.DifficultyChanged) { got = append(got, e.Difficulty) })

	for i := 0; i < 4; i++ {
		if err := f.PollDifficulty(context.Background()); err != nil {
			t.Fatalf("轮询失败: %v", err)
		}
	}

	if len(got) != 2 || got[0] != 100 || got[1] != 90 {
		t.Errorf("难度变化事件错误: %v", got)
	}
	if len(rec.difficulties) != 2 {
		t.Errorf("应只持久化变化的采样，得到 %d", len(rec.difficulties))
	}
	s, ok := f.Difficulty()
	if !ok || s.Difficulty != 90 || s.Height != 3 {
		t.Errorf("采样错误: %+v", s)
	}
}

func TestPollDifficultyResetsBlockBaseline(t *testing.T) {
	d := &mockDaemon{infos: []*daemon.Info{
		{Difficulty: 100, Height: 1},
		{Difficulty: 101, Height: 1},
		{Difficulty: 102, Height: 2},
	}}
	f := NewFeed(Options{Coin: "TRTL", Daemon: d})
	now := time.Unix(1000, 0)
	f.now = func() time.Time { return now }

	f.PollDifficulty(context.Background())
	now = now.Add(10 * time.Second)
	f.PollDifficulty(context.Background())
	if got := f.TimeSinceBlock(); got != 10*time.Second {
		t.Errorf("高度未变时基线不应重置: %v", got)
	}
	now = now.Add(5 * time.Second)
	f.PollDifficulty(context.Background())
	if got := f.TimeSinceBlock(); got != 0 {
		t.Errorf("高度变化后应重置基线: %v", got)
	}
}

func TestPollDifficultyDegrades(t *testing.T) {
	boom := errors.New("connection refused")
	d := &mockDaemon{
		infos: []*daemon.Info{{Difficulty: 100, Height: 1}},
		errs:  []error{nil, boom, boom, boom, nil},
	}
	topics := event.NewTopics()
	f := NewFeed(Options{Coin: "TRTL", SafetyCritical: true, SlowAfterFailures: 1, Daemon: d, Topics: topics})

	var degraded []int
	topics.FeedDegraded.Subscribe(func(e event.FeedDegraded) { degraded = append(degraded, e.Failures) })

	f.PollDifficulty(context.Background())
	if err := f.PollDifficulty(context.Background()); err == nil {
		t.Fatal("期望返回错误")
	}
	if f.Degraded() || len(degraded) != 0 {
		t.Fatal("第一次失败不应降级")
	}
	f.PollDifficulty(context.Background())
	f.PollDifficulty(context.Background())
	if !f.Degraded() {
		t.Fatal("连续失败超过阈值应降级")
	}
	if len(degraded) != 2 || degraded[0] != 2 {
		t.Errorf("降级事件错误: %v", degraded)
	}
	if s, _ := f.Difficulty(); s.Difficulty != 100 {
		t.Errorf("失败时应保留旧采样: %+v", s)
	}

	f.PollDifficulty(context.Background())
	if f.Degraded() || f.DifficultyErrors() != 0 {
		t.Error("成功后应恢复")
	}
}

func TestPollDifficultyNotSafetyCritical(t *testing.T) {
	d := &mockDaemon{infos: []*daemon.Info{{Difficulty: 1}}, errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
	topics := event.NewTopics()
	f := NewFeed(Options{Coin: "XAO", Daemon: d, Topics: topics})
	n := 0
	topics.FeedDegraded.Subscribe(func(event.FeedDegraded) { n++ })
	for i := 0; i < 3; i++ {
		f.PollDifficulty(context.Background())
	}
	if n != 0 || f.Degraded() {
		t.Error("非安全关键币种不应降级")
	}
}

func TestPollExchangePriceBestIsMaxBuy(t *testing.T) {
	topics := event.NewTopics()
	ogre := &mockExchange{name: "tradeogre", quote: &exchange.Quote{Buy: 3, Sell: 4}}
	south := &mockExchange{name: "southxchange", quote: &exchange.Quote{Buy: 5, Sell: 6}}
	f := NewFeed(Options{Coin: "TRTL", Topics: topics, Sources: []Source{{ogre, "BTC-TRTL"}, {south, "TRTL/BTC"}}})

	if _, err := f.BestQuote(); !errors.Is(err, ErrNoQuote) {
		t.Errorf("没有报价时应返回 ErrNoQuote: %v", err)
	}

	var best []int64
	topics.PriceChanged.Subscribe(func(e event.PriceChanged) { best = append(best, e.BestPrice) })

	for _, src := range f.Sources() {
		if err := f.PollExchangePrice(context.Background(), src); err != nil {
			t.Fatalf("获取报价失败: %v", err)
		}
	}
	if f.BestPrice() != 5 {
		t.Errorf("最优买价应为最高买价: %d", f.BestPrice())
	}
	if len(best) != 2 || best[0] != 3 || best[1] != 5 {
		t.Errorf("价格事件错误: %v", best)
	}

	south.err = errors.New("parse error")
	if err := f.PollExchangePrice(context.Background(), f.Sources()[1]); err == nil {
		t.Fatal("期望返回错误")
	}
	if f.BestPrice() != 5 {
		t.Errorf("失败时应保留旧报价: %d", f.BestPrice())
	}
	if len(f.Quotes()) != 2 || f.Quotes()[0].Exchange != "southxchange" {
		t.Errorf("报价列表错误: %+v", f.Quotes())
	}
}

func TestPollExchangePriceRejectsZeroBuy(t *testing.T) {
	topics := event.NewTopics()
	ogre := &mockExchange{name: "tradeogre", quote: &exchange.Quote{Buy: 7, Sell: 8}}
	f := NewFeed(Options{Coin: "TRTL", Topics: topics, Sources: []Source{{ogre, "BTC-TRTL"}}})
	src := f.Sources()[0]

	if err := f.PollExchangePrice(context.Background(), src); err != nil {
		t.Fatalf("获取报价失败: %v", err)
	}

	var events int
	topics.PriceChanged.Subscribe(func(e event.PriceChanged) { events++ })

	errCount := func() int {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.quoteErrors["tradeogre"]
	}
	ogre.quote = &exchange.Quote{Buy: 0, Sell: 8}
	for i := 1; i <= 2; i++ {
		if err := f.PollExchangePrice(context.Background(), src); err == nil {
			t.Fatal("买价为 0 应返回错误")
		}
		if errCount() != i {
			t.Errorf("买价无效应计入连续失败次数: %d, 期望 %d", errCount(), i)
		}
	}
	if f.BestPrice() != 7 || events != 0 {
		t.Errorf("无效报价不应覆盖旧报价: best=%d events=%d", f.BestPrice(), events)
	}

	ogre.quote = &exchange.Quote{Buy: 9, Sell: 10}
	if err := f.PollExchangePrice(context.Background(), src); err != nil {
		t.Fatalf("恢复后获取报价失败: %v", err)
	}
	if errCount() != 0 {
		t.Errorf("成功后失败计数应清零: %d", errCount())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Millisecond, time.Millisecond)
	ogre := &mockExchange{name: "tradeogre", quote: &exchange.Quote{Buy: 3}}
	f := NewFeed(Options{Coin: "TRTL", Daemon: &mockDaemon{infos: []*daemon.Info{{Difficulty: 10}}}, Sources: []Source{{ogre, "BTC-TRTL"}}})
	if err := r.Add(f); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if err := r.Add(f); err == nil {
		t.Error("重复注册应返回错误")
	}
	if _, ok := r.Get("TRTL"); !ok {
		t.Error("找不到已注册币种")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for r.BestPrice("TRTL") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	r.Wait()

	if r.BestPrice("TRTL") != 3 {
		t.Errorf("轮询后应有报价: %d", r.BestPrice("TRTL"))
	}
	quotes := r.AllQuotes()
	if quotes["tradeogre"]["TRTL"].Buy != 3 {
		t.Errorf("按交易所分组错误: %+v", quotes)
	}
	if r.BestPrice("DOGE") != 0 {
		t.Error("未知币种最优价应为 0")
	}
}
