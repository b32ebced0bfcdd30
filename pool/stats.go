package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"hashbid/config"
	"hashbid/logger"
)

// Broadcaster 把最新状态推送给看板
type Broadcaster interface {
	Broadcast(tag string, payload interface{})
}

// StatsMessage 推送给看板的代理统计
type StatsMessage struct {
	Proxy string                 `json:"proxy"`
	Coin  string                 `json:"coin"`
	Stats map[string]interface{} `json:"stats"`
}

// BroadcastKey 看板按代理保留最新消息
func (m StatsMessage) BroadcastKey() string {
	return m.Proxy
}

// StatsPoller 轮询各矿池代理的统计接口
type StatsPoller struct {
	pools       []config.PoolConfig
	interval    time.Duration
	httpClient  *http.Client
	broadcaster Broadcaster

	mu     sync.RWMutex
	latest map[string]StatsMessage

	wg sync.WaitGroup
}

// NewStatsPoller 只轮询配置了 stats_url 的矿池
func NewStatsPoller(pools []config.PoolConfig, interval, timeout time.Duration, b Broadcaster) *StatsPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var withStats []config.PoolConfig
	for _, p := range pools {
		if p.StatsURL != "" {
			withStats = append(withStats, p)
		}
	}
	return &StatsPoller{
		pools:       withStats,
		interval:    interval,
		httpClient:  &http.Client{Timeout: timeout},
		broadcaster: b,
		latest:      make(map[string]StatsMessage),
	}
}

// Poll 拉取一个代理的统计并推送
func (s *StatsPoller) Poll(ctx context.Context, p config.PoolConfig) error {
	stats, err := s.fetch(ctx, p.StatsURL)
	if err != nil {
		logger.Warn("⚠️ [矿池 %s] 获取统计失败: %v", p.Host, err)
		return err
	}
	msg := StatsMessage{Proxy: p.Host, Coin: p.Coin, Stats: stats}

	s.mu.Lock()
	s.latest[p.Host] = msg
	s.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("proxy-stats", msg)
	}
	return nil
}

// Latest 最近一次成功获取的统计
func (s *StatsPoller) Latest() map[string]StatsMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StatsMessage, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

func (s *StatsPoller) fetch(ctx context.Context, url string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("parse response error: %w", err)
	}
	return stats, nil
}

// Start 每个代理一个轮询
func (s *StatsPoller) Start(ctx context.Context) {
	for _, p := range s.pools {
		p := p
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()

			s.safePoll(ctx, p)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.safePoll(ctx, p)
				}
			}
		}()
	}
	if len(s.pools) > 0 {
		logger.Info("✅ 矿池统计轮询已启动: %d 个代理", len(s.pools))
	}
}

// Wait 等待轮询退出
func (s *StatsPoller) Wait() {
	s.wg.Wait()
}

func (s *StatsPoller) safePoll(ctx context.Context, p config.PoolConfig) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ [矿池 %s] 统计轮询 panic: %v", p.Host, r)
		}
	}()
	_ = s.Poll(ctx, p)
}
