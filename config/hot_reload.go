package config

import (
	"fmt"
	"strings"
	"sync"
)

// HotReloader 配置热更新器
type HotReloader struct {
	mu              sync.RWMutex
	currentConfig   *Config
	updateCallbacks []ConfigUpdateCallback
}

// ConfigUpdateCallback 配置更新回调函数类型
type ConfigUpdateCallback func(oldConfig, newConfig *Config, changes []ConfigChange) error

// NewHotReloader 创建热更新器
func NewHotReloader(initialConfig *Config) *HotReloader {
	return &HotReloader{
		currentConfig:   initialConfig,
		updateCallbacks: []ConfigUpdateCallback{},
	}
}

// RegisterCallback 注册配置更新回调
func (hr *HotReloader) RegisterCallback(callback ConfigUpdateCallback) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.updateCallbacks = append(hr.updateCallbacks, callback)
}

// UpdateConfig 应用新配置中可热更新的部分，需要重启的变更只在差异中报告
func (hr *HotReloader) UpdateConfig(newConfig *Config) (*ConfigDiff, error) {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	diff := DiffConfig(hr.currentConfig, newConfig)
	if len(diff.Changes) == 0 {
		return diff, nil
	}

	hotChanges := make([]ConfigChange, 0, len(diff.Changes))
	for _, change := range diff.Changes {
		if !change.RequiresRestart {
			hotChanges = append(hotChanges, change)
		}
	}
	if len(hotChanges) == 0 {
		return diff, nil
	}

	merged := cloneConfig(hr.currentConfig)
	for _, change := range hotChanges {
		copyConfigField(merged, newConfig, change.Path)
	}

	for _, callback := range hr.updateCallbacks {
		if err := callback(hr.currentConfig, merged, hotChanges); err != nil {
			return nil, fmt.Errorf("配置更新回调执行失败: %v", err)
		}
	}

	hr.currentConfig = merged
	return diff, nil
}

// GetCurrentConfig 获取当前配置
func (hr *HotReloader) GetCurrentConfig() *Config {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return hr.currentConfig
}

// copyConfigField 把可热更新路径的值从 src 复制到 dest
func copyConfigField(dest, src *Config, path string) {
	switch path {
	case "system.log_level":
		dest.System.LogLevel = src.System.LogLevel
		return
	case "system.language":
		dest.System.Language = src.System.Language
		return
	}
	if !strings.HasPrefix(path, "coins.") {
		return
	}
	parts := strings.SplitN(strings.TrimPrefix(path, "coins."), ".", 2)
	if len(parts) != 2 {
		return
	}
	symbol, field := parts[0], parts[1]

	var from *CoinConfig
	for i := range src.Coins {
		if src.Coins[i].Symbol == symbol {
			from = &src.Coins[i]
			break
		}
	}
	if from == nil {
		return
	}
	for i := range dest.Coins {
		to := &dest.Coins[i]
		if to.Symbol != symbol {
			continue
		}
		switch field {
		case "limit_policy":
			to.LimitPolicy = from.LimitPolicy
		case "pricing":
			to.Pricing = from.Pricing
		case "pool":
			to.Pool = from.Pool
		case "min_workers":
			to.MinWorkers = from.MinWorkers
		}
	}
}

// cloneConfig 复制配置，切片单独拷贝，避免回调修改旧配置
func cloneConfig(cfg *Config) *Config {
	out := *cfg
	out.Locations = append([]int(nil), cfg.Locations...)
	out.Coins = make([]CoinConfig, len(cfg.Coins))
	for i, c := range cfg.Coins {
		c.Exchanges = append([]CoinExchangeConfig(nil), c.Exchanges...)
		c.PoolHosts = append([]string(nil), c.PoolHosts...)
		out.Coins[i] = c
	}
	out.Pools = append([]PoolConfig(nil), cfg.Pools...)
	out.Wallets = append([]WalletConfig(nil), cfg.Wallets...)
	return &out
}
