package config

import (
	"fmt"
	"reflect"
)

// ChangeType 变更类型
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeModified ChangeType = "modified"
	ChangeTypeDeleted  ChangeType = "deleted"
)

// ConfigChange 配置变更
type ConfigChange struct {
	Path            string      `json:"path"` // 配置路径（如 "coins.TRTL.limit_policy"）
	Type            ChangeType  `json:"type"`
	OldValue        interface{} `json:"old_value"`
	NewValue        interface{} `json:"new_value"`
	RequiresRestart bool        `json:"requires_restart"`
}

// ConfigDiff 配置差异
type ConfigDiff struct {
	Changes         []ConfigChange `json:"changes"`
	RequiresRestart bool           `json:"requires_restart"`
}

// DiffConfig 对比两个配置，生成差异
// 币种的限额策略、定价、矿池条件、有效矿工数、日志级别和语言可以热更新，其余变更需要重启
func DiffConfig(oldConfig, newConfig *Config) *ConfigDiff {
	diff := &ConfigDiff{Changes: []ConfigChange{}}

	diff.compare("system.log_level", oldConfig.System.LogLevel, newConfig.System.LogLevel, false)
	diff.compare("system.language", oldConfig.System.Language, newConfig.System.Language, false)
	diff.compare("system.timezone", oldConfig.System.Timezone, newConfig.System.Timezone, true)
	diff.compare("marketplace", oldConfig.Marketplace, newConfig.Marketplace, true)
	diff.compare("locations", oldConfig.Locations, newConfig.Locations, true)
	diff.compare("timing", oldConfig.Timing, newConfig.Timing, true)
	diff.compare("pools", oldConfig.Pools, newConfig.Pools, true)
	diff.compare("wallets", oldConfig.Wallets, newConfig.Wallets, true)
	diff.compare("database", oldConfig.Database, newConfig.Database, true)
	diff.compare("storage", oldConfig.Storage, newConfig.Storage, true)
	diff.compare("distributed_lock", oldConfig.DistributedLock, newConfig.DistributedLock, true)
	diff.compare("web", oldConfig.Web, newConfig.Web, true)
	diff.compare("metrics", oldConfig.Metrics, newConfig.Metrics, true)
	diff.compare("notifications", oldConfig.Notifications, newConfig.Notifications, true)
	diff.compare("cron", oldConfig.Cron, newConfig.Cron, true)

	oldCoins := make(map[string]CoinConfig, len(oldConfig.Coins))
	for _, c := range oldConfig.Coins {
		oldCoins[c.Symbol] = c
	}
	newCoins := make(map[string]CoinConfig, len(newConfig.Coins))
	for _, c := range newConfig.Coins {
		newCoins[c.Symbol] = c
	}

	for symbol, oc := range oldCoins {
		nc, ok := newCoins[symbol]
		prefix := "coins." + symbol
		if !ok {
			diff.add(ConfigChange{Path: prefix, Type: ChangeTypeDeleted, OldValue: oc, RequiresRestart: true})
			continue
		}
		diff.compare(prefix+".limit_policy", oc.LimitPolicy, nc.LimitPolicy, false)
		diff.compare(prefix+".pricing", oc.Pricing, nc.Pricing, false)
		diff.compare(prefix+".pool", oc.Pool, nc.Pool, false)
		diff.compare(prefix+".min_workers", oc.MinWorkers, nc.MinWorkers, false)

		// 其余字段影响轮询器和客户端，需要重启
		oc.LimitPolicy, nc.LimitPolicy = LimitPolicyConfig{}, LimitPolicyConfig{}
		oc.Pricing, nc.Pricing = PricingConfig{}, PricingConfig{}
		oc.Pool, nc.Pool = PoolPredicateConfig{}, PoolPredicateConfig{}
		oc.MinWorkers, nc.MinWorkers = 0, 0
		diff.compare(prefix, oc, nc, true)
	}
	for symbol, nc := range newCoins {
		if _, ok := oldCoins[symbol]; !ok {
			diff.add(ConfigChange{Path: "coins." + symbol, Type: ChangeTypeAdded, NewValue: nc, RequiresRestart: true})
		}
	}

	return diff
}

func (d *ConfigDiff) compare(path string, oldValue, newValue interface{}, requiresRestart bool) {
	if reflect.DeepEqual(oldValue, newValue) {
		return
	}
	d.add(ConfigChange{
		Path:            path,
		Type:            ChangeTypeModified,
		OldValue:        oldValue,
		NewValue:        newValue,
		RequiresRestart: requiresRestart,
	})
}

func (d *ConfigDiff) add(change ConfigChange) {
	d.Changes = append(d.Changes, change)
	if change.RequiresRestart {
		d.RequiresRestart = true
	}
}

// String 返回差异摘要（用于日志）
func (d *ConfigDiff) String() string {
	if len(d.Changes) == 0 {
		return "无变更"
	}
	s := fmt.Sprintf("%d 项变更", len(d.Changes))
	for _, c := range d.Changes {
		flag := ""
		if c.RequiresRestart {
			flag = "（需重启）"
		}
		s += fmt.Sprintf("\n  - %s [%s]%s", c.Path, c.Type, flag)
	}
	return s
}
