package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
system:
  log_level: INFO
marketplace:
  api_id: "123"
  api_key: "secret"
  fee_rate: 0.03
locations: [0, 1]
coins:
  - symbol: trtl
    algo: 22
    network_reward: 29656
    unit_scale: 2
    daemon:
      url: http://127.0.0.1:11898
    exchanges:
      - name: TradeOgre
        market: BTC-TRTL
    safety_critical: true
    pool_hosts: [pool.example.com]
    limit_policy:
      floor: 0.01
      threshold: 0.2
      upper: 2.4
`

func createValidConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfigFromBytes([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("加载示例配置失败: %v", err)
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := createValidConfig(t)

	coin, ok := cfg.Coin("TRTL")
	if !ok {
		t.Fatal("币种符号应该被转换为大写")
	}
	if coin.Exchanges[0].Name != "tradeogre" {
		t.Errorf("交易所名称应该转换为小写，得到 %s", coin.Exchanges[0].Name)
	}
	if coin.HashrateUnit != 1e6 {
		t.Errorf("期望默认算力单位 1e6，得到 %v", coin.HashrateUnit)
	}
	if coin.LimitPolicy.Base != 0.5 || coin.LimitPolicy.Step != 0.1 || coin.LimitPolicy.Slope != 0.25 {
		t.Errorf("限额策略默认值错误: %+v", coin.LimitPolicy)
	}
	if coin.LimitPolicy.CeilingMode != CeilingModeZero {
		t.Errorf("期望默认 ceiling_mode=zero，得到 %s", coin.LimitPolicy.CeilingMode)
	}
	if coin.Pricing.Strategy != PricingCheapestFilled {
		t.Errorf("期望默认定价策略 cheapest_filled，得到 %s", coin.Pricing.Strategy)
	}
	if got := coin.Pricing.IncrementSats(); got != 20000 {
		t.Errorf("期望加价 20000 聪，得到 %d", got)
	}
	if cfg.Timing.DifficultyPollMs != 500 || cfg.Timing.PricePollSec != 30 {
		t.Errorf("轮询间隔默认值错误: %+v", cfg.Timing)
	}
	if cfg.Marketplace.LimitDecimals != 0 {
		t.Errorf("限额默认不截断，得到 limit_decimals=%d", cfg.Marketplace.LimitDecimals)
	}
	if cfg.System.Language != "zh-CN" {
		t.Errorf("期望默认语言 zh-CN，得到 %s", cfg.System.Language)
	}
	if cfg.Marketplace.AcceptedSpeedScale != 1000 {
		t.Errorf("期望 accepted_speed_scale=1000，得到 %v", cfg.Marketplace.AcceptedSpeedScale)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"无币种", func(c *Config) { c.Coins = nil }, "至少需要配置一个币种"},
		{"不支持的语言", func(c *Config) { c.System.Language = "fr-FR" }, "system.language"},
		{"负手续费", func(c *Config) { c.Marketplace.FeeRate = -0.1 }, "fee_rate"},
		{"上限不大于下限", func(c *Config) { c.Coins[0].LimitPolicy.Upper = 0.1 }, "ROI 上限"},
		{"固定上限过低", func(c *Config) {
			c.Coins[0].LimitPolicy.CeilingMode = CeilingModeFixed
			c.Coins[0].LimitPolicy.Ceiling = 1
		}, "固定限额"},
		{"未知定价策略", func(c *Config) { c.Coins[0].Pricing.Strategy = "magic" }, "定价策略无效"},
		{"矿池币种未配置", func(c *Config) {
			c.Pools = []PoolConfig{{Host: "p1", Coin: "XMR"}}
		}, "未配置"},
		{"归集比例超限", func(c *Config) {
			c.Wallets = []WalletConfig{{Coin: "TRTL", RPCURL: "http://w", Destinations: []WalletDestination{
				{Address: "a", Percent: 98}, {Address: "b", Percent: 5},
			}}}
		}, "超过 100"},
		{"矿池阈值反转", func(c *Config) {
			start, stop := 0.1, 0.5
			c.Coins[0].Pool = PoolPredicateConfig{StartAboveROI: &start, StopBelowROI: &stop}
		}, "停止阈值"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := createValidConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("期望验证失败")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("错误信息应包含 %q，得到 %v", tc.want, err)
			}
		})
	}
}

func TestFixedCeilingAcceptedAtRampTop(t *testing.T) {
	cfg := createValidConfig(t)
	cfg.Coins[0].LimitPolicy.CeilingMode = CeilingModeFixed
	// 0.5 + (2.4-0.2)/0.1*0.25 = 6
	cfg.Coins[0].LimitPolicy.Ceiling = 6
	if err := cfg.Validate(); err != nil {
		t.Fatalf("固定上限等于斜坡末端时应该通过验证: %v", err)
	}
}

func TestMarketPairs(t *testing.T) {
	cfg := createValidConfig(t)
	pairs := cfg.MarketPairs()
	if len(pairs) != 2 {
		t.Fatalf("期望 2 个盘口，得到 %d", len(pairs))
	}
	if pairs[0] != [2]int{0, 22} || pairs[1] != [2]int{1, 22} {
		t.Errorf("盘口组合错误: %v", pairs)
	}
}

func TestConfigDiff(t *testing.T) {
	oldCfg := createValidConfig(t)
	newCfg := createValidConfig(t)

	diff := DiffConfig(oldCfg, newCfg)
	if len(diff.Changes) != 0 {
		t.Errorf("预期无变更，得到 %d 个", len(diff.Changes))
	}

	// 限额策略可以热更新
	newCfg.Coins[0].LimitPolicy.Floor = 0.02
	diff = DiffConfig(oldCfg, newCfg)
	if len(diff.Changes) != 1 || diff.Changes[0].Path != "coins.TRTL.limit_policy" {
		t.Fatalf("预期1个限额策略变更，得到 %+v", diff.Changes)
	}
	if diff.RequiresRestart {
		t.Error("修改限额策略不应需要重启")
	}

	// 语言可以热更新
	newCfg.System.Language = "en-US"
	diff = DiffConfig(oldCfg, newCfg)
	if diff.RequiresRestart || len(diff.Changes) != 2 {
		t.Fatalf("修改语言不应需要重启: %+v", diff.Changes)
	}

	// 节点地址需要重启
	newCfg.Coins[0].Daemon.URL = "http://10.0.0.1:11898"
	newCfg.Web.Port = 9999
	diff = DiffConfig(oldCfg, newCfg)
	if !diff.RequiresRestart {
		t.Error("修改节点地址和端口应该标记为需要重启")
	}
	paths := map[string]bool{}
	for _, c := range diff.Changes {
		paths[c.Path] = c.RequiresRestart
	}
	if !paths["coins.TRTL"] || !paths["web"] {
		t.Errorf("缺少需要重启的变更: %v", paths)
	}
}

func TestHotReloader(t *testing.T) {
	initialCfg := createValidConfig(t)
	reloader := NewHotReloader(initialCfg)

	var got []ConfigChange
	reloader.RegisterCallback(func(old, new *Config, changes []ConfigChange) error {
		got = changes
		return nil
	})

	newCfg := createValidConfig(t)
	newCfg.Coins[0].LimitPolicy.Floor = 0.05
	newCfg.Web.Port = 9999

	diff, err := reloader.UpdateConfig(newCfg)
	if err != nil {
		t.Fatalf("更新配置失败: %v", err)
	}
	if !diff.RequiresRestart {
		t.Error("端口变更应提示需要重启")
	}
	if len(got) != 1 {
		t.Fatalf("回调应只收到可热更新的变更，得到 %d 个", len(got))
	}

	current := reloader.GetCurrentConfig()
	if current.Coins[0].LimitPolicy.Floor != 0.05 {
		t.Errorf("限额策略未更新: %v", current.Coins[0].LimitPolicy.Floor)
	}
	if current.Web.Port == 9999 {
		t.Error("需要重启的配置不应被热更新")
	}
	if initialCfg.Coins[0].LimitPolicy.Floor != 0.01 {
		t.Error("旧配置不应被修改")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	cfg := createValidConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("配置文件不存在: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("重新加载配置失败: %v", err)
	}
	if loaded.Marketplace.APIID != "123" || len(loaded.Coins) != 1 {
		t.Errorf("重新加载的配置不一致: %+v", loaded.Marketplace)
	}
}
