package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// 限额策略在 ROI 超过上限后的处理方式
const (
	CeilingModeZero  = "zero"  // 超过上限后限额为 0（不限速）
	CeilingModeFixed = "fixed" // 超过上限后使用固定限额
)

// 定价策略
const (
	PricingPassthrough    = "passthrough"
	PricingTargetHashrate = "target_hashrate"
	PricingCheapestFilled = "cheapest_filled"
)

// Config 竞价机器人配置
type Config struct {
	// 系统配置
	System struct {
		LogLevel   string `yaml:"log_level" json:"log_level"`     // DEBUG/INFO/WARN/ERROR
		LogDir     string `yaml:"log_dir" json:"log_dir"`         // 调试日志目录
		Timezone   string `yaml:"timezone" json:"timezone"`       // 日志与定时任务时区
		InstanceID string `yaml:"instance_id" json:"instance_id"` // 多实例部署时的实例标识
		Language   string `yaml:"language" json:"language"`       // 日志与通知语言：zh-CN/en-US
	} `yaml:"system" json:"system"`

	// 算力市场 API
	Marketplace MarketplaceConfig `yaml:"marketplace" json:"marketplace"`

	// 需要关注的市场区域（location），与币种算法组合成盘口
	Locations []int `yaml:"locations" json:"locations"`

	Timing TimingConfig `yaml:"timing" json:"timing"`

	Coins   []CoinConfig   `yaml:"coins" json:"coins"`
	Pools   []PoolConfig   `yaml:"pools" json:"pools"`
	Wallets []WalletConfig `yaml:"wallets" json:"wallets"`

	Database        DatabaseConfig        `yaml:"database" json:"database"`
	Storage         StorageConfig         `yaml:"storage" json:"storage"`
	DistributedLock DistributedLockConfig `yaml:"distributed_lock" json:"distributed_lock"`
	Web             WebConfig             `yaml:"web" json:"web"`
	Metrics         MetricsConfig         `yaml:"metrics" json:"metrics"`
	Notifications   NotificationsConfig   `yaml:"notifications" json:"notifications"`
	Cron            CronConfig            `yaml:"cron" json:"cron"`
}

// MarketplaceConfig 算力市场配置
type MarketplaceConfig struct {
	BaseURL            string  `yaml:"base_url" json:"base_url"`
	APIID              string  `yaml:"api_id" json:"api_id"`
	APIKey             string  `yaml:"api_key" json:"-"`
	FeeRate            float64 `yaml:"fee_rate" json:"fee_rate"`                         // 市场手续费率（例如 0.03 表示 3%）
	RateLimit          float64 `yaml:"rate_limit" json:"rate_limit"`                     // 修改类请求每秒上限
	RateBurst          int     `yaml:"rate_burst" json:"rate_burst"`                     // 突发请求数
	RetryDelayMs       int     `yaml:"retry_delay_ms" json:"retry_delay_ms"`             // 限流后的重试间隔（毫秒）
	MaxRetryDelayMs    int     `yaml:"max_retry_delay_ms" json:"max_retry_delay_ms"`     // 重试间隔上限（毫秒）
	RetryFactor        float64 `yaml:"retry_factor" json:"retry_factor"`                 // 重试间隔倍数，1 表示固定间隔
	MaxRetries         int     `yaml:"max_retries" json:"max_retries"`                   // 最大尝试次数
	TimeoutSec         int     `yaml:"timeout_sec" json:"timeout_sec"`                   // HTTP 超时（秒）
	AcceptedSpeedScale float64 `yaml:"accepted_speed_scale" json:"accepted_speed_scale"` // 已接受算力换算系数
	LimitDecimals      int     `yaml:"limit_decimals" json:"limit_decimals"`             // 限额截断小数位，0 表示不截断
}

// TimingConfig 轮询与调度间隔
type TimingConfig struct {
	DifficultyPollMs   int `yaml:"difficulty_poll_ms" json:"difficulty_poll_ms"`
	PricePollSec       int `yaml:"price_poll_sec" json:"price_poll_sec"`
	OrderBookPollSec   int `yaml:"order_book_poll_sec" json:"order_book_poll_sec"`
	MyOrdersPollSec    int `yaml:"my_orders_poll_sec" json:"my_orders_poll_sec"`
	WalletPollSec      int `yaml:"wallet_poll_sec" json:"wallet_poll_sec"`
	ProxyStatsPollSec  int `yaml:"proxy_stats_poll_sec" json:"proxy_stats_poll_sec"`
	PriceJitterMinMs   int `yaml:"price_jitter_min_ms" json:"price_jitter_min_ms"`     // 价格评估延迟下限
	PriceJitterMaxMs   int `yaml:"price_jitter_max_ms" json:"price_jitter_max_ms"`     // 价格评估延迟上限
	PriceRetryDelayMs  int `yaml:"price_retry_delay_ms" json:"price_retry_delay_ms"`   // 改价失败后重新评估的延迟
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`   // 优雅退出等待时间
}

// CoinConfig 单个币种配置
type CoinConfig struct {
	Symbol            string                 `yaml:"symbol" json:"symbol"`
	Algo              int                    `yaml:"algo" json:"algo"`                                 // 市场算法编号
	NetworkReward     float64                `yaml:"network_reward" json:"network_reward"`             // 区块奖励（最小单位）
	UnitScale         int                    `yaml:"unit_scale" json:"unit_scale"`                     // 最小单位小数位
	HashrateUnit      float64                `yaml:"hashrate_unit" json:"hashrate_unit"`               // 市场价格对应的算力单位（H/s）
	Daemon            DaemonConfig           `yaml:"daemon" json:"daemon"`                             // 节点 RPC
	Exchanges         []CoinExchangeConfig   `yaml:"exchanges" json:"exchanges"`                       // 报价来源
	SafetyCritical    bool                   `yaml:"safety_critical" json:"safety_critical"`           // 难度源失败时是否降速
	SlowAfterFailures int                    `yaml:"slow_after_failures" json:"slow_after_failures"`   // 连续失败多少次后降速
	MinWorkers        int                    `yaml:"min_workers" json:"min_workers"`                   // 矿工数严格大于该值的订单才计入有效订单
	PoolHosts         []string               `yaml:"pool_hosts" json:"pool_hosts"`                     // 指向该币种的矿池地址
	LimitPolicy       LimitPolicyConfig      `yaml:"limit_policy" json:"limit_policy"`
	Pricing           PricingConfig          `yaml:"pricing" json:"pricing"`
	Pool              PoolPredicateConfig    `yaml:"pool" json:"pool"`
}

// DaemonConfig 币种节点配置
type DaemonConfig struct {
	URL        string `yaml:"url" json:"url"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
}

// CoinExchangeConfig 币种在某交易所的报价配置
type CoinExchangeConfig struct {
	Name    string `yaml:"name" json:"name"`         // tradeogre / southxchange
	Market  string `yaml:"market" json:"market"`     // 交易对，例如 BTC-TRTL
	BaseURL string `yaml:"base_url" json:"base_url"` // 可选，覆盖默认地址
}

// LimitPolicyConfig ROI 到限额的映射参数
type LimitPolicyConfig struct {
	Floor       float64 `yaml:"floor" json:"floor"`               // 最低限额
	Threshold   float64 `yaml:"threshold" json:"threshold"`       // ROI 下限
	Upper       float64 `yaml:"upper" json:"upper"`               // ROI 上限
	Base        float64 `yaml:"base" json:"base"`                 // 起始限额
	Step        float64 `yaml:"step" json:"step"`                 // ROI 步长
	Slope       float64 `yaml:"slope" json:"slope"`               // 每步增加的限额
	CeilingMode string  `yaml:"ceiling_mode" json:"ceiling_mode"` // zero / fixed
	Ceiling     float64 `yaml:"ceiling" json:"ceiling"`           // fixed 模式下的限额
}

// PricingConfig 订单定价参数
type PricingConfig struct {
	Strategy       string  `yaml:"strategy" json:"strategy"`
	TargetHashrate float64 `yaml:"target_hashrate" json:"target_hashrate"` // target_hashrate 策略保留的算力
	Increment      string  `yaml:"increment" json:"increment"`             // 加价幅度（BTC，十进制字符串）
	MinAccepted    float64 `yaml:"min_accepted" json:"min_accepted"`       // cheapest_filled 策略的最小已接受算力
}

// PoolPredicateConfig 矿池启停条件，未配置表示不控制
type PoolPredicateConfig struct {
	StartAboveROI *float64 `yaml:"start_above_roi" json:"start_above_roi"`
	StopBelowROI  *float64 `yaml:"stop_below_roi" json:"stop_below_roi"`
}

// PoolConfig 矿池（代理）配置
type PoolConfig struct {
	Host       string `yaml:"host" json:"host"`
	Coin       string `yaml:"coin" json:"coin"`
	Region     string `yaml:"region" json:"region"`
	ControlURL string `yaml:"control_url" json:"control_url"` // 启停接口
	StatsURL   string `yaml:"stats_url" json:"stats_url"`     // 统计接口
}

// WalletConfig 钱包余额与归集配置
type WalletConfig struct {
	Coin         string              `yaml:"coin" json:"coin"`
	RPCURL       string              `yaml:"rpc_url" json:"rpc_url"`
	RPCPassword  string              `yaml:"rpc_password" json:"-"`
	Address      string              `yaml:"address" json:"address"` // 查询余额的钱包地址，可选
	SweepEnabled bool                `yaml:"sweep_enabled" json:"sweep_enabled"`
	MinSweep     int64               `yaml:"min_sweep" json:"min_sweep"` // 可用余额超过此值才归集（最小单位）
	Fee          int64               `yaml:"fee" json:"fee"`
	Mixin        int                 `yaml:"mixin" json:"mixin"`
	Destinations []WalletDestination `yaml:"destinations" json:"destinations"`
}

// WalletDestination 归集目标，Percent 合计不超过 100
type WalletDestination struct {
	Address   string  `yaml:"address" json:"address"`
	PaymentID string  `yaml:"payment_id" json:"payment_id"`
	Percent   float64 `yaml:"percent" json:"percent"`
}

// DatabaseConfig 历史数据库配置
type DatabaseConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Type            string `yaml:"type" json:"type"` // sqlite / postgres / mysql
	DSN             string `yaml:"dsn" json:"-"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"` // 秒
	LogLevel        string `yaml:"log_level" json:"log_level"`
	RetentionDays   int    `yaml:"retention_days" json:"retention_days"`
}

// StorageConfig 日志存储配置
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Path          string `yaml:"path" json:"path"`
	BufferSize    int    `yaml:"buffer_size" json:"buffer_size"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" json:"flush_interval"` // 秒
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

// DistributedLockConfig 分布式锁配置
type DistributedLockConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Type       string `yaml:"type" json:"type"`
	Prefix     string `yaml:"prefix" json:"prefix"`
	DefaultTTL int    `yaml:"default_ttl" json:"default_ttl"` // 秒
	Redis      struct {
		Addr     string `yaml:"addr" json:"addr"`
		Password string `yaml:"password" json:"-"`
		DB       int    `yaml:"db" json:"db"`
		PoolSize int    `yaml:"pool_size" json:"pool_size"`
	} `yaml:"redis" json:"redis"`
}

// WebConfig 监控面板配置
type WebConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
}

// MetricsConfig 指标采集配置
type MetricsConfig struct {
	Enabled         bool `yaml:"enabled" json:"enabled"`
	CollectInterval int  `yaml:"collect_interval" json:"collect_interval"` // 秒
}

// NotificationsConfig 通知配置
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Webhook struct {
		Enabled bool              `yaml:"enabled" json:"enabled"`
		URL     string            `yaml:"url" json:"url"`
		Headers map[string]string `yaml:"headers" json:"-"`
		Timeout int               `yaml:"timeout" json:"timeout"` // 秒
	} `yaml:"webhook" json:"webhook"`
	Slack struct {
		Enabled bool   `yaml:"enabled" json:"enabled"`
		Webhook string `yaml:"webhook" json:"-"`
	} `yaml:"slack" json:"slack"`
}

// CronConfig 定时任务（带秒的 cron 表达式）
type CronConfig struct {
	WalletSweep  string `yaml:"wallet_sweep" json:"wallet_sweep"`
	LogCleanup   string `yaml:"log_cleanup" json:"log_cleanup"`
	StatusReport string `yaml:"status_report" json:"status_report"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置（用于测试）
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return &cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %v", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %v", err)
	}

	return nil
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.LogDir == "" {
		c.System.LogDir = "logs"
	}
	switch c.System.Language {
	case "":
		c.System.Language = "zh-CN"
	case "zh-CN", "en-US":
	default:
		return fmt.Errorf("system.language 仅支持 zh-CN 或 en-US，当前为 %s", c.System.Language)
	}

	if err := c.validateMarketplace(); err != nil {
		return err
	}
	c.fillTimingDefaults()

	if len(c.Locations) == 0 {
		c.Locations = []int{0}
	}

	if len(c.Coins) == 0 {
		return fmt.Errorf("至少需要配置一个币种 (coins)")
	}
	seen := make(map[string]bool)
	for i := range c.Coins {
		coin := &c.Coins[i]
		if err := coin.normalize(); err != nil {
			return err
		}
		if seen[coin.Symbol] {
			return fmt.Errorf("币种 %s 重复配置", coin.Symbol)
		}
		seen[coin.Symbol] = true
	}

	for i := range c.Pools {
		p := &c.Pools[i]
		if p.Host == "" {
			return fmt.Errorf("矿池 #%d 缺少 host", i)
		}
		p.Coin = strings.ToUpper(p.Coin)
		if !seen[p.Coin] {
			return fmt.Errorf("矿池 %s 对应的币种 %s 未配置", p.Host, p.Coin)
		}
	}

	for i := range c.Wallets {
		w := &c.Wallets[i]
		w.Coin = strings.ToUpper(w.Coin)
		if w.RPCURL == "" {
			return fmt.Errorf("钱包 %s 缺少 rpc_url", w.Coin)
		}
		total := 0.0
		for _, d := range w.Destinations {
			if d.Address == "" {
				return fmt.Errorf("钱包 %s 的归集地址不能为空", w.Coin)
			}
			if d.Percent <= 0 {
				return fmt.Errorf("钱包 %s 的归集比例必须大于0", w.Coin)
			}
			total += d.Percent
		}
		if total > 100 {
			return fmt.Errorf("钱包 %s 的归集比例合计 %.2f 超过 100", w.Coin, total)
		}
		if w.SweepEnabled && len(w.Destinations) == 0 {
			return fmt.Errorf("钱包 %s 启用了归集但未配置目标地址", w.Coin)
		}
	}

	c.fillInfraDefaults()
	return nil
}

func (c *Config) validateMarketplace() error {
	m := &c.Marketplace
	if m.BaseURL == "" {
		m.BaseURL = "https://api.nicehash.com/api"
	}
	if m.FeeRate < 0 || m.FeeRate >= 1 {
		return fmt.Errorf("市场手续费率必须在 [0, 1) 之间 (marketplace.fee_rate)")
	}
	if m.RateLimit <= 0 {
		m.RateLimit = 2
	}
	if m.RateBurst <= 0 {
		m.RateBurst = 2
	}
	if m.RetryDelayMs <= 0 {
		m.RetryDelayMs = 1000
	}
	if m.MaxRetryDelayMs < m.RetryDelayMs {
		m.MaxRetryDelayMs = m.RetryDelayMs
	}
	if m.RetryFactor < 1 {
		m.RetryFactor = 1
	}
	if m.MaxRetries <= 0 {
		m.MaxRetries = 5
	}
	if m.TimeoutSec <= 0 {
		m.TimeoutSec = 10
	}
	if m.AcceptedSpeedScale <= 0 {
		m.AcceptedSpeedScale = 1000
	}
	if m.LimitDecimals < 0 {
		m.LimitDecimals = 0
	}
	return nil
}

func (c *Config) fillTimingDefaults() {
	t := &c.Timing
	if t.DifficultyPollMs <= 0 {
		t.DifficultyPollMs = 500
	}
	if t.PricePollSec <= 0 {
		t.PricePollSec = 30
	}
	if t.OrderBookPollSec <= 0 {
		t.OrderBookPollSec = 10
	}
	if t.MyOrdersPollSec <= 0 {
		t.MyOrdersPollSec = 10
	}
	if t.WalletPollSec <= 0 {
		t.WalletPollSec = 60
	}
	if t.ProxyStatsPollSec <= 0 {
		t.ProxyStatsPollSec = 10
	}
	if t.PriceJitterMinMs <= 0 {
		t.PriceJitterMinMs = 1000
	}
	if t.PriceJitterMaxMs < t.PriceJitterMinMs {
		t.PriceJitterMaxMs = t.PriceJitterMinMs + 1000
	}
	if t.PriceRetryDelayMs <= 0 {
		t.PriceRetryDelayMs = 5000
	}
	if t.ShutdownTimeoutSec <= 0 {
		t.ShutdownTimeoutSec = 10
	}
}

func (coin *CoinConfig) normalize() error {
	coin.Symbol = strings.ToUpper(strings.TrimSpace(coin.Symbol))
	if coin.Symbol == "" {
		return fmt.Errorf("币种 symbol 不能为空")
	}
	if coin.NetworkReward <= 0 {
		return fmt.Errorf("币种 %s 的区块奖励必须大于0", coin.Symbol)
	}
	if coin.UnitScale < 0 {
		return fmt.Errorf("币种 %s 的 unit_scale 不能为负数", coin.Symbol)
	}
	if coin.HashrateUnit <= 0 {
		coin.HashrateUnit = 1e6
	}
	if coin.Daemon.URL == "" {
		return fmt.Errorf("币种 %s 缺少节点地址 (daemon.url)", coin.Symbol)
	}
	if coin.Daemon.TimeoutSec <= 0 {
		coin.Daemon.TimeoutSec = 10
	}
	if len(coin.Exchanges) == 0 {
		return fmt.Errorf("币种 %s 至少需要一个报价交易所", coin.Symbol)
	}
	for i := range coin.Exchanges {
		ex := &coin.Exchanges[i]
		ex.Name = strings.ToLower(ex.Name)
		if ex.Name == "" || ex.Market == "" {
			return fmt.Errorf("币种 %s 的交易所配置不完整", coin.Symbol)
		}
	}
	if coin.SlowAfterFailures <= 0 {
		coin.SlowAfterFailures = 1
	}
	if coin.MinWorkers < 0 {
		coin.MinWorkers = 0
	}
	if err := coin.LimitPolicy.normalize(coin.Symbol); err != nil {
		return err
	}
	if err := coin.Pricing.normalize(coin.Symbol); err != nil {
		return err
	}
	if s, b := coin.Pool.StartAboveROI, coin.Pool.StopBelowROI; s != nil && b != nil && *b > *s {
		return fmt.Errorf("币种 %s 的矿池停止阈值不能高于启动阈值", coin.Symbol)
	}
	return nil
}

func (p *LimitPolicyConfig) normalize(symbol string) error {
	if p.Floor <= 0 {
		p.Floor = 0.01
	}
	if p.Threshold == 0 && p.Upper == 0 {
		p.Threshold = 0.2
		p.Upper = 2.4
	}
	if p.Upper <= p.Threshold {
		return fmt.Errorf("币种 %s 的 ROI 上限必须大于下限", symbol)
	}
	if p.Base <= 0 {
		p.Base = 0.5
	}
	if p.Step <= 0 {
		p.Step = 0.1
	}
	if p.Slope < 0 {
		return fmt.Errorf("币种 %s 的限额斜率不能为负数", symbol)
	}
	if p.Slope == 0 {
		p.Slope = 0.25
	}
	if p.CeilingMode == "" {
		p.CeilingMode = CeilingModeZero
	}
	switch p.CeilingMode {
	case CeilingModeZero:
	case CeilingModeFixed:
		// 固定上限不能低于斜坡末端，否则限额随 ROI 上升反而下降
		top := p.Base + ((p.Upper-p.Threshold)/p.Step)*p.Slope
		if p.Ceiling < top {
			return fmt.Errorf("币种 %s 的固定限额 %.4f 低于斜坡末端 %.4f", symbol, p.Ceiling, top)
		}
	default:
		return fmt.Errorf("币种 %s 的 ceiling_mode 无效: %s", symbol, p.CeilingMode)
	}
	return nil
}

func (p *PricingConfig) normalize(symbol string) error {
	if p.Strategy == "" {
		p.Strategy = PricingCheapestFilled
	}
	switch p.Strategy {
	case PricingPassthrough, PricingCheapestFilled:
	case PricingTargetHashrate:
		if p.TargetHashrate <= 0 {
			return fmt.Errorf("币种 %s 使用 target_hashrate 定价但未配置 target_hashrate", symbol)
		}
	default:
		return fmt.Errorf("币种 %s 的定价策略无效: %s", symbol, p.Strategy)
	}
	if p.Increment == "" {
		p.Increment = "0.0002"
	}
	inc, err := decimal.NewFromString(p.Increment)
	if err != nil {
		return fmt.Errorf("币种 %s 的加价幅度无效: %v", symbol, err)
	}
	if inc.IsNegative() {
		return fmt.Errorf("币种 %s 的加价幅度不能为负数", symbol)
	}
	if p.MinAccepted <= 0 {
		p.MinAccepted = 1
	}
	return nil
}

// IncrementSats 返回加价幅度（聪）
func (p PricingConfig) IncrementSats() int64 {
	inc, err := decimal.NewFromString(p.Increment)
	if err != nil {
		return 0
	}
	return inc.Shift(8).IntPart()
}

func (c *Config) fillInfraDefaults() {
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Type == "sqlite" {
		c.Database.DSN = "./data/hashbid.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.RetentionDays <= 0 {
		c.Database.RetentionDays = 30
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "./data/logs.db"
	}
	if c.Storage.BufferSize <= 0 {
		c.Storage.BufferSize = 1000
	}
	if c.Storage.BatchSize <= 0 {
		c.Storage.BatchSize = 100
	}
	if c.Storage.FlushInterval <= 0 {
		c.Storage.FlushInterval = 5
	}
	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = 7
	}

	if c.DistributedLock.Type == "" {
		c.DistributedLock.Type = "redis"
	}
	if c.DistributedLock.Prefix == "" {
		c.DistributedLock.Prefix = "hashbid:lock:"
	}
	if c.DistributedLock.DefaultTTL <= 0 {
		c.DistributedLock.DefaultTTL = 30
	}
	if c.DistributedLock.Redis.Addr == "" {
		c.DistributedLock.Redis.Addr = "localhost:6379"
	}
	if c.DistributedLock.Redis.PoolSize <= 0 {
		c.DistributedLock.Redis.PoolSize = 10
	}

	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 28888
	}

	if c.Metrics.CollectInterval <= 0 {
		c.Metrics.CollectInterval = 15
	}

	if c.Cron.WalletSweep == "" {
		c.Cron.WalletSweep = "0 * * * * *"
	}
	if c.Cron.LogCleanup == "" {
		c.Cron.LogCleanup = "0 30 3 * * *"
	}
	if c.Cron.StatusReport == "" {
		c.Cron.StatusReport = "0 */5 * * * *"
	}
}

// Coin 按符号查找币种配置
func (c *Config) Coin(symbol string) (CoinConfig, bool) {
	symbol = strings.ToUpper(symbol)
	for _, coin := range c.Coins {
		if coin.Symbol == symbol {
			return coin, true
		}
	}
	return CoinConfig{}, false
}

// MarketPairs 返回需要轮询的 (location, algo) 组合
func (c *Config) MarketPairs() [][2]int {
	algos := make([]int, 0, len(c.Coins))
	seen := make(map[int]bool)
	for _, coin := range c.Coins {
		if !seen[coin.Algo] {
			seen[coin.Algo] = true
			algos = append(algos, coin.Algo)
		}
	}
	pairs := make([][2]int, 0, len(c.Locations)*len(algos))
	for _, loc := range c.Locations {
		for _, algo := range algos {
			pairs = append(pairs, [2]int{loc, algo})
		}
	}
	return pairs
}
