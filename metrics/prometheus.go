package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// 行情指标
	coinDifficulty = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_coin_difficulty",
			Help: "Latest network difficulty per coin",
		},
		[]string{"coin"},
	)

	coinHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_coin_height",
			Help: "Latest block height per coin",
		},
		[]string{"coin"},
	)

	coinBestPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_coin_best_price_sats",
			Help: "Best exchange buy price per coin in satoshis",
		},
		[]string{"coin"},
	)

	exchangeQuote = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_exchange_quote_sats",
			Help: "Exchange quote in satoshis",
		},
		[]string{"exchange", "coin", "side"},
	)

	feedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashbid_feed_errors_total",
			Help: "Total number of failed feed polls",
		},
		[]string{"coin", "source"},
	)

	feedDegraded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_feed_degraded",
			Help: "Difficulty feed degraded state (0=normal, 1=degraded)",
		},
		[]string{"coin"},
	)

	// 市场盘口指标
	marketTotalHashrate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_market_total_hashrate",
			Help: "Total accepted hashrate in the order book",
		},
		[]string{"location", "algo"},
	)

	marketTotalWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_market_total_workers",
			Help: "Total workers in the order book",
		},
		[]string{"location", "algo"},
	)

	marketOrders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_market_orders",
			Help: "Number of standard orders in the order book",
		},
		[]string{"location", "algo"},
	)

	// 订单指标
	orderROI = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_order_roi",
			Help: "Last computed ROI per managed order",
		},
		[]string{"order", "coin"},
	)

	orderLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_order_limit",
			Help: "Current hashrate limit per managed order",
		},
		[]string{"order", "coin"},
	)

	orderPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_order_price_sats",
			Help: "Current price per managed order in satoshis",
		},
		[]string{"order", "coin"},
	)

	managedOrders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_managed_orders",
			Help: "Number of managed orders per coin",
		},
		[]string{"coin"},
	)

	// 修改请求指标
	mutationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashbid_mutation_total",
			Help: "Total number of order mutations by attribute and outcome",
		},
		[]string{"coin", "attribute", "outcome"},
	)

	mutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashbid_mutation_duration_seconds",
			Help:    "Order mutation duration including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"attribute"},
	)

	apiCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashbid_api_call_total",
			Help: "Total number of marketplace API calls",
		},
		[]string{"endpoint", "status"},
	)

	apiCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashbid_api_call_duration_seconds",
			Help:    "Marketplace API call duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"endpoint"},
	)

	apiRateLimitHit = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashbid_api_rate_limit_hit_total",
			Help: "Total number of rate limit responses",
		},
		[]string{"attribute"},
	)

	// 矿池指标
	poolRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_pool_running",
			Help: "Pool status (0=stopped, 1=running)",
		},
		[]string{"host", "coin"},
	)

	// 钱包指标
	walletBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashbid_wallet_balance",
			Help: "Wallet balance in smallest units",
		},
		[]string{"coin", "kind"},
	)

	// 系统指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashbid_goroutines",
			Help: "Number of goroutines",
		},
	)

	memoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashbid_memory_alloc_bytes",
			Help: "Heap bytes allocated",
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashbid_process_cpu_percent",
			Help: "Process CPU usage percent",
		},
	)

	processRSSBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashbid_process_rss_bytes",
			Help: "Process resident set size",
		},
	)

	gcPauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hashbid_gc_pause_seconds",
			Help:    "Last GC pause duration",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
	)
)

// PrometheusMetrics Prometheus 指标记录器
type PrometheusMetrics struct{}

// NewPrometheusMetrics 创建指标记录器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

func orderLabel(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}

// 行情

// SetDifficulty 设置难度和高度
func (pm *PrometheusMetrics) SetDifficulty(coin string, difficulty, height uint64) {
	coinDifficulty.WithLabelValues(coin).Set(float64(difficulty))
	coinHeight.WithLabelValues(coin).Set(float64(height))
}

// SetBestPrice 设置最优买价
func (pm *PrometheusMetrics) SetBestPrice(coin string, sats int64) {
	coinBestPrice.WithLabelValues(coin).Set(float64(sats))
}

// SetExchangeQuote 设置交易所报价
func (pm *PrometheusMetrics) SetExchangeQuote(exchange, coin string, buy, sell int64) {
	exchangeQuote.WithLabelValues(exchange, coin, "buy").Set(float64(buy))
	exchangeQuote.WithLabelValues(exchange, coin, "sell").Set(float64(sell))
}

// RecordFeedError 记录行情轮询失败，source 为 daemon 或交易所名
func (pm *PrometheusMetrics) RecordFeedError(coin, source string) {
	feedErrors.WithLabelValues(coin, source).Inc()
}

// SetFeedDegraded 设置难度源降级状态
func (pm *PrometheusMetrics) SetFeedDegraded(coin string, degraded bool) {
	feedDegraded.WithLabelValues(coin).Set(boolValue(degraded))
}

// 盘口

// SetMarketSnapshot 设置盘口聚合值
func (pm *PrometheusMetrics) SetMarketSnapshot(location, algo int, orders int, totalHashrate float64, totalWorkers int) {
	l, a := strconv.Itoa(location), strconv.Itoa(algo)
	marketOrders.WithLabelValues(l, a).Set(float64(orders))
	marketTotalHashrate.WithLabelValues(l, a).Set(totalHashrate)
	marketTotalWorkers.WithLabelValues(l, a).Set(float64(totalWorkers))
}

// 订单

// SetOrderState 设置订单 ROI、限额和价格
func (pm *PrometheusMetrics) SetOrderState(orderID int64, coin string, roi, limit float64, priceSats int64) {
	id := orderLabel(orderID)
	orderROI.WithLabelValues(id, coin).Set(roi)
	orderLimit.WithLabelValues(id, coin).Set(limit)
	orderPrice.WithLabelValues(id, coin).Set(float64(priceSats))
}

// DeleteOrder 订单移除后删除其指标
func (pm *PrometheusMetrics) DeleteOrder(orderID int64, coin string) {
	id := orderLabel(orderID)
	orderROI.DeleteLabelValues(id, coin)
	orderLimit.DeleteLabelValues(id, coin)
	orderPrice.DeleteLabelValues(id, coin)
}

// SetManagedOrders 设置币种管理的订单数
func (pm *PrometheusMetrics) SetManagedOrders(coin string, n int) {
	managedOrders.WithLabelValues(coin).Set(float64(n))
}

// RecordMutation 记录一次修改的结果
func (pm *PrometheusMetrics) RecordMutation(coin, attribute, outcome string, duration time.Duration) {
	mutationTotal.WithLabelValues(coin, attribute, outcome).Inc()
	mutationDuration.WithLabelValues(attribute).Observe(duration.Seconds())
}

// RecordAPICall 记录市场 API 调用
func (pm *PrometheusMetrics) RecordAPICall(endpoint, status string, duration time.Duration) {
	apiCallTotal.WithLabelValues(endpoint, status).Inc()
	apiCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAPIRateLimitHit 记录限流
func (pm *PrometheusMetrics) RecordAPIRateLimitHit(attribute string) {
	apiRateLimitHit.WithLabelValues(attribute).Inc()
}

// 矿池与钱包

// SetPoolRunning 设置矿池状态
func (pm *PrometheusMetrics) SetPoolRunning(host, coin string, running bool) {
	poolRunning.WithLabelValues(host, coin).Set(boolValue(running))
}

// SetWalletBalance 设置钱包余额，kind 为 available/locked/marketplace
func (pm *PrometheusMetrics) SetWalletBalance(coin, kind string, value float64) {
	walletBalance.WithLabelValues(coin, kind).Set(value)
}

// 系统

// SetGoroutineCount 设置 goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(n int) {
	goroutineCount.Set(float64(n))
}

// SetMemoryAlloc 设置内存分配
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAllocBytes.Set(float64(bytes))
}

// SetProcessUsage 设置进程 CPU 和 RSS
func (pm *PrometheusMetrics) SetProcessUsage(cpuPercent float64, rssBytes uint64) {
	processCPUPercent.Set(cpuPercent)
	processRSSBytes.Set(float64(rssBytes))
}

// RecordGCPause 记录 GC 停顿
func (pm *PrometheusMetrics) RecordGCPause(d time.Duration) {
	gcPauseDuration.Observe(d.Seconds())
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// 全局实例
var globalPrometheusMetrics *PrometheusMetrics

// GetPrometheusMetrics 获取全局 Prometheus 指标记录器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}
