package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hashbid/config"
	"hashbid/event"
	"hashbid/logger"
	"hashbid/metrics"
	"hashbid/nicehash"
	"hashbid/strategy"
)

// OrderSource 自己的订单（nicehash.Client 实现了它）
type OrderSource interface {
	GetMyOrders(ctx context.Context, location, algo int) ([]nicehash.MarketOrder, error)
}

// Broadcaster 把最新状态推送给看板
type Broadcaster interface {
	Broadcast(tag string, payload interface{})
}

// OrdersMessage 推送给看板的自有订单
type OrdersMessage struct {
	Location int                    `json:"location"`
	Algo     int                    `json:"algo"`
	Orders   []nicehash.MarketOrder `json:"orders"`
}

// BroadcastKey 看板按盘口保留最新消息
func (m OrdersMessage) BroadcastKey() string {
	return fmt.Sprintf("%d/%d", m.Location, m.Algo)
}

// coinGroup 一个币种的策略和有效订单数，每个币种只按自己的订单数均分
type coinGroup struct {
	mu        sync.RWMutex
	policy    CoinPolicy
	algo      int
	hosts     map[string]bool
	effective int
}

func (g *coinGroup) Policy() CoinPolicy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy
}

func (g *coinGroup) EffectiveOrders() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.effective
}

func (g *coinGroup) setPolicy(p CoinPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = p
}

func (g *coinGroup) setEffective(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.effective = n
}

// ManagerConfig 管理器配置
type ManagerConfig struct {
	Pairs    [][2]int      // 需要同步的 (location, algo)
	Interval time.Duration // 同步自有订单的间隔
}

// Manager 发现自有订单并为每个订单维护一个控制器
type Manager struct {
	cfg         ManagerConfig
	deps        Deps
	source      OrderSource
	events      event.Publisher
	broadcaster Broadcaster
	pm          *metrics.PrometheusMetrics

	mu          sync.RWMutex
	coins       map[string]*coinGroup
	hostCoin    map[string]string
	controllers map[int64]*Controller

	ctx         context.Context
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewManager 创建订单管理器
func NewManager(cfg ManagerConfig, policies []CoinPolicy, source OrderSource, deps Deps, events event.Publisher) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if events == nil {
		events = event.NopPublisher{}
	}
	m := &Manager{
		cfg:         cfg,
		deps:        deps,
		source:      source,
		events:      events,
		pm:          metrics.GetPrometheusMetrics(),
		coins:       make(map[string]*coinGroup),
		hostCoin:    make(map[string]string),
		controllers: make(map[int64]*Controller),
		ctx:         context.Background(),
	}
	for _, p := range policies {
		m.coins[p.Coin] = &coinGroup{policy: p, hosts: make(map[string]bool)}
	}
	return m
}

// PoliciesFromConfig 从配置创建各币种策略
func PoliciesFromConfig(cfg *config.Config, book strategy.Book) ([]CoinPolicy, error) {
	policies := make([]CoinPolicy, 0, len(cfg.Coins))
	for _, coin := range cfg.Coins {
		pricer, err := strategy.NewPricer(coin.Pricing, book)
		if err != nil {
			return nil, fmt.Errorf("币种 %s: %w", coin.Symbol, err)
		}
		policies = append(policies, CoinPolicy{
			Coin:       coin.Symbol,
			Limit:      strategy.NewLimitPolicy(coin.LimitPolicy, cfg.Marketplace.LimitDecimals),
			Pricer:     pricer,
			MinWorkers: coin.MinWorkers,
		})
	}
	return policies, nil
}

// RegisterCoin 设置币种的算法和矿池地址，用于识别订单属于哪个币种
func (m *Manager) RegisterCoin(coin string, algo int, hosts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.coins[coin]
	if !ok {
		return
	}
	g.algo = algo
	for _, h := range hosts {
		g.hosts[h] = true
		m.hostCoin[h] = coin
	}
}

// SetBroadcaster 设置看板推送
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// UpdatePolicies 热更新币种策略，已知币种立即重新评估
func (m *Manager) UpdatePolicies(policies []CoinPolicy) {
	m.mu.RLock()
	for _, p := range policies {
		if g, ok := m.coins[p.Coin]; ok {
			g.setPolicy(p)
		}
	}
	m.mu.RUnlock()

	m.recountEffective()
	for _, c := range m.List() {
		c.Trigger()
	}
	logger.Info("✅ 已更新 %d 个币种的策略", len(policies))
}

// ResolveCoin 根据算法和矿池地址判断订单所属币种：
// 矿池地址命中且算法一致时使用该币种；否则该算法只有一个未限定矿池的币种时使用它
func (m *Manager) ResolveCoin(algo int, poolHost string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if coin, ok := m.hostCoin[poolHost]; ok && m.coins[coin].algo == algo {
		return coin, true
	}
	var match string
	n := 0
	for symbol, g := range m.coins {
		if g.algo == algo && len(g.hosts) == 0 {
			match = symbol
			n++
		}
	}
	if n == 1 {
		return match, true
	}
	return "", false
}

// Sync 同步一个盘口下的自有订单：新订单创建控制器，消失或失效的订单移除控制器
func (m *Manager) Sync(ctx context.Context, location, algo int) error {
	orders, err := m.source.GetMyOrders(ctx, location, algo)
	if err != nil {
		logger.Warn("⚠️ [自有订单 %d/%d] 获取失败: %v", location, algo, err)
		return err
	}

	seen := make(map[int64]bool, len(orders))
	var added []*Controller
	for _, o := range orders {
		if !o.Alive {
			continue
		}
		coin, ok := m.ResolveCoin(algo, o.PoolHost)
		if !ok {
			continue
		}
		seen[o.ID] = true

		m.mu.RLock()
		c, exists := m.controllers[o.ID]
		m.mu.RUnlock()
		if exists {
			c.Observe(o)
			continue
		}
		if c := m.add(ManagedOrder{
			ID: o.ID, Coin: coin, Location: location, Algo: algo, PoolHost: o.PoolHost,
			Price: o.Price, Limit: o.Limit, Workers: o.Workers, AcceptedSpeed: o.AcceptedSpeed,
		}); c != nil {
			added = append(added, c)
		}
	}

	for _, c := range m.List() {
		o := c.Snapshot().Order
		if o.Location == location && o.Algo == algo && !seen[o.ID] {
			m.remove(o.ID)
		}
	}

	// 先更新有效订单数再启动新控制器，第一次评估就按正确的订单数均分
	changed := m.recountEffective()
	for _, c := range added {
		m.run(c)
	}
	for _, c := range m.List() {
		if changed[c.order.Coin] && !contains(added, c) {
			c.Trigger()
		}
	}

	if m.broadcaster != nil {
		m.broadcaster.Broadcast("my_orders", OrdersMessage{Location: location, Algo: algo, Orders: orders})
	}
	return nil
}

func contains(list []*Controller, c *Controller) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func (m *Manager) add(o ManagedOrder) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.controllers[o.ID]; exists {
		return nil
	}
	c := NewController(o, m.coins[o.Coin], m.deps)
	m.controllers[o.ID] = c

	m.events.Publish(&event.Event{Type: event.EventTypeOrderDiscovered, Data: map[string]interface{}{
		"coin": o.Coin, "order_id": o.ID, "location": o.Location, "algo": o.Algo,
	}})
	return c
}

func (m *Manager) run(c *Controller) {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.Run(ctx)
	}()
}

func (m *Manager) remove(id int64) {
	m.mu.Lock()
	c, ok := m.controllers[id]
	delete(m.controllers, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	c.Stop()
	o := c.Snapshot().Order
	m.pm.DeleteOrder(o.ID, o.Coin)
	logger.Info("🧹 [订单 %d] 已不在市场中，停止管理", o.ID)
	m.events.Publish(&event.Event{Type: event.EventTypeOrderRemoved, Data: map[string]interface{}{
		"coin": o.Coin, "order_id": o.ID,
	}})
}

// recountEffective 重新统计各币种有效订单数，返回数量发生变化的币种
func (m *Manager) recountEffective() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int, len(m.coins))
	totals := make(map[string]int, len(m.coins))
	for _, c := range m.controllers {
		coin := c.order.Coin
		g := m.coins[coin]
		totals[coin]++
		if c.Effective(g.Policy().MinWorkers) {
			counts[coin]++
		}
	}

	changed := make(map[string]bool)
	for symbol, g := range m.coins {
		if g.EffectiveOrders() != counts[symbol] {
			changed[symbol] = true
		}
		g.setEffective(counts[symbol])
		m.pm.SetManagedOrders(symbol, totals[symbol])
	}
	return changed
}

// Get 查找控制器
func (m *Manager) Get(id int64) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controllers[id]
	return c, ok
}

// List 按订单号排序返回所有控制器
func (m *Manager) List() []*Controller {
	m.mu.RLock()
	list := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		list = append(list, c)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Snapshots 所有受控订单状态
func (m *Manager) Snapshots() []Snapshot {
	list := m.List()
	out := make([]Snapshot, 0, len(list))
	for _, c := range list {
		out = append(out, c.Snapshot())
	}
	return out
}

// SlowCoin 把币种所有订单的限额降到最低
func (m *Manager) SlowCoin(coin string) int {
	n := 0
	for _, c := range m.List() {
		if c.order.Coin == coin {
			c.Slow()
			n++
		}
	}
	if n > 0 {
		m.events.Publish(&event.Event{Type: event.EventTypeOrdersSlowed, Data: map[string]interface{}{
			"coin": coin, "orders": n,
		}})
	}
	return n
}

// EffectiveOrders 币种当前有效订单数
func (m *Manager) EffectiveOrders(coin string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.coins[coin]; ok {
		return g.EffectiveOrders()
	}
	return 0
}

// Start 每个盘口一个自有订单同步循环
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if m.deps.Topics != nil {
		m.unsubscribe = m.deps.Topics.FeedDegraded.Subscribe(func(e event.FeedDegraded) {
			if n := m.SlowCoin(e.Coin); n > 0 {
				logger.Warn("⚠️ [%s] 难度源连续失败 %d 次，%d 个订单降到最低限额", e.Coin, e.Failures, n)
			}
		})
	}

	for _, p := range m.cfg.Pairs {
		location, algo := p[0], p[1]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(m.cfg.Interval)
			defer ticker.Stop()

			m.safeSync(ctx, location, algo)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					m.safeSync(ctx, location, algo)
				}
			}
		}()
	}
	logger.Info("✅ 订单管理已启动: %d 个盘口", len(m.cfg.Pairs))
}

// Stop 停止所有控制器
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	for _, c := range m.List() {
		c.Stop()
	}
}

// Wait 等待同步循环和控制器退出
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) safeSync(ctx context.Context, location, algo int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ [自有订单 %d/%d] 同步 panic: %v", location, algo, r)
		}
	}()
	_ = m.Sync(ctx, location, algo)
}
