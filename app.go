package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hashbid/config"
	"hashbid/controller"
	"hashbid/daemon"
	"hashbid/database"
	"hashbid/event"
	"hashbid/exchange"
	"hashbid/feed"
	"hashbid/i18n"
	"hashbid/lock"
	"hashbid/logger"
	"hashbid/market"
	"hashbid/metrics"
	"hashbid/nicehash"
	"hashbid/notify"
	"hashbid/order"
	"hashbid/pool"
	"hashbid/scheduler"
	"hashbid/storage"
	"hashbid/strategy"
	"hashbid/utils"
	"hashbid/wallet"
	"hashbid/web"
)

// App 持有所有组件，按依赖顺序创建、启动和关闭
type App struct {
	cfg        *config.Config
	configPath string
	startedAt  time.Time

	logStorage *storage.LogStorage
	db         database.Database
	lock       lock.DistributedLock

	eventBus    *event.EventBus
	eventCenter *event.EventCenter
	topics      *event.Topics

	client  *nicehash.Client
	feeds   *feed.Registry
	books   *market.Registry
	engine  *strategy.Engine
	gateway *order.Gateway
	pools   *pool.Lifecycle
	stats   *pool.StatsPoller
	manager *controller.Manager

	walletPoller *wallet.Poller
	sweepers     []*wallet.Sweeper

	hub       *web.WebSocketHub
	webServer *web.WebServer
	sched     *scheduler.Scheduler
	collector *metrics.SystemMetricsCollector

	hotReloader *config.HotReloader
	watcher     *config.ConfigWatcher

	unsubscribe []func()
	wg          sync.WaitGroup
}

// NewApp 创建所有组件，不发起任何网络请求（分布式锁除外）
func NewApp(cfg *config.Config, configPath string, logStorage *storage.LogStorage) (*App, error) {
	a := &App{
		cfg:        cfg,
		configPath: configPath,
		startedAt:  time.Now(),
		logStorage: logStorage,
		topics:     event.NewTopics(),
		hub:        web.NewWebSocketHub(),
	}

	a.initDatabase()
	if err := a.initLock(); err != nil {
		return nil, err
	}
	a.initEvents()

	if err := a.initFeeds(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initOrders(); err != nil {
		a.Close()
		return nil, err
	}
	a.initWallets()

	a.webServer = web.NewWebServer(cfg.Web, cfg.System.LogLevel, a.hub, a.webProviders())
	a.hotReloader = config.NewHotReloader(cfg)
	a.hotReloader.RegisterCallback(a.onConfigChange)
	return a, nil
}

// initDatabase 历史数据库可选，失败时继续运行
func (a *App) initDatabase() {
	if !a.cfg.Database.Enabled {
		logger.Info("ℹ️ 历史数据库未启用")
		return
	}
	db, err := database.NewDatabase(&database.Config{
		Type:            a.cfg.Database.Type,
		DSN:             a.cfg.Database.DSN,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(a.cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        a.cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Warn("⚠️ 初始化数据库失败: %v (将继续运行，但不保存历史)", err)
		return
	}
	a.db = db
	logger.Info("✅ 数据库已初始化 (类型: %s)", a.cfg.Database.Type)
}

func (a *App) initLock() error {
	dl, err := lock.NewDistributedLock(&lock.Config{
		Enabled:    a.cfg.DistributedLock.Enabled,
		Type:       a.cfg.DistributedLock.Type,
		Prefix:     a.cfg.DistributedLock.Prefix,
		Instance:   a.cfg.System.InstanceID,
		DefaultTTL: time.Duration(a.cfg.DistributedLock.DefaultTTL) * time.Second,
		Redis: lock.RedisConfig{
			Addr:     a.cfg.DistributedLock.Redis.Addr,
			Password: a.cfg.DistributedLock.Redis.Password,
			DB:       a.cfg.DistributedLock.Redis.DB,
			PoolSize: a.cfg.DistributedLock.Redis.PoolSize,
		},
	})
	if err != nil {
		return fmt.Errorf("初始化分布式锁失败: %w", err)
	}
	a.lock = dl
	if a.cfg.DistributedLock.Enabled {
		logger.Info("✅ 分布式锁已启用 (类型: %s, 实例: %s)", a.cfg.DistributedLock.Type, a.cfg.System.InstanceID)
	} else {
		logger.Info("ℹ️ 分布式锁未启用（单机模式）")
	}
	return nil
}

func (a *App) initEvents() {
	a.eventBus = event.NewEventBus(1000)
	notifier := notify.NewNotificationService(a.cfg)

	var store event.EventStore
	if a.db != nil {
		store = a.db
	}
	a.eventCenter = event.NewEventCenter(store, a.eventBus, notifier, nil)
}

func (a *App) initFeeds() error {
	cfg := a.cfg
	a.client = nicehash.NewClient(nicehash.Config{
		BaseURL:            cfg.Marketplace.BaseURL,
		APIID:              cfg.Marketplace.APIID,
		APIKey:             cfg.Marketplace.APIKey,
		Timeout:            time.Duration(cfg.Marketplace.TimeoutSec) * time.Second,
		AcceptedSpeedScale: cfg.Marketplace.AcceptedSpeedScale,
	})

	a.feeds = feed.NewRegistry(
		time.Duration(cfg.Timing.DifficultyPollMs)*time.Millisecond,
		time.Duration(cfg.Timing.PricePollSec)*time.Second,
	)

	var recorder feed.Recorder
	if a.db != nil {
		recorder = a.db
	}

	params := make([]strategy.CoinParams, 0, len(cfg.Coins))
	for _, coin := range cfg.Coins {
		var sources []feed.Source
		for _, ex := range coin.Exchanges {
			client, err := exchange.NewExchange(exchange.Config{
				Name:    ex.Name,
				BaseURL: ex.BaseURL,
				Timeout: time.Duration(cfg.Marketplace.TimeoutSec) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("[%s] %w", coin.Symbol, err)
			}
			sources = append(sources, feed.Source{Exchange: client, Market: ex.Market})
		}

		f := feed.NewFeed(feed.Options{
			Coin:              coin.Symbol,
			SafetyCritical:    coin.SafetyCritical,
			SlowAfterFailures: coin.SlowAfterFailures,
			Daemon:            daemon.NewClient(coin.Daemon.URL, time.Duration(coin.Daemon.TimeoutSec)*time.Second),
			Sources:           sources,
			Topics:            a.topics,
			Events:            a.eventBus,
			Recorder:          recorder,
		})
		if err := a.feeds.Add(f); err != nil {
			return err
		}
		params = append(params, strategy.CoinParamsFromConfig(coin))
	}

	a.engine = strategy.NewEngine(a.feeds, cfg.Marketplace.FeeRate, params)
	a.books = market.NewRegistry(a.client, a.topics, time.Duration(cfg.Timing.OrderBookPollSec)*time.Second, cfg.MarketPairs())
	a.books.SetBroadcaster(a.hub)
	return nil
}

func (a *App) initOrders() error {
	cfg := a.cfg

	var recorder order.Recorder
	if a.db != nil {
		recorder = a.db
	}
	a.gateway = order.NewGateway(a.client, order.GatewayConfig{
		RateLimit: cfg.Marketplace.RateLimit,
		RateBurst: cfg.Marketplace.RateBurst,
		Retry: order.RetryPolicy{
			MaxAttempts: cfg.Marketplace.MaxRetries,
			BaseDelay:   time.Duration(cfg.Marketplace.RetryDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Marketplace.MaxRetryDelayMs) * time.Millisecond,
			Factor:      cfg.Marketplace.RetryFactor,
		},
		LockTTL: time.Duration(cfg.DistributedLock.DefaultTTL) * time.Second,
	}, order.GatewayOptions{
		Lock:     a.lock,
		Recorder: recorder,
		Events:   a.eventBus,
	})

	timeout := time.Duration(cfg.Marketplace.TimeoutSec) * time.Second
	a.pools = pool.NewLifecycle(pool.NewHTTPController(cfg.Pools, timeout), a.eventBus)
	for _, coin := range cfg.Coins {
		a.pools.SetPredicate(coin.Symbol, strategy.NewPoolPredicate(coin.Pool))
	}
	a.stats = pool.NewStatsPoller(cfg.Pools, time.Duration(cfg.Timing.ProxyStatsPollSec)*time.Second, timeout, a.hub)

	policies, err := controller.PoliciesFromConfig(cfg, a.books)
	if err != nil {
		return err
	}
	a.manager = controller.NewManager(controller.ManagerConfig{
		Pairs:    cfg.MarketPairs(),
		Interval: time.Duration(cfg.Timing.MyOrdersPollSec) * time.Second,
	}, policies, a.client, controller.Deps{
		Gateway:         a.gateway,
		ROI:             a.engine,
		Feeds:           a.feeds,
		Pool:            a.pools,
		Market:          a.books,
		Topics:          a.topics,
		JitterMin:       time.Duration(cfg.Timing.PriceJitterMinMs) * time.Millisecond,
		JitterMax:       time.Duration(cfg.Timing.PriceJitterMaxMs) * time.Millisecond,
		PriceRetryDelay: time.Duration(cfg.Timing.PriceRetryDelayMs) * time.Millisecond,
	}, a.eventBus)
	for _, coin := range cfg.Coins {
		a.manager.RegisterCoin(coin.Symbol, coin.Algo, coin.PoolHosts)
	}
	a.manager.SetBroadcaster(a.hub)
	return nil
}

func (a *App) initWallets() {
	cfg := a.cfg
	timeout := time.Duration(cfg.Marketplace.TimeoutSec) * time.Second

	sources := make([]wallet.Source, 0, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		rpc := daemon.NewJSONRPC(w.RPCURL, w.RPCPassword, timeout)
		scale := 0
		if coin, ok := cfg.Coin(w.Coin); ok {
			scale = coin.UnitScale
		}
		sources = append(sources, wallet.Source{Coin: w.Coin, UnitScale: scale, Address: w.Address, RPC: rpc})
		if w.SweepEnabled {
			a.sweepers = append(a.sweepers, wallet.NewSweeper(w, rpc, a.eventBus))
		}
	}

	var mb wallet.MarketBalance
	if cfg.Marketplace.APIKey != "" {
		mb = a.client
	}
	a.walletPoller = wallet.NewPoller(sources, mb, time.Duration(cfg.Timing.WalletPollSec)*time.Second, a.hub)
}

func (a *App) webProviders() web.Providers {
	p := web.Providers{
		Status: a.Status,
		Orders: a.manager,
	}
	if a.db != nil {
		p.Mutations = a.db
		p.Events = a.db
	}
	if a.logStorage != nil {
		p.Logs = a.logStorage
	}
	return p
}

// Start 按依赖顺序启动所有后台任务
func (a *App) Start(ctx context.Context) error {
	a.eventCenter.Start()
	a.eventBus.Publish(&event.Event{Type: event.EventTypeSystemStart, Data: map[string]interface{}{
		"instance_id": a.cfg.System.InstanceID,
		"coins":       len(a.cfg.Coins),
	}})

	a.unsubscribe = append(a.unsubscribe, a.topics.PriceChanged.Subscribe(func(event.PriceChanged) {
		a.hub.Broadcast("exchange-prices", a.feeds.AllQuotes())
	}))

	a.feeds.Start(ctx)
	a.books.Start(ctx)
	a.manager.Start(ctx)
	a.stats.Start(ctx)
	a.walletPoller.Start(ctx)

	if err := a.webServer.Start(ctx); err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled {
		a.collector = metrics.NewSystemMetricsCollector(time.Duration(a.cfg.Metrics.CollectInterval)*time.Second, a.saveSystemSample)
		a.collector.Start(ctx)
	}

	a.sched = scheduler.New(ctx, utils.GlobalLocation)
	if err := a.registerJobs(); err != nil {
		return err
	}
	a.sched.Start()

	if a.configPath != "" {
		watcher, err := config.NewConfigWatcher(a.configPath, a.hotReloader)
		if err != nil {
			logger.Warn("⚠️ 创建配置监控器失败: %v (热更新不可用)", err)
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("⚠️ 启动配置监控器失败: %v", err)
		} else {
			a.watcher = watcher
			a.wg.Add(1)
			go a.watchConfig(ctx)
			logger.Info("✅ 配置热更新已启用: %s", a.configPath)
		}
	}
	return nil
}

func (a *App) registerJobs() error {
	if len(a.sweepers) > 0 {
		if err := a.sched.Register("wallet_sweep", a.cfg.Cron.WalletSweep, a.sweepWallets); err != nil {
			return err
		}
	}
	if err := a.sched.Register("log_cleanup", a.cfg.Cron.LogCleanup, a.cleanup); err != nil {
		return err
	}
	return a.sched.Register("status_report", a.cfg.Cron.StatusReport, a.reportStatus)
}

func (a *App) sweepWallets(ctx context.Context) {
	for _, s := range a.sweepers {
		s.Run(ctx)
	}
}

// cleanup 清理过期日志、系统采样和历史记录
func (a *App) cleanup(ctx context.Context) {
	if ls := a.logStorage; ls != nil {
		days := a.cfg.Storage.RetentionDays
		logger.Info("🧹 开始定期清理日志...")
		if n, err := ls.CleanOldLogsByLevel(days, []string{"DEBUG", "INFO", "WARN"}); err != nil {
			logger.Warn("⚠️ 清理日志失败: %v", err)
		} else {
			logger.Info("✅ 已清理 %d 条 DEBUG/INFO/WARN 级别日志（%d天前）", n, days)
		}
		if _, err := ls.CleanupSystemMetrics(time.Now().AddDate(0, 0, -days)); err != nil {
			logger.Warn("⚠️ 清理系统采样失败: %v", err)
		}
		if err := ls.Vacuum(); err != nil {
			logger.Warn("⚠️ 数据库优化失败: %v", err)
		} else {
			logger.Info("✅ 日志数据库优化完成")
		}
	}

	if a.db != nil {
		before := time.Now().AddDate(0, 0, -a.cfg.Database.RetentionDays)
		if n, err := a.db.CleanupHistory(ctx, before); err != nil {
			logger.Warn("⚠️ 清理历史记录失败: %v", err)
		} else if n > 0 {
			logger.Info("✅ 已清理 %d 条历史记录（%d天前）", n, a.cfg.Database.RetentionDays)
		}
	}
}

// reportStatus 定期输出汇总并推送给看板
func (a *App) reportStatus(ctx context.Context) {
	st := a.Status()
	for _, c := range st.Coins {
		price := "-"
		if c.BestPrice > 0 {
			price = utils.FormatSats(c.BestPrice)
		}
		logger.Info("📋 [%s] 最优价 %s, 订单 %d (有效 %d), 降级=%v", c.Coin, price, c.ManagedOrders, c.EffectiveOrders, c.Degraded)
	}
	logger.Info("📋 修改成功率 %.1f%%, 平均耗时 %s", st.Mutations.SuccessRate*100, st.Mutations.AverageLatency)
	a.hub.Broadcast("status", st)
}

func (a *App) saveSystemSample(s metrics.SystemSample) {
	if a.logStorage == nil {
		return
	}
	if err := a.logStorage.SaveSystemMetrics(&storage.SystemMetrics{
		Timestamp:  s.Timestamp,
		CPUPercent: s.CPUPercent,
		MemoryMB:   s.MemoryMB,
		Goroutines: s.Goroutines,
		ProcessID:  s.ProcessID,
	}); err != nil {
		logger.Debug("保存系统采样失败: %v", err)
	}
}

func (a *App) watchConfig(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case diff := <-a.watcher.GetDiffChan():
			for _, change := range diff.Changes {
				if change.RequiresRestart {
					logger.Warn("⚠️ 配置 %s 已修改，需要重启后生效", change.Path)
				} else {
					logger.Info("🔄 配置 %s 已热更新", change.Path)
				}
			}
		case err := <-a.watcher.GetErrorChan():
			logger.Warn("⚠️ %v", err)
		}
	}
}

// onConfigChange 热更新：策略参数、矿池条件、日志级别
func (a *App) onConfigChange(oldCfg, newCfg *config.Config, changes []config.ConfigChange) error {
	policies, err := controller.PoliciesFromConfig(newCfg, a.books)
	if err != nil {
		return err
	}
	for _, coin := range newCfg.Coins {
		a.pools.SetPredicate(coin.Symbol, strategy.NewPoolPredicate(coin.Pool))
	}
	a.manager.UpdatePolicies(policies)

	if newCfg.System.LogLevel != oldCfg.System.LogLevel {
		logger.SetLevel(logger.ParseLogLevel(newCfg.System.LogLevel))
	}
	if newCfg.System.Language != oldCfg.System.Language {
		i18n.SetSystemLanguage(newCfg.System.Language)
	}

	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	a.eventBus.Publish(&event.Event{Type: event.EventTypeConfigReloaded, Data: map[string]interface{}{
		"changes": paths,
	}})
	return nil
}

// Status 看板和定时汇总使用的状态
func (a *App) Status() *web.SystemStatus {
	st := &web.SystemStatus{
		Running:    true,
		InstanceID: a.cfg.System.InstanceID,
		StartedAt:  a.startedAt,
		Uptime:     int64(time.Since(a.startedAt).Seconds()),
		Pools:      a.pools.Statuses(),
		Balances:   a.walletPoller.Balances(),
		Mutations:  a.gateway.Summary().Snapshot(),
	}

	managed := make(map[string]int)
	for _, s := range a.manager.Snapshots() {
		managed[s.Order.Coin]++
	}
	for _, f := range a.feeds.List() {
		st.Coins = append(st.Coins, web.CoinStatus{
			Status:          f.Status(),
			ManagedOrders:   managed[f.Coin()],
			EffectiveOrders: a.manager.EffectiveOrders(f.Coin()),
		})
	}
	return st
}

// Shutdown 按启动的逆序停止，timeout 内等待后台任务退出
func (a *App) Shutdown(timeout time.Duration) {
	a.eventBus.Publish(&event.Event{Type: event.EventTypeSystemStop, Data: map[string]interface{}{
		"reason": "收到退出信号",
	}})

	for _, unsub := range a.unsubscribe {
		unsub()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.collector != nil {
		a.collector.Stop()
	}
	a.manager.Stop()

	done := make(chan struct{})
	go func() {
		a.feeds.Wait()
		a.books.Wait()
		a.manager.Wait()
		a.stats.Wait()
		a.walletPoller.Wait()
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("⚠️ 等待后台任务退出超时 (%v)", timeout)
	}

	a.eventCenter.Stop()
	a.Close()
}

// Close 释放连接
func (a *App) Close() {
	if a.lock != nil {
		a.lock.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Error("❌ 关闭数据库失败: %v", err)
		}
	}
}
