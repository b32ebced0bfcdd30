package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"hashbid/logger"
)

// Job 定时任务
type Job func(ctx context.Context)

// Scheduler 管理所有带秒的 cron 任务
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context

	mu    sync.Mutex
	names map[string]cron.EntryID
}

// New 创建调度器，loc 为空时使用本地时区
func New(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		ctx:   ctx,
		names: make(map[string]cron.EntryID),
	}
}

// Register 注册任务，spec 为空表示不启用
func (s *Scheduler) Register(name, spec string, job Job) error {
	if spec == "" {
		logger.Info("ℹ️ 定时任务 %s 未配置，跳过", name)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return fmt.Errorf("register %s task: duplicate name", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("register %s task: %w", name, err)
	}
	s.names[name] = id
	logger.Info("✅ 定时任务已注册: %s (%s)", name, spec)
	return nil
}

// RunNow 立即执行一次已注册的任务
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	id, ok := s.names[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.cron.Entry(id).WrappedJob.Run()
	return true
}

// Next 任务下一次执行时间，调度器未启动时为零值
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.names[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) run(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ 定时任务 %s panic: %v", name, r)
		}
	}()
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	job(s.ctx)
	logger.Debug("⏱️ 定时任务 %s 完成, 耗时 %v", name, time.Since(start))
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("✅ 定时任务调度器已启动")
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("⏹️ 定时任务调度器已停止")
}
