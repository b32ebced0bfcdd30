package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"hashbid/logger"
)

// SystemSample 一次进程资源采样
type SystemSample struct {
	Timestamp  time.Time
	CPUPercent float64
	MemoryMB   float64
	Goroutines int
	ProcessID  int
}

// SampleSink 采样结果的持久化接口（由 storage.LogStorage 适配）
type SampleSink func(SystemSample)

// SystemMetricsCollector 系统指标采集器
type SystemMetricsCollector struct {
	pm       *PrometheusMetrics
	interval time.Duration
	proc     *process.Process
	sink     SampleSink
	cancel   context.CancelFunc
}

// NewSystemMetricsCollector 创建系统指标采集器，sink 可以为 nil
func NewSystemMetricsCollector(interval time.Duration, sink SampleSink) *SystemMetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("⚠️ 无法获取进程信息，CPU/RSS 指标不可用: %v", err)
		proc = nil
	}
	return &SystemMetricsCollector{
		pm:       GetPrometheusMetrics(),
		interval: interval,
		proc:     proc,
		sink:     sink,
	}
}

// Start 启动采集
func (smc *SystemMetricsCollector) Start(ctx context.Context) {
	ctx, smc.cancel = context.WithCancel(ctx)
	go smc.collectLoop(ctx)
}

// Stop 停止采集
func (smc *SystemMetricsCollector) Stop() {
	if smc.cancel != nil {
		smc.cancel()
	}
}

func (smc *SystemMetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(smc.interval)
	defer ticker.Stop()

	smc.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			smc.Collect()
		}
	}
}

// Collect 采集一次系统指标
func (smc *SystemMetricsCollector) Collect() SystemSample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	sample := SystemSample{
		Timestamp:  time.Now().UTC(),
		Goroutines: runtime.NumGoroutine(),
		MemoryMB:   float64(m.Alloc) / 1024 / 1024,
		ProcessID:  os.Getpid(),
	}
	smc.pm.SetGoroutineCount(sample.Goroutines)
	smc.pm.SetMemoryAlloc(m.Alloc)

	if m.NumGC > 0 {
		// PauseNs 是环形缓冲区，最近一次在 (NumGC+255)%256
		if pauseNs := m.PauseNs[(m.NumGC+255)%256]; pauseNs > 0 {
			smc.pm.RecordGCPause(time.Duration(pauseNs))
		}
	}

	if smc.proc != nil {
		cpu, cpuErr := smc.proc.CPUPercent()
		mem, memErr := smc.proc.MemoryInfo()
		if cpuErr == nil && memErr == nil && mem != nil {
			sample.CPUPercent = cpu
			sample.MemoryMB = float64(mem.RSS) / 1024 / 1024
			smc.pm.SetProcessUsage(cpu, mem.RSS)
		}
	}

	if smc.sink != nil {
		smc.sink(sample)
	}
	return sample
}
