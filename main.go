package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hashbid/config"
	"hashbid/i18n"
	"hashbid/logger"
	"hashbid/storage"
	"hashbid/utils"
)

// Version 版本号
var Version = "1.0.0"

func main() {
	// 检查版本参数
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("HashBid Marketplace Bot\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	// 解析调试参数（-debug / --debug）
	debugMode := false
	filteredArgs := []string{os.Args[0]}
	for _, arg := range os.Args[1:] {
		switch arg {
		case "-debug", "--debug":
			debugMode = true
		default:
			filteredArgs = append(filteredArgs, arg)
		}
	}
	if debugMode {
		log.Printf("[INFO] Debug 模式已启用")
	}
	os.Args = filteredArgs

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("❌ 加载配置失败: %v", err)
	}

	// 语言包先于其余日志初始化
	if err := i18n.Init(cfg.System.Language); err != nil {
		log.Printf("[WARN] 初始化语言包失败: %v，日志与通知将使用中文", err)
	}
	logger.SetTranslateFunc(i18n.T)

	// 1. 日志存储
	var logStorage *storage.LogStorage
	if cfg.Storage.Enabled {
		logStorage, err = storage.NewLogStorage(cfg.Storage.Path, storage.Options{
			BufferSize:    cfg.Storage.BufferSize,
			BatchSize:     cfg.Storage.BatchSize,
			FlushInterval: time.Duration(cfg.Storage.FlushInterval) * time.Second,
		})
		if err != nil {
			log.Printf("[WARN] 初始化日志存储失败: %v，将继续运行但不保存日志到数据库", err)
			logStorage = nil
		} else {
			logger.InitLogStorage(logStorage.WriteLog)
			log.Printf("[INFO] 日志存储已初始化: %s", cfg.Storage.Path)
		}
	}

	logger.Info("log.system_starting")
	logger.Info("log.version", Version)
	logger.Info("log.language_set", i18n.GetSystemLanguage())

	if err := utils.SetLocation(cfg.System.Timezone); err != nil {
		logger.Warn("⚠️ 加载时区 %s 失败: %v，将使用 UTC", cfg.System.Timezone, err)
		utils.SetLocation("")
	} else if cfg.System.Timezone != "" {
		logger.Info("✅ 系统时区设置为: %s", cfg.System.Timezone)
	}
	logger.SetLocation(utils.GlobalLocation)

	if debugMode {
		cfg.System.LogLevel = "DEBUG"
	}
	logger.SetLogDir(cfg.System.LogDir)
	logLevel := logger.ParseLogLevel(cfg.System.LogLevel)
	logger.SetLevel(logLevel)
	logger.Info("日志级别设置为: %s", logLevel.String())
	logger.Info("log.config_loaded", len(cfg.Coins), len(cfg.Pools), len(cfg.Wallets))

	app, err := NewApp(cfg, configPath, logStorage)
	if err != nil {
		logger.Fatalf("❌ 初始化失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		cancel()
		app.Shutdown(time.Duration(cfg.Timing.ShutdownTimeoutSec) * time.Second)
		logger.Fatalf("❌ 启动失败: %v", err)
	}

	logger.Info("log.system_ready")
	logger.Info("log.press_ctrl_c")

	// 等待退出信号（SIGINT 或 SIGTERM）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("log.shutdown_signal")

	// 停止所有协程，再等待它们退出
	cancel()
	app.Shutdown(time.Duration(cfg.Timing.ShutdownTimeoutSec) * time.Second)

	logger.Info("log.system_exited")

	// 关闭文件日志
	logger.Close()

	// 关闭日志存储
	if logStorage != nil {
		if err := logStorage.Close(); err != nil {
			log.Printf("[ERROR] 关闭日志存储失败: %v", err)
		}
	}
}
