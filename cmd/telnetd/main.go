package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"telnet_testserver/internal/app"
	"telnet_testserver/internal/shared/config"
	"telnet_testserver/internal/shared/logger"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "telnetd.ini")

	// 1. 加载配置: 默认值 -> telnetd.ini -> 环境变量
	cfg, err := config.Load(iniPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: configuration error: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 创建并运行服务器
	appServer := app.New(cfg)
	if _, err := appServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
	if err := appServer.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server error")
	}
	logger.Info().Msg("Server stopped")
}
