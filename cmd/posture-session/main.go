package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/config"
	"github.com/Marwa-001/neural-stride/internal/logger"
	"github.com/Marwa-001/neural-stride/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "posture-session")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting posture-session service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("origin", cfg.Session.Origin),
	)

	// 创建服务
	sessionService, err := service.NewSessionService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create session service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sessionService.Start(ctx)
	}()

	// 等待中断信号或启动失败
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			zapLogger.Error("Session service exited with error", zap.Error(err))
		}
	}

	// 优雅关闭
	cancel()
	if err := sessionService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
