// Package service 服务装配层
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/bridge"
	"github.com/Marwa-001/neural-stride/internal/broadcast"
	"github.com/Marwa-001/neural-stride/internal/cache"
	"github.com/Marwa-001/neural-stride/internal/config"
	"github.com/Marwa-001/neural-stride/internal/consumer"
	"github.com/Marwa-001/neural-stride/internal/health"
	"github.com/Marwa-001/neural-stride/internal/models"
	mqttclient "github.com/Marwa-001/neural-stride/internal/mqtt"
	redisclient "github.com/Marwa-001/neural-stride/internal/redis"
	"github.com/Marwa-001/neural-stride/internal/voice"
)

// SessionService 姿态会话服务
//
// 消费关键点数据流，运行姿态流水线，经桥接层与控制面进程通信。
type SessionService struct {
	config      *config.Config
	logger      *zap.Logger
	sessionID   string
	redis       *redis.Client
	mqttClient  *mqttclient.Client
	bridge      *bridge.Bridge
	transport   *bridge.MQTTTransport
	handler     *bridge.Handler
	tracker     *Tracker
	healthModel *health.Model
	consumer    *consumer.LandmarkConsumer
	channel     *broadcast.Channel
	announcer   *broadcast.Announcer
}

// NewSessionService 创建姿态会话服务
func NewSessionService(cfg *config.Config, logger *zap.Logger) (*SessionService, error) {
	sessionID := cfg.Session.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// 初始化Redis
	redisClient := redisclient.NewRedisClient(&cfg.Redis)
	if err := redisclient.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT（客户端标识带会话后缀，避免多会话互踢）
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-session-%s", cfg.MQTT.ClientID, sessionID)
	mqttClient, err := mqttclient.NewClient(&mqttCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 桥接层：本端以会话标识收发
	transport, err := bridge.NewMQTTTransport(mqttClient, sessionID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge transport: %w", err)
	}
	msgBridge := bridge.New(transport, bridge.Config{
		PeerID:            cfg.Bridge.PeerID,
		CheckInterval:     time.Duration(cfg.Bridge.CheckInterval) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Bridge.HeartbeatInterval) * time.Second,
		RequestTimeout:    time.Duration(cfg.Bridge.RequestTimeout) * time.Second,
		MaxRetries:        cfg.Bridge.MaxRetries,
	}, logger)

	handler := bridge.NewHandler(func(ctx context.Context, msg models.Message) {
		if err := msgBridge.Send(ctx, msg); err != nil {
			logger.Error("Failed to send reconciliation notification", zap.Error(err))
		}
	}, logger)

	// 姿态流水线组件
	speaker := voice.NewMQTTSpeaker(mqttClient, cfg.Session.Topics.TTS, sessionID, cfg.Session.Voice.Name, logger)
	voiceCtrl := voice.NewController(speaker, voice.Frequency(cfg.Session.Voice.Frequency), logger)
	healthModel := health.NewModel(logger)
	cacheManager := cache.NewManager(cfg, redisClient, logger)

	tracker := NewTracker(sessionID, voiceCtrl, healthModel, cacheManager, msgBridge, logger)
	handler.OnMonitoringChange(tracker.SetMonitoring)

	landmarkConsumer := consumer.NewLandmarkConsumer(cfg, mqttClient, tracker, logger)

	// 同源广播通道
	channel := broadcast.NewChannel(redisClient, cfg.Session.Origin, sessionID, logger)
	announcer := broadcast.NewAnnouncer(
		channel,
		time.Duration(cfg.Broadcast.AnnounceInterval)*time.Second,
		cfg.Broadcast.MaxAnnounceAttempts,
		logger,
	)

	return &SessionService{
		config:      cfg,
		logger:      logger,
		sessionID:   sessionID,
		redis:       redisClient,
		mqttClient:  mqttClient,
		bridge:      msgBridge,
		transport:   transport,
		handler:     handler,
		tracker:     tracker,
		healthModel: healthModel,
		consumer:    landmarkConsumer,
		channel:     channel,
		announcer:   announcer,
	}, nil
}

// SessionID 返回会话标识
func (s *SessionService) SessionID() string {
	return s.sessionID
}

// Start 启动服务（阻塞直到上下文取消）
func (s *SessionService) Start(ctx context.Context) error {
	s.logger.Info("Starting posture session service",
		zap.String("session_id", s.sessionID),
	)

	// 桥接收件箱
	if err := s.transport.Listen(ctx, s.handler); err != nil {
		return fmt.Errorf("failed to listen on bridge inbox: %w", err)
	}

	// 桥接连接管理
	go s.bridge.Start(ctx)

	// 健康模型
	go s.healthModel.Run(ctx, s.tracker)

	// 广播通道：接收确认与启停指令
	go func() {
		if err := s.channel.Subscribe(ctx, func(env broadcast.Envelope) {
			s.handleBroadcast(ctx, env)
		}); err != nil {
			s.logger.Error("Broadcast subscription ended with error", zap.Error(err))
		}
	}()

	// 就绪通告（收到确认后停止重发）
	go s.announcer.Run(ctx, broadcast.TypeContentScriptReady)

	// 关键点消费者（阻塞）
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start landmark consumer: %w", err)
	}

	return nil
}

// handleBroadcast 处理一条广播信封
func (s *SessionService) handleBroadcast(ctx context.Context, env broadcast.Envelope) {
	switch env.Type {
	case broadcast.TypeContentScriptConfirmed:
		// 控制面确认了本会话的就绪通告：对端即为信封来源
		s.announcer.Confirm()
		s.bridge.SetPeer(env.Source)

	case broadcast.TypeWebappReady:
		// 控制面（重新）上线：重发就绪通告并唤醒桥接层
		if err := s.channel.Publish(ctx, broadcast.TypeContentScriptReady); err != nil {
			s.logger.Error("Failed to re-announce readiness", zap.Error(err))
		}
		s.bridge.Wake()

	case broadcast.TypeStartMonitoring:
		s.handler.SetMonitoring(true)

	case broadcast.TypeStopMonitoring:
		s.handler.SetMonitoring(false)

	case broadcast.TypeHeartbeat:
		// 广播心跳为空操作

	default:
		s.logger.Debug("Ignoring broadcast envelope",
			zap.String("type", env.Type),
			zap.String("source", env.Source),
		)
	}
}

// Stop 停止服务
func (s *SessionService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping posture session service")

	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.redis != nil {
		redisclient.Close(s.redis)
	}

	s.logger.Info("Posture session service stopped")
	return nil
}
