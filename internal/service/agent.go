package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/bridge"
	"github.com/Marwa-001/neural-stride/internal/broadcast"
	"github.com/Marwa-001/neural-stride/internal/config"
	"github.com/Marwa-001/neural-stride/internal/database"
	"github.com/Marwa-001/neural-stride/internal/models"
	mqttclient "github.com/Marwa-001/neural-stride/internal/mqtt"
	redisclient "github.com/Marwa-001/neural-stride/internal/redis"
	"github.com/Marwa-001/neural-stride/internal/repository"
)

// AgentService 姿态监测控制面服务
//
// 维护会话注册表，确认会话进程的就绪通告，
// 经桥接层下发启停指令并接收姿态/评分更新。
type AgentService struct {
	config      *config.Config
	logger      *zap.Logger
	agentID     string
	db          *sql.DB
	redis       *redis.Client
	mqttClient  *mqttclient.Client
	bridge      *bridge.Bridge
	transport   *bridge.MQTTTransport
	handler     *bridge.Handler
	sessionRepo *repository.SessionRepository
	channel     *broadcast.Channel
	announcer   *broadcast.Announcer

	mu             sync.Mutex
	activeSession  string // 当前对端会话标识
	lastScore      float64
	lastScoreAt    time.Time
	lastPostureAt  time.Time
	personDetected bool
}

// NewAgentService 创建控制面服务
func NewAgentService(cfg *config.Config, logger *zap.Logger) (*AgentService, error) {
	agentID := cfg.Agent.AgentID
	if agentID == "" {
		agentID = "agent-" + uuid.NewString()
	}

	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := redisclient.NewRedisClient(&cfg.Redis)
	if err := redisclient.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, agentID)
	mqttClient, err := mqttclient.NewClient(&mqttCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 桥接层：本端以 agent 标识收发
	transport, err := bridge.NewMQTTTransport(mqttClient, agentID, logger)
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

	sessionRepo := repository.NewSessionRepository(db, logger)

	channel := broadcast.NewChannel(redisClient, cfg.Agent.Origin, agentID, logger)
	announcer := broadcast.NewAnnouncer(
		channel,
		time.Duration(cfg.Broadcast.AnnounceInterval)*time.Second,
		cfg.Broadcast.MaxAnnounceAttempts,
		logger,
	)

	s := &AgentService{
		config:      cfg,
		logger:      logger,
		agentID:     agentID,
		db:          db,
		redis:       redisClient,
		mqttClient:  mqttClient,
		bridge:      msgBridge,
		transport:   transport,
		handler:     handler,
		sessionRepo: sessionRepo,
		channel:     channel,
		announcer:   announcer,
	}

	handler.OnPostureUpdate(s.handlePostureUpdate)
	handler.OnScoreUpdate(s.handleScoreUpdate)
	handler.OnMonitoringChange(s.handleMonitoringChange)

	return s, nil
}

// AgentID 返回本端标识
func (s *AgentService) AgentID() string {
	return s.agentID
}

// Start 启动服务（阻塞直到上下文取消）
func (s *AgentService) Start(ctx context.Context) error {
	s.logger.Info("Starting posture agent service",
		zap.String("agent_id", s.agentID),
	)

	// 桥接收件箱
	if err := s.transport.Listen(ctx, s.handler); err != nil {
		return fmt.Errorf("failed to listen on bridge inbox: %w", err)
	}

	// 桥接连接管理
	go s.bridge.Start(ctx)

	// 广播通道：注册握手
	go func() {
		if err := s.channel.Subscribe(ctx, func(env broadcast.Envelope) {
			s.handleBroadcast(ctx, env)
		}); err != nil {
			s.logger.Error("Broadcast subscription ended with error", zap.Error(err))
		}
	}()

	// 宣告控制面上线
	go s.announcer.Run(ctx, broadcast.TypeWebappReady)

	// 周期性状态核对
	go s.statusLoop(ctx)

	<-ctx.Done()
	return nil
}

// statusLoop 周期性核对对端监测状态并输出摘要
//
// 双端都可能发起监测状态变更，不一致时发送状态对账消息收敛。
func (s *AgentService) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.config.Agent.StatusInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.bridge.Connected() {
				continue
			}

			peerMonitoring, err := s.PeerStatus(ctx)
			if err != nil {
				s.logger.Debug("Peer status query failed", zap.Error(err))
				continue
			}

			if peerMonitoring != s.handler.Monitoring() {
				s.logger.Warn("Monitoring state diverged, reconciling",
					zap.Bool("local_monitoring", s.handler.Monitoring()),
					zap.Bool("peer_monitoring", peerMonitoring),
				)
				if err := s.SendSessionStatus(ctx); err != nil {
					s.logger.Error("Failed to send reconciliation status", zap.Error(err))
				}
			}

			score, scoreAt := s.LastScore()
			s.logger.Info("Agent status",
				zap.Bool("monitoring", s.handler.Monitoring()),
				zap.Bool("peer_monitoring", peerMonitoring),
				zap.Float64("last_score", score),
				zap.Time("last_score_at", scoreAt),
			)
		}
	}
}

// handleBroadcast 处理一条广播信封
//
// 会话就绪通告触发注册握手：登记会话、回发确认、指向桥接对端。
// 启停指令经桥接层下发到会话进程。
func (s *AgentService) handleBroadcast(ctx context.Context, env broadcast.Envelope) {
	switch env.Type {
	case broadcast.TypeContentScriptReady:
		s.registerSession(ctx, env.Source)

	case broadcast.TypeContentScriptConfirmed:
		// 另一个控制面实例已确认，无需处理

	case broadcast.TypeStartMonitoring:
		if err := s.StartMonitoring(ctx); err != nil {
			s.logger.Error("Failed to start monitoring", zap.Error(err))
		}

	case broadcast.TypeStopMonitoring:
		if err := s.StopMonitoring(ctx); err != nil {
			s.logger.Error("Failed to stop monitoring", zap.Error(err))
		}

	case broadcast.TypeHeartbeat:
		// 广播心跳为空操作

	default:
		s.logger.Debug("Ignoring broadcast envelope",
			zap.String("type", env.Type),
			zap.String("source", env.Source),
		)
	}
}

// registerSession 登记会话并回发确认
func (s *AgentService) registerSession(ctx context.Context, sessionID string) {
	session := &models.MonitorSession{
		SessionID:  sessionID,
		ClientID:   sessionID,
		PeerID:     s.agentID,
		Monitoring: false,
		StartedAt:  time.Now(),
	}
	if err := s.sessionRepo.Register(session); err != nil {
		// 记录错误，但不中断握手
		s.logger.Error("Failed to register session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	if err := s.channel.Publish(ctx, broadcast.TypeContentScriptConfirmed); err != nil {
		s.logger.Error("Failed to confirm session readiness", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.activeSession = sessionID
	s.mu.Unlock()

	// 对端确定后唤醒桥接层
	s.bridge.SetPeer(sessionID)

	// 注册即对账：把本地监测状态同步给会话进程
	if err := s.SendSessionStatus(ctx); err != nil {
		s.logger.Error("Failed to send initial session status", zap.Error(err))
	}

	s.logger.Info("Session registered and confirmed",
		zap.String("session_id", sessionID),
	)
}

// handlePostureUpdate 收到会话进程的姿态更新
func (s *AgentService) handlePostureUpdate(update models.PostureUpdate) {
	s.mu.Lock()
	s.lastPostureAt = time.Now()
	s.personDetected = update.IsPersonDetected
	s.mu.Unlock()

	s.logger.Debug("Received posture update",
		zap.Float64("posture_score", update.PostureScore),
		zap.Float64("cervical_angle", update.CervicalAngle),
		zap.Bool("person_detected", update.IsPersonDetected),
	)
}

// handleScoreUpdate 收到会话进程的评分更新
func (s *AgentService) handleScoreUpdate(score float64) {
	s.mu.Lock()
	s.lastScore = score
	s.lastScoreAt = time.Now()
	s.mu.Unlock()
}

// handleMonitoringChange 监测状态变化（本地指令或对账收敛）落库
func (s *AgentService) handleMonitoringChange(monitoring bool) {
	s.mu.Lock()
	sessionID := s.activeSession
	s.mu.Unlock()

	if sessionID == "" {
		return
	}

	if err := s.sessionRepo.UpdateMonitoring(sessionID, monitoring); err != nil {
		// 记录错误，但不中断处理
		s.logger.Error("Failed to persist monitoring state",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// StartMonitoring 下发开始监测指令
func (s *AgentService) StartMonitoring(ctx context.Context) error {
	s.handler.SetMonitoring(true)
	if err := s.bridge.Send(ctx, models.Message{Action: models.ActionStartMonitoring}); err != nil {
		return fmt.Errorf("failed to send start command: %w", err)
	}
	return nil
}

// StopMonitoring 下发停止监测指令
func (s *AgentService) StopMonitoring(ctx context.Context) error {
	s.handler.SetMonitoring(false)
	if err := s.bridge.Send(ctx, models.Message{Action: models.ActionStopMonitoring}); err != nil {
		return fmt.Errorf("failed to send stop command: %w", err)
	}
	return nil
}

// SendSessionStatus 向会话进程发送状态对账消息
func (s *AgentService) SendSessionStatus(ctx context.Context) error {
	msg, err := models.NewMessage(models.ActionSessionStatus, models.SessionStatus{
		IsActive: s.handler.Monitoring(),
	})
	if err != nil {
		return fmt.Errorf("failed to build session status: %w", err)
	}
	if err := s.bridge.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send session status: %w", err)
	}
	return nil
}

// PeerStatus 查询对端的监测状态
func (s *AgentService) PeerStatus(ctx context.Context) (bool, error) {
	reply, err := s.bridge.Request(ctx, models.Message{Action: models.ActionGetStatus})
	if err != nil {
		return false, fmt.Errorf("failed to query peer status: %w", err)
	}
	if reply == nil || reply.Monitoring == nil {
		return false, fmt.Errorf("peer status reply missing monitoring flag")
	}
	return *reply.Monitoring, nil
}

// LastScore 返回最近一次收到的评分
func (s *AgentService) LastScore() (float64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScore, s.lastScoreAt
}

// Stop 停止服务
func (s *AgentService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping posture agent service")

	// 结束当前会话记录
	s.mu.Lock()
	sessionID := s.activeSession
	s.mu.Unlock()
	if sessionID != "" {
		if err := s.sessionRepo.CloseSession(sessionID, time.Now()); err != nil {
			s.logger.Error("Failed to close session record", zap.Error(err))
		}
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.redis != nil {
		redisclient.Close(s.redis)
	}

	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Posture agent service stopped")
	return nil
}
