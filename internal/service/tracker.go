package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/bridge"
	"github.com/Marwa-001/neural-stride/internal/cache"
	"github.com/Marwa-001/neural-stride/internal/health"
	"github.com/Marwa-001/neural-stride/internal/models"
	"github.com/Marwa-001/neural-stride/internal/posture"
	"github.com/Marwa-001/neural-stride/internal/stress"
	"github.com/Marwa-001/neural-stride/internal/voice"
)

// Tracker 单个会话的姿态跟踪器
//
// 每帧流水线：关键点 → 姿态指标 → 区域压力 → 语音反馈 → 缓存 → 桥接转发。
// 指标与压力每帧重新计算，不保留姿态历史。
type Tracker struct {
	sessionID string
	voiceCtrl *voice.Controller
	health    *health.Model
	cache     *cache.Manager
	bridge    *bridge.Bridge
	logger    *zap.Logger

	mu             sync.Mutex
	lastScore      float64
	personDetected bool
	monitoring     bool
}

// NewTracker 创建姿态跟踪器
func NewTracker(
	sessionID string,
	voiceCtrl *voice.Controller,
	healthModel *health.Model,
	cacheManager *cache.Manager,
	msgBridge *bridge.Bridge,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		sessionID: sessionID,
		voiceCtrl: voiceCtrl,
		health:    healthModel,
		cache:     cacheManager,
		bridge:    msgBridge,
		logger:    logger,
	}
}

// SessionID 返回会话标识
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Monitoring 返回监测开关状态
func (t *Tracker) Monitoring() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monitoring
}

// SetMonitoring 设置监测开关
//
// 开启时重置语音反馈状态（新会话从干净状态开始）。
func (t *Tracker) SetMonitoring(monitoring bool) {
	t.mu.Lock()
	changed := t.monitoring != monitoring
	t.monitoring = monitoring
	t.mu.Unlock()

	if changed && monitoring {
		t.voiceCtrl.Reset(time.Now())
	}

	if changed {
		t.logger.Info("Monitoring state changed",
			zap.String("session_id", t.sessionID),
			zap.Bool("monitoring", monitoring),
		)
	}
}

// CurrentScore 健康模型读取当前评分与活跃状态
//
// 人不在画面时报告非活跃，健康值向基线漂移而不是按零分衰减。
func (t *Tracker) CurrentScore() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastScore, t.monitoring && t.personDetected
}

// HandleLandmarks 处理一帧关键点数据
func (t *Tracker) HandleLandmarks(ctx context.Context, sessionID string, set *models.LandmarkSet) error {
	if sessionID != t.sessionID {
		// 其他会话的数据，忽略
		return nil
	}

	metrics := posture.ComputeMetrics(set)

	// 检测失败帧：区域压力归零，评分保持上一帧（不按零分处理）
	regional := stress.Zero()
	if metrics.IsPersonDetected {
		regional = stress.Map(metrics.PostureScore, metrics.CervicalAngle)
	}

	t.mu.Lock()
	if metrics.IsPersonDetected {
		t.lastScore = metrics.PostureScore
	}
	t.personDetected = metrics.IsPersonDetected
	monitoring := t.monitoring
	t.mu.Unlock()

	// 语音反馈仅在监测开启且检测到人时评估
	if monitoring && metrics.IsPersonDetected {
		t.voiceCtrl.Process(ctx, metrics.PostureScore, time.Now())
	}

	// 写入实时缓存（失败只记日志，不中断处理）
	healthState := t.health.Snapshot()
	snapshot := &models.RealtimeSnapshot{
		SessionID: t.sessionID,
		Metrics:   metrics,
		Stress:    regional,
		Health:    &healthState,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := t.cache.SetSnapshot(ctx, snapshot); err != nil {
		t.logger.Error("Failed to update realtime cache",
			zap.String("session_id", t.sessionID),
			zap.Error(err),
		)
	}

	// 监测开启时经桥接层转发姿态与评分更新
	if monitoring {
		t.forwardUpdates(ctx, metrics)
	}

	return nil
}

// forwardUpdates 经桥接层转发姿态与评分更新
//
// 桥接层自行处理离线排队，此处不关心对端状态。
func (t *Tracker) forwardUpdates(ctx context.Context, metrics models.PostureMetrics) {
	postureMsg, err := models.NewMessage(models.ActionUpdatePosture, models.PostureUpdate{
		PostureScore:     metrics.PostureScore,
		CervicalAngle:    metrics.CervicalAngle,
		IsPersonDetected: metrics.IsPersonDetected,
	})
	if err != nil {
		t.logger.Error("Failed to build posture update", zap.Error(err))
		return
	}
	if err := t.bridge.Send(ctx, postureMsg); err != nil {
		t.logger.Error("Failed to forward posture update", zap.Error(err))
	}

	scoreMsg, err := models.NewMessage(models.ActionUpdateScore, models.ScoreUpdate{
		Score: metrics.PostureScore,
	})
	if err != nil {
		t.logger.Error("Failed to build score update", zap.Error(err))
		return
	}
	if err := t.bridge.Send(ctx, scoreMsg); err != nil {
		t.logger.Error("Failed to forward score update", zap.Error(err))
	}
}
