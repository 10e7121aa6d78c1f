// Package cache 实时数据缓存管理
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/config"
	"github.com/Marwa-001/neural-stride/internal/models"
)

// Manager Redis 缓存管理器（用于姿态会话服务）
type Manager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewManager 创建缓存管理器
func NewManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// realtimeKey 构建实时数据缓存键
func (m *Manager) realtimeKey(sessionID string) string {
	return fmt.Sprintf("%s%s%s",
		m.config.Session.Cache.RealtimeKeyPrefix,
		sessionID,
		m.config.Session.Cache.RealtimeSuffix,
	)
}

// SetSnapshot 写入实时快照（设置 TTL）
func (m *Manager) SetSnapshot(ctx context.Context, snapshot *models.RealtimeSnapshot) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime snapshot: %w", err)
	}

	key := m.realtimeKey(snapshot.SessionID)
	err = m.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(m.config.Session.Cache.RealtimeTTL)*time.Second,
	).Err()

	if err != nil {
		return fmt.Errorf("failed to set realtime cache: %w", err)
	}

	m.logger.Debug("Updated realtime cache",
		zap.String("session_id", snapshot.SessionID),
		zap.String("key", key),
		zap.Float64("posture_score", snapshot.Metrics.PostureScore),
	)

	return nil
}

// GetSnapshot 从 Redis 读取实时快照
func (m *Manager) GetSnapshot(ctx context.Context, sessionID string) (*models.RealtimeSnapshot, error) {
	key := m.realtimeKey(sessionID)

	val, err := m.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("realtime snapshot not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var snapshot models.RealtimeSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal realtime snapshot: %w", err)
	}

	return &snapshot, nil
}

// GetActiveSessionIDs 获取所有有实时快照的会话 ID（通过扫描 Redis 键）
func (m *Manager) GetActiveSessionIDs(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf("%s*%s",
		m.config.Session.Cache.RealtimeKeyPrefix,
		m.config.Session.Cache.RealtimeSuffix,
	)

	var sessionIDs []string
	iter := m.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// 提取 session_id（去掉前缀和后缀）
		sessionID := key[len(m.config.Session.Cache.RealtimeKeyPrefix):]
		sessionID = sessionID[:len(sessionID)-len(m.config.Session.Cache.RealtimeSuffix)]
		sessionIDs = append(sessionIDs, sessionID)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return sessionIDs, nil
}
