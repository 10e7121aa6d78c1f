package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/config"
	"github.com/Marwa-001/neural-stride/internal/models"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *Manager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Session.Cache.RealtimeKeyPrefix = "posture:session:"
	cfg.Session.Cache.RealtimeSuffix = ":realtime"
	cfg.Session.Cache.RealtimeTTL = 30

	logger := zap.NewNop()
	manager := NewManager(cfg, redisClient, logger)

	return mr, manager
}

func TestManager_SetSnapshot_Success(t *testing.T) {
	mr, manager := setupTestCache(t)

	snapshot := &models.RealtimeSnapshot{
		SessionID: "session-123",
		Metrics: models.PostureMetrics{
			PostureScore:     82,
			CervicalAngle:    158,
			IsPersonDetected: true,
		},
		Stress: models.RegionalStress{
			Cervical:      0,
			CervicalLevel: models.StressOptimal,
		},
		Timestamp: time.Now().UnixMilli(),
	}

	err := manager.SetSnapshot(context.Background(), snapshot)
	require.NoError(t, err)

	// 验证数据已写入
	key := "posture:session:session-123:realtime"
	val, err := mr.Get(key)
	require.NoError(t, err)

	var cached models.RealtimeSnapshot
	err = json.Unmarshal([]byte(val), &cached)
	require.NoError(t, err)
	assert.Equal(t, "session-123", cached.SessionID)
	assert.Equal(t, float64(82), cached.Metrics.PostureScore)
	assert.Equal(t, models.StressOptimal, cached.Stress.CervicalLevel)

	// 验证设置了 TTL
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestManager_GetSnapshot_Success(t *testing.T) {
	_, manager := setupTestCache(t)

	snapshot := &models.RealtimeSnapshot{
		SessionID: "session-456",
		Metrics: models.PostureMetrics{
			PostureScore:     45,
			CervicalAngle:    140,
			IsPersonDetected: true,
		},
		Health:    &models.HealthState{Health: 62.5, Stage: 3},
		Timestamp: time.Now().UnixMilli(),
	}

	ctx := context.Background()
	require.NoError(t, manager.SetSnapshot(ctx, snapshot))

	got, err := manager.GetSnapshot(ctx, "session-456")
	require.NoError(t, err)
	assert.Equal(t, float64(45), got.Metrics.PostureScore)
	require.NotNil(t, got.Health)
	assert.Equal(t, 62.5, got.Health.Health)
	assert.Equal(t, 3, got.Health.Stage)
}

func TestManager_GetSnapshot_NotFound(t *testing.T) {
	_, manager := setupTestCache(t)

	_, err := manager.GetSnapshot(context.Background(), "session-not-exist")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "realtime snapshot not found")
}

func TestManager_GetActiveSessionIDs(t *testing.T) {
	_, manager := setupTestCache(t)

	ctx := context.Background()
	for _, id := range []string{"s-1", "s-2", "s-3"} {
		err := manager.SetSnapshot(ctx, &models.RealtimeSnapshot{SessionID: id})
		require.NoError(t, err)
	}

	ids, err := manager.GetActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s-1", "s-2", "s-3"}, ids)
}
