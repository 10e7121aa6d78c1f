// Package health 提供健康值衰减/增长模型
//
// 固定周期（2秒）按当前评分调整健康值：高分增长、低分衰减；
// 监测关闭时向中性值 50 缓慢漂移，不越过。
// 阶段（1-5）由当前健康值按固定阈值 {85,68,48,25} 实时导出。
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/models"
)

const (
	// TickInterval 健康值调整周期
	TickInterval = 2 * time.Second

	// neutralHealth 监测关闭时的漂移目标
	neutralHealth = 50.0

	// idleDriftPerTick 监测关闭时每个周期向中性值漂移的幅度
	idleDriftPerTick = 0.25
)

// 阶段阈值（健康值下界，从高到低）
var stageThresholds = [4]float64{85, 68, 48, 25}

// Model 健康模型
//
// 状态（HealthState）仅由本模型持有和修改，外部只读快照。
type Model struct {
	mu     sync.Mutex
	health float64
	stage  int
	logger *zap.Logger
}

// NewModel 创建健康模型（初始健康值为中性值 50）
func NewModel(logger *zap.Logger) *Model {
	m := &Model{
		health: neutralHealth,
		logger: logger,
	}
	m.stage = StageFor(m.health)
	return m
}

// changeRate 评分到健康值变化率的阶梯函数（每秒）
func changeRate(score float64) float64 {
	switch {
	case score >= 85:
		return 0.8
	case score >= 70:
		return 0.4
	case score >= 55:
		return 0.1
	case score >= 40:
		return -0.4
	case score >= 25:
		return -1.0
	default:
		return -1.8
	}
}

// StageFor 健康值对应的阶段（1-5）
func StageFor(health float64) int {
	switch {
	case health >= stageThresholds[0]:
		return 5
	case health >= stageThresholds[1]:
		return 4
	case health >= stageThresholds[2]:
		return 3
	case health >= stageThresholds[3]:
		return 2
	default:
		return 1
	}
}

// Tick 执行一次健康值调整
//
// monitoring=true 时按 changeRate(score) × 经过秒数调整并钳制到 [0,100]；
// monitoring=false 时忽略评分，向中性值 50 漂移，不越过。
// 每次调整后由当前健康值重新计算阶段。
func (m *Model) Tick(score float64, elapsed time.Duration, monitoring bool) models.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if monitoring {
		m.health += changeRate(score) * elapsed.Seconds()
		if m.health > 100 {
			m.health = 100
		} else if m.health < 0 {
			m.health = 0
		}
	} else {
		// 向中性值漂移，步长不超过剩余距离
		diff := neutralHealth - m.health
		step := idleDriftPerTick
		if diff < 0 {
			step = -step
		}
		if absFloat(diff) <= absFloat(step) {
			m.health = neutralHealth
		} else {
			m.health += step
		}
	}

	prevStage := m.stage
	m.stage = StageFor(m.health)
	if m.stage != prevStage {
		m.logger.Info("Health stage changed",
			zap.Int("prev_stage", prevStage),
			zap.Int("stage", m.stage),
			zap.Float64("health", m.health),
		)
	}

	return models.HealthState{Health: m.health, Stage: m.stage}
}

// Snapshot 返回当前状态快照
func (m *Model) Snapshot() models.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.HealthState{Health: m.health, Stage: m.stage}
}

// ScoreSource 健康模型读取当前评分与监测状态的来源
type ScoreSource interface {
	CurrentScore() (score float64, monitoring bool)
}

// Run 按固定周期运行健康模型，直到上下文取消
func (m *Model) Run(ctx context.Context, source ScoreSource) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health model stopped")
			return
		case now := <-ticker.C:
			score, monitoring := source.CurrentScore()
			m.Tick(score, now.Sub(last), monitoring)
			last = now
		}
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
