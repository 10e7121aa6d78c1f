package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTick_HighScoreMonotonicIncreaseUntilClamped(t *testing.T) {
	m := NewModel(zap.NewNop())

	// 评分恒为 90：健康值单调上升直到钳制在 100
	prev := m.Snapshot().Health
	for i := 0; i < 60; i++ {
		state := m.Tick(90, TickInterval, true)
		assert.GreaterOrEqual(t, state.Health, prev)
		assert.LessOrEqual(t, state.Health, 100.0)
		prev = state.Health
	}
	assert.Equal(t, 100.0, m.Snapshot().Health)
	assert.Equal(t, 5, m.Snapshot().Stage)
}

func TestTick_LowScoreMonotonicDecreaseToZero(t *testing.T) {
	m := NewModel(zap.NewNop())

	// 评分恒为 10：健康值单调下降直到 0
	prev := m.Snapshot().Health
	for i := 0; i < 60; i++ {
		state := m.Tick(10, TickInterval, true)
		assert.LessOrEqual(t, state.Health, prev)
		assert.GreaterOrEqual(t, state.Health, 0.0)
		prev = state.Health
	}
	assert.Equal(t, 0.0, m.Snapshot().Health)
	assert.Equal(t, 1, m.Snapshot().Stage)
}

func TestTick_InactiveDriftsTowardNeutralWithoutOvershoot(t *testing.T) {
	m := NewModel(zap.NewNop())

	// 先拉高到 100
	for i := 0; i < 60; i++ {
		m.Tick(90, TickInterval, true)
	}
	assert.Equal(t, 100.0, m.Snapshot().Health)

	// 监测关闭：向 50 漂移，不越过
	prev := m.Snapshot().Health
	for i := 0; i < 500; i++ {
		state := m.Tick(0, TickInterval, false)
		assert.LessOrEqual(t, state.Health, prev)
		assert.GreaterOrEqual(t, state.Health, neutralHealth)
		prev = state.Health
	}
	assert.Equal(t, neutralHealth, m.Snapshot().Health)

	// 从低位同样收敛到 50，不越过
	for i := 0; i < 100; i++ {
		m.Tick(10, TickInterval, true)
	}
	assert.Less(t, m.Snapshot().Health, neutralHealth)
	for i := 0; i < 500; i++ {
		state := m.Tick(0, TickInterval, false)
		assert.LessOrEqual(t, state.Health, neutralHealth)
	}
	assert.Equal(t, neutralHealth, m.Snapshot().Health)
}

func TestStageFor_Thresholds(t *testing.T) {
	assert.Equal(t, 5, StageFor(100))
	assert.Equal(t, 5, StageFor(85))
	assert.Equal(t, 4, StageFor(84.9))
	assert.Equal(t, 4, StageFor(68))
	assert.Equal(t, 3, StageFor(67.9))
	assert.Equal(t, 3, StageFor(48))
	assert.Equal(t, 2, StageFor(47.9))
	assert.Equal(t, 2, StageFor(25))
	assert.Equal(t, 1, StageFor(24.9))
	assert.Equal(t, 1, StageFor(0))
}

func TestChangeRate_StepSchedule(t *testing.T) {
	assert.Equal(t, 0.8, changeRate(90))
	assert.Equal(t, 0.8, changeRate(85))
	assert.Equal(t, 0.4, changeRate(70))
	assert.Equal(t, 0.1, changeRate(55))
	assert.Equal(t, -0.4, changeRate(40))
	assert.Equal(t, -1.0, changeRate(25))
	assert.Equal(t, -1.8, changeRate(10))
}

func TestTick_ElapsedScalesDelta(t *testing.T) {
	m := NewModel(zap.NewNop())

	state := m.Tick(90, 2*time.Second, true)

	// 50 + 0.8 × 2 秒
	assert.InDelta(t, 51.6, state.Health, 0.0001)
}
