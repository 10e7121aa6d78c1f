package posture

import (
	"math"

	"github.com/Marwa-001/neural-stride/internal/models"
)

// 综合评分权重
const (
	cervicalWeight    = 0.6
	shoulderWeight    = 0.2
	headForwardWeight = 0.2
)

// 颈椎角度分段边界（度）
//
// 理想区间 [155,165] → 满分，向两侧单调递减，115 以下趋近 0。
// 分段常数来自调参结果，按原值保留，不重新推导。
const (
	idealAngleLow  = 155.0
	idealAngleHigh = 165.0
	fairAngleLow   = 145.0
	poorAngleLow   = 135.0
	floorAngleLow  = 115.0
)

// CervicalSubScore 颈椎角度子评分（分段线性）
func CervicalSubScore(angle float64) float64 {
	switch {
	case angle >= idealAngleLow && angle <= idealAngleHigh:
		return 100
	case angle > idealAngleHigh:
		// 过度后仰：离开理想区间每度扣 4 分
		return clampScore(100 - (angle-idealAngleHigh)*4)
	case angle >= fairAngleLow:
		// 155 → 100，145 → 70
		return 70 + (angle-fairAngleLow)*3
	case angle >= poorAngleLow:
		// 145 → 70，135 → 40
		return 40 + (angle-poorAngleLow)*3
	case angle >= floorAngleLow:
		// 135 → 40，115 → 0
		return (angle - floorAngleLow) * 2
	default:
		return 0
	}
}

// ComposeScore 按固定权重合成综合评分
//
// 颈椎子评分 60% + 肩部对齐 20% + 头部前倾（反向）20%。
// 子指标越界时仍保证输出在 [0,100]，结果四舍五入。
func ComposeScore(metrics models.PostureMetrics) float64 {
	cervical := CervicalSubScore(metrics.CervicalAngle)
	alignment := clampScore(metrics.ShoulderAlignment)
	headForward := clampScore(metrics.HeadForward)

	score := cervical*cervicalWeight +
		alignment*shoulderWeight +
		(100-headForward)*headForwardWeight

	return clampScore(math.Round(score))
}

// clampScore 钳制评分到 [0,100]
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
