// Package stress 提供脊柱区域压力映射
//
// 由当前评分与颈椎角度纯函数导出三个区域的压力值（颈椎/胸椎/腰椎），
// 无状态，每次调用从头计算。分段常数来自调参结果，按原值保留。
package stress

import (
	"github.com/Marwa-001/neural-stride/internal/models"
)

const (
	// 颈椎压力分段边界（度）
	idealAngleLow  = 155.0
	idealAngleHigh = 165.0
	escalateAngle  = 145.0
	saturateAngle  = 125.0

	// 胸椎压力：评分权重与级联惩罚
	thoracicWeight        = 0.7
	cascadeAngleThreshold = 135.0
	cascadePenalty        = 15.0

	// 腰椎压力分段边界（评分）
	lumbarLowScore  = 80.0
	lumbarMidScore  = 60.0
	lumbarHighScore = 40.0
)

// Map 由评分和颈椎角度计算区域压力
func Map(score, cervicalAngle float64) models.RegionalStress {
	cervical := cervicalStress(cervicalAngle)
	thoracic := thoracicStress(score, cervicalAngle)
	lumbar := lumbarStress(score)

	return models.RegionalStress{
		Cervical:      cervical,
		Thoracic:      thoracic,
		Lumbar:        lumbar,
		CervicalLevel: Classify(cervical),
		ThoracicLevel: Classify(thoracic),
		LumbarLevel:   Classify(lumbar),
	}
}

// Zero 返回归零的区域压力（检测失败帧使用，分级按零值计算）
func Zero() models.RegionalStress {
	return models.RegionalStress{
		CervicalLevel: Classify(0),
		ThoracicLevel: Classify(0),
		LumbarLevel:   Classify(0),
	}
}

// cervicalStress 颈椎压力（仅与颈椎角度相关）
//
// 理想区间 [155,165] 近零，145 以下超线性升高，125 以下饱和到 100。
func cervicalStress(angle float64) float64 {
	switch {
	case angle >= idealAngleLow && angle <= idealAngleHigh:
		return 0
	case angle > idealAngleHigh:
		// 过度后仰：轻度升高
		return clampStress((angle - idealAngleHigh) * 1.5)
	case angle >= escalateAngle:
		// 155 → 0，145 → 20
		return (idealAngleLow - angle) * 2
	case angle >= saturateAngle:
		// 145 → 20，125 → 100（二次升高）
		t := (escalateAngle - angle) / (escalateAngle - saturateAngle)
		return clampStress(20 + t*t*80)
	default:
		return 100
	}
}

// thoracicStress 胸椎压力
//
// (100 − score) × 权重，颈椎角度低于级联阈值时叠加固定惩罚（级联效应），上限 100。
func thoracicStress(score, angle float64) float64 {
	stress := (100 - clampStress(score)) * thoracicWeight
	if angle < cascadeAngleThreshold {
		stress += cascadePenalty
	}
	return clampStress(stress)
}

// lumbarStress 腰椎压力（评分的单调递减阶梯函数）
func lumbarStress(score float64) float64 {
	switch {
	case score > lumbarLowScore:
		return 10
	case score > lumbarMidScore:
		return 30
	case score > lumbarHighScore:
		return 60
	default:
		return 100
	}
}

// Classify 压力值五档分级（固定分段点 {20,40,60,80}）
func Classify(stress float64) models.StressLevel {
	switch {
	case stress < 20:
		return models.StressOptimal
	case stress < 40:
		return models.StressGood
	case stress < 60:
		return models.StressCaution
	case stress < 80:
		return models.StressWarning
	default:
		return models.StressCritical
	}
}

// clampStress 钳制压力值到 [0,100]
func clampStress(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
