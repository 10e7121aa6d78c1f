// Package posture 提供姿态几何计算与综合评分
//
// 主要功能：
// - 从单帧人体关键点计算姿态指标（颈椎角度、肩部对齐度、头部前倾度）
// - 按固定权重合成综合评分（颈椎 60% + 肩部 20% + 头部前倾 20%）
//
// 约定：
// - 全部为纯函数，相同输入产生相同输出，无副作用
// - 关键点缺失视为检测失败，返回全零指标（isPersonDetected=false），不是错误
package posture

import (
	"math"

	"github.com/Marwa-001/neural-stride/internal/models"
)

const (
	// neutralAngle 向量退化（长度为零）时的中性角度
	neutralAngle = 90.0

	// shoulderOffsetSensitivity 肩部高度差的灵敏度系数
	// 归一化坐标下左右肩 y 差值乘以该系数后从 100 线性扣分
	shoulderOffsetSensitivity = 500.0

	// headForwardScale 头部前倾的横向距离缩放系数
	// 鼻尖与肩部中点的归一化横向距离映射到 0-100
	headForwardScale = 400.0
)

// ComputeMetrics 从单帧关键点计算姿态指标
//
// 输入缺失或关键点不全时返回全零指标（检测失败信号）。
func ComputeMetrics(ls *models.LandmarkSet) models.PostureMetrics {
	if ls == nil || !ls.HasRequiredLandmarks() {
		return models.PostureMetrics{}
	}

	earMid := models.Midpoint(ls.Point(models.LandmarkEarLeft), ls.Point(models.LandmarkEarRight))
	shoulderMid := models.Midpoint(ls.Point(models.LandmarkShoulderLeft), ls.Point(models.LandmarkShoulderRight))
	hipMid := models.Midpoint(ls.Point(models.LandmarkHipLeft), ls.Point(models.LandmarkHipRight))

	cervicalAngle := angleAtVertex(shoulderMid, earMid, hipMid)
	alignment := shoulderAlignment(ls.Point(models.LandmarkShoulderLeft), ls.Point(models.LandmarkShoulderRight))
	headForward := headForwardOffset(ls.Point(models.LandmarkNose), shoulderMid)

	metrics := models.PostureMetrics{
		CervicalAngle:     cervicalAngle,
		ShoulderAlignment: alignment,
		HeadForward:       headForward,
		IsPersonDetected:  true,
	}
	metrics.PostureScore = ComposeScore(metrics)

	return metrics
}

// angleAtVertex 计算以 vertex 为顶点、指向 a 与 b 两个方向之间的夹角（度）
//
// 余弦值在反余弦前钳制到 [-1, 1]，防止浮点溢出；
// 退化向量（长度为零）返回中性角度 90°。
func angleAtVertex(vertex, a, b models.Point3D) float64 {
	va := models.Point3D{X: a.X - vertex.X, Y: a.Y - vertex.Y, Z: a.Z - vertex.Z}
	vb := models.Point3D{X: b.X - vertex.X, Y: b.Y - vertex.Y, Z: b.Z - vertex.Z}

	lenA := math.Sqrt(va.X*va.X + va.Y*va.Y + va.Z*va.Z)
	lenB := math.Sqrt(vb.X*vb.X + vb.Y*vb.Y + vb.Z*vb.Z)
	if lenA == 0 || lenB == 0 {
		return neutralAngle
	}

	dot := va.X*vb.X + va.Y*vb.Y + va.Z*vb.Z
	cos := dot / (lenA * lenB)

	// 钳制余弦值，防止浮点误差导致 Acos 返回 NaN
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}

	return math.Acos(cos) * 180 / math.Pi
}

// shoulderAlignment 根据左右肩纵向偏移计算对齐度
//
// 零偏移 → 100，偏移按固定灵敏度线性扣分，下限 0。
func shoulderAlignment(left, right models.Point3D) float64 {
	offset := math.Abs(left.Y - right.Y)
	alignment := 100 - offset*shoulderOffsetSensitivity
	if alignment < 0 {
		return 0
	}
	return alignment
}

// headForwardOffset 根据鼻尖与肩部中点的横向距离计算头部前倾度
//
// 缩放到 0-100，上限 100。
func headForwardOffset(nose, shoulderMid models.Point3D) float64 {
	offset := math.Abs(nose.X-shoulderMid.X) * headForwardScale
	if offset > 100 {
		return 100
	}
	return offset
}
