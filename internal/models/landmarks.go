package models

// 人体关键点索引（遵循 MediaPipe Pose 约定）
// 参考: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	LandmarkNose          = 0
	LandmarkEarLeft       = 7
	LandmarkEarRight      = 8
	LandmarkShoulderLeft  = 11
	LandmarkShoulderRight = 12
	LandmarkHipLeft       = 23
	LandmarkHipRight      = 24

	// NumLandmarks MediaPipe Pose 输出的关键点总数
	NumLandmarks = 33
)

// Point3D 归一化图像坐标系中的三维点
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet 单帧人体关键点集合
//
// 由外部姿态估计服务每帧生成一次，经 MQTT 送入。
// 不可变，指标提取后即丢弃（不保留历史）。
type LandmarkSet struct {
	Points    []Point3D `json:"points"`
	Timestamp int64     `json:"timestamp"`
}

// requiredLandmarks 指标计算必需的关键点索引
var requiredLandmarks = []int{
	LandmarkNose,
	LandmarkEarLeft,
	LandmarkEarRight,
	LandmarkShoulderLeft,
	LandmarkShoulderRight,
	LandmarkHipLeft,
	LandmarkHipRight,
}

// Point 获取指定索引的关键点
func (ls *LandmarkSet) Point(index int) Point3D {
	return ls.Points[index]
}

// HasRequiredLandmarks 检查必需的关键点索引是否都在范围内
//
// 缺失视为检测失败（isPersonDetected=false），不是错误。
func (ls *LandmarkSet) HasRequiredLandmarks() bool {
	if ls == nil {
		return false
	}
	for _, idx := range requiredLandmarks {
		if idx >= len(ls.Points) {
			return false
		}
	}
	return true
}

// Midpoint 计算两个关键点的中点
func Midpoint(a, b Point3D) Point3D {
	return Point3D{
		X: (a.X + b.X) / 2,
		Y: (a.Y + b.Y) / 2,
		Z: (a.Z + b.Z) / 2,
	}
}
