package models

import "time"

// PostureMetrics 单帧姿态指标（值类型，每帧重新计算，不原地修改）
type PostureMetrics struct {
	PostureScore      float64 `json:"posture_score"`      // 综合评分 0-100
	CervicalAngle     float64 `json:"cervical_angle"`     // 颈椎角度（度）
	ShoulderAlignment float64 `json:"shoulder_alignment"` // 肩部对齐度 0-100
	HeadForward       float64 `json:"head_forward"`       // 头部前倾度 0-100
	IsPersonDetected  bool    `json:"is_person_detected"`
}

// StressLevel 区域压力的五档分级
type StressLevel string

const (
	StressOptimal  StressLevel = "optimal"
	StressGood     StressLevel = "good"
	StressCaution  StressLevel = "caution"
	StressWarning  StressLevel = "warning"
	StressCritical StressLevel = "critical"
)

// RegionalStress 脊柱区域压力（由当前指标纯函数导出，每次更新重新计算）
type RegionalStress struct {
	Cervical float64 `json:"cervical"` // 颈椎压力 0-100
	Thoracic float64 `json:"thoracic"` // 胸椎压力 0-100
	Lumbar   float64 `json:"lumbar"`   // 腰椎压力 0-100

	CervicalLevel StressLevel `json:"cervical_level"`
	ThoracicLevel StressLevel `json:"thoracic_level"`
	LumbarLevel   StressLevel `json:"lumbar_level"`
}

// HealthState 健康模型状态（仅由健康模型持有和修改）
type HealthState struct {
	Health float64 `json:"health"` // 健康值 0-100
	Stage  int     `json:"stage"`  // 离散阶段 1-5
}

// RealtimeSnapshot 实时数据快照（写入 Redis 缓存）
//
// 只保留当前帧的派生值，不含任何姿态历史。
type RealtimeSnapshot struct {
	SessionID string          `json:"session_id"`
	Metrics   PostureMetrics  `json:"metrics"`
	Stress    RegionalStress  `json:"stress"`
	Health    *HealthState    `json:"health,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// MonitorSession 监测会话（PostgreSQL monitor_sessions 表）
type MonitorSession struct {
	SessionID  string
	ClientID   string
	PeerID     string
	Monitoring bool
	StartedAt  time.Time
	EndedAt    *time.Time
}
