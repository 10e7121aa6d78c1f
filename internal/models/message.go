package models

import (
	"encoding/json"
	"fmt"
)

// 跨进程消息动作
const (
	ActionPing            = "ping"
	ActionUpdatePosture   = "updatePosture"
	ActionSessionStatus   = "sessionStatus"
	ActionStartMonitoring = "startMonitoring"
	ActionStopMonitoring  = "stopMonitoring"
	ActionGetStatus       = "getStatus"
	ActionUpdateScore     = "updateScore"
	ActionHeartbeat       = "heartbeat"
)

// Message 跨进程消息信封 {action, data}
//
// 构造后不可变。不同动作之间不保证顺序，
// 但待发队列内部保证 FIFO。
type Message struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Reply 应答信封 {status|success: ...}
type Reply struct {
	Status     string `json:"status,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Monitoring *bool  `json:"isMonitoring,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PostureUpdate updatePosture 消息载荷（PostureMetrics 子集）
type PostureUpdate struct {
	PostureScore     float64 `json:"postureScore"`
	CervicalAngle    float64 `json:"cervicalAngle"`
	IsPersonDetected bool    `json:"isPersonDetected"`
}

// SessionStatus sessionStatus 消息载荷
type SessionStatus struct {
	IsActive bool `json:"isActive"`
}

// ScoreUpdate updateScore 消息载荷
type ScoreUpdate struct {
	Score float64 `json:"score"`
}

// NewMessage 构造带载荷的消息
func NewMessage(action string, payload interface{}) (Message, error) {
	msg := Message{Action: action}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal message payload: %w", err)
	}
	msg.Data = data
	return msg, nil
}

// DecodeData 解析消息载荷到目标结构
func (m Message) DecodeData(dest interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("message %q has no data", m.Action)
	}
	if err := json.Unmarshal(m.Data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %q data: %w", m.Action, err)
	}
	return nil
}

// ConnectedReply ping 的成功应答
func ConnectedReply() *Reply {
	return &Reply{Status: "connected"}
}

// SuccessReply 通用成功应答
func SuccessReply() *Reply {
	ok := true
	return &Reply{Success: &ok}
}

// ErrorReply 显式错误应答（接收侧数据缺失/格式错误时返回，不静默丢弃）
func ErrorReply(message string) *Reply {
	return &Reply{Status: "error", Error: message}
}
