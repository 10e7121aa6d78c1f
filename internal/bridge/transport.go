package bridge

import (
	"context"
	"time"

	"github.com/Marwa-001/neural-stride/internal/models"
)

// Transport 两个进程之间的点对点异步通道
//
// 通道不可靠：发送和请求都可能失败或超时，失败由桥接层
// 通过重新入队 + 有界重试在本地恢复，不向调用方暴露。
type Transport interface {
	// Request 发送消息并等待对端应答（用于 ping 等活性检查）
	Request(ctx context.Context, peerID string, msg models.Message) (*models.Reply, error)

	// Send 发送消息并确认送达，不等待业务应答
	Send(ctx context.Context, peerID string, msg models.Message) error
}

// Config 桥接层配置
type Config struct {
	PeerID            string        // 已知对端标识（仅开发兜底，正式依赖注册握手）
	CheckInterval     time.Duration // 重连检查间隔
	HeartbeatInterval time.Duration // 心跳间隔
	RequestTimeout    time.Duration // 单次请求超时
	MaxRetries        int           // 单轮连接检查的最大连续失败次数
}

// withDefaults 填充零值配置项
func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 3 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}
