// Package broadcast 提供同源作用域的广播通道
//
// 基于 Redis 发布/订阅，用于同一部署域内跨组件的就绪/启停通告。
// 信封携带 origin 字段，接收方拒绝与自身 origin 不一致的信封。
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 广播信封类型
const (
	TypeContentScriptReady     = "CONTENT_SCRIPT_READY"
	TypeWebappReady            = "WEBAPP_READY"
	TypeStartMonitoring        = "START_MONITORING"
	TypeStopMonitoring         = "STOP_MONITORING"
	TypeHeartbeat              = "HEARTBEAT"
	TypeContentScriptConfirmed = "CONTENT_SCRIPT_CONFIRMED"
)

// Envelope 广播信封 {type, source, origin, timestamp}
type Envelope struct {
	Type      string `json:"type"`
	Source    string `json:"source"`
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
}

// Channel 同源广播通道
type Channel struct {
	client *redis.Client
	origin string
	source string
	logger *zap.Logger
}

// NewChannel 创建广播通道
//
// origin 限定作用域；source 标识发送方（写入信封）。
func NewChannel(client *redis.Client, origin, source string, logger *zap.Logger) *Channel {
	return &Channel{
		client: client,
		origin: origin,
		source: source,
		logger: logger,
	}
}

// channelName 广播使用的 Redis 频道名
func channelName(origin string) string {
	return fmt.Sprintf("posture:broadcast:%s", origin)
}

// Publish 发布一条广播信封
func (c *Channel) Publish(ctx context.Context, envelopeType string) error {
	envelope := Envelope{
		Type:      envelopeType,
		Source:    c.source,
		Origin:    c.origin,
		Timestamp: time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := c.client.Publish(ctx, channelName(c.origin), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}

	return nil
}

// Subscribe 订阅广播，按信封类型派发给处理函数
//
// origin 不匹配的信封被拒绝（记日志后丢弃）。阻塞直到上下文取消。
func (c *Channel) Subscribe(ctx context.Context, handler func(Envelope)) error {
	pubsub := c.client.Subscribe(ctx, channelName(c.origin))
	defer pubsub.Close()

	// 确认订阅建立
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to broadcast channel: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				c.logger.Warn("Malformed broadcast envelope", zap.Error(err))
				continue
			}

			// 拒绝跨 origin 的信封
			if envelope.Origin != c.origin {
				c.logger.Warn("Rejected broadcast from foreign origin",
					zap.String("origin", envelope.Origin),
					zap.String("expected", c.origin),
				)
				continue
			}

			// 忽略自己发出的信封
			if envelope.Source == c.source {
				continue
			}

			handler(envelope)
		}
	}
}
