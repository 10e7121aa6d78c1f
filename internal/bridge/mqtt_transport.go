package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqttclient "github.com/Marwa-001/neural-stride/internal/mqtt"
	"github.com/Marwa-001/neural-stride/internal/models"
)

// wireEnvelope MQTT 传输信封（消息 + 应答路由信息）
type wireEnvelope struct {
	models.Message
	ReplyTo       string `json:"replyTo,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// wireReply MQTT 应答信封
type wireReply struct {
	models.Reply
	CorrelationID string `json:"correlationId"`
}

// MQTTTransport 基于 MQTT 的点对点传输实现
//
// 主题约定：
// - 收件箱: bridge/{id}/inbox
// - 应答:   bridge/{id}/reply
type MQTTTransport struct {
	client *mqttclient.Client
	selfID string
	logger *zap.Logger

	mu       sync.Mutex
	awaiting map[string]chan *models.Reply
}

// NewMQTTTransport 创建 MQTT 传输并订阅本端应答主题
func NewMQTTTransport(client *mqttclient.Client, selfID string, logger *zap.Logger) (*MQTTTransport, error) {
	t := &MQTTTransport{
		client:   client,
		selfID:   selfID,
		logger:   logger,
		awaiting: make(map[string]chan *models.Reply),
	}

	if err := client.Subscribe(replyTopic(selfID), 1, t.handleReply); err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply topic: %w", err)
	}

	return t, nil
}

func inboxTopic(id string) string {
	return fmt.Sprintf("bridge/%s/inbox", id)
}

func replyTopic(id string) string {
	return fmt.Sprintf("bridge/%s/reply", id)
}

// Request 发送消息并等待应答
func (t *MQTTTransport) Request(ctx context.Context, peerID string, msg models.Message) (*models.Reply, error) {
	corrID := uuid.NewString()
	ch := make(chan *models.Reply, 1)

	t.mu.Lock()
	t.awaiting[corrID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.awaiting, corrID)
		t.mu.Unlock()
	}()

	envelope := wireEnvelope{
		Message:       msg,
		ReplyTo:       replyTopic(t.selfID),
		CorrelationID: corrID,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := t.client.Publish(inboxTopic(peerID), 1, false, payload); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request %q timed out: %w", msg.Action, ctx.Err())
	}
}

// Send 发送消息，不等待业务应答（QoS 1 确认送达 broker）
func (t *MQTTTransport) Send(ctx context.Context, peerID string, msg models.Message) error {
	envelope := wireEnvelope{Message: msg}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := t.client.Publish(inboxTopic(peerID), 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// handleReply 处理应答主题上的消息，按关联标识派发给等待方
func (t *MQTTTransport) handleReply(topic string, payload []byte) error {
	var reply wireReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return fmt.Errorf("failed to unmarshal reply: %w", err)
	}

	t.mu.Lock()
	ch, ok := t.awaiting[reply.CorrelationID]
	t.mu.Unlock()

	if !ok {
		// 迟到的应答：请求方已超时放弃
		t.logger.Debug("Reply for unknown correlation id",
			zap.String("correlation_id", reply.CorrelationID),
		)
		return nil
	}

	r := reply.Reply
	select {
	case ch <- &r:
	default:
	}
	return nil
}

// Listen 订阅本端收件箱并派发给处理器
//
// 处理器返回非 nil 应答且消息带有应答路由时，应答被发回请求方。
func (t *MQTTTransport) Listen(ctx context.Context, handler *Handler) error {
	return t.client.Subscribe(inboxTopic(t.selfID), 1, func(topic string, payload []byte) error {
		var envelope wireEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			t.logger.Warn("Malformed bridge envelope",
				zap.String("topic", topic),
				zap.Error(err),
			)
			return fmt.Errorf("failed to unmarshal envelope: %w", err)
		}

		reply := handler.Handle(ctx, envelope.Message)
		if reply == nil || envelope.ReplyTo == "" {
			return nil
		}

		replyPayload, err := json.Marshal(wireReply{
			Reply:         *reply,
			CorrelationID: envelope.CorrelationID,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal reply: %w", err)
		}

		if err := t.client.Publish(envelope.ReplyTo, 1, false, replyPayload); err != nil {
			t.logger.Warn("Failed to publish reply",
				zap.String("reply_to", envelope.ReplyTo),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}
